// SPDX-License-Identifier: MPL-2.0

package main

import cmd "launchpad-cli/cmd/launchpad"

func main() {
	cmd.Execute()
}
