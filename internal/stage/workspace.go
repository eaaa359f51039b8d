// SPDX-License-Identifier: MPL-2.0

package stage

import (
	"fmt"
	"os"
	"path/filepath"
)

// workspace is a temporary directory holding one build context and the
// Dockerfile, kept outside the context so a source file named Dockerfile
// cannot collide with it.
type workspace struct {
	root       string
	contextDir string
	dockerfile string
}

func newWorkspace(parent string) (*workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create build context parent directory: %w", err)
	}

	root, err := os.MkdirTemp(parent, "ctx-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ws := &workspace{
		root:       root,
		contextDir: filepath.Join(root, "context"),
		dockerfile: filepath.Join(root, dockerfileName),
	}
	if err := os.Mkdir(ws.contextDir, 0o755); err != nil {
		ws.cleanup()
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}
	return ws, nil
}

func (w *workspace) cleanup() {
	_ = os.RemoveAll(w.root) // Cleanup temp dir; error non-critical
}
