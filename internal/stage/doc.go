// SPDX-License-Identifier: MPL-2.0

// Package stage builds the two images behind an environment.
//
// The dependencies stage starts FROM the base image, sets the working
// directory and environment, copies the manifest files and runs the installer.
// The application stage starts FROM the dependencies stage, copies the filtered
// source tree and sets the entrypoint. Both are tagged with a content hash of
// their inputs, so an unchanged stage is reused instead of rebuilt:
//
//	b := stage.NewBuilder(engine, stage.DefaultConfig(), logger)
//	deps, err := b.Dependencies(ctx, r, baseID, m)
//	snap, err := stage.Snapshot(r)
//	app, err := b.Application(ctx, r, deps.Tag, snap)
//
// A tag is only ever applied by a successful engine build, so a failed stage
// leaves nothing behind that a later build could mistake for a cached one.
package stage
