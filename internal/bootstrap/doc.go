// SPDX-License-Identifier: MPL-2.0

// Package bootstrap turns a recipe into a running process.
//
// A Bootstrapper executes the steps of an Environment strictly in order:
// select the pinned base image, establish the working directory, configure
// unbuffered output, install dependencies into a dependencies stage image,
// materialize the application files into an application stage image, and
// start the entrypoint in the foreground. Each step advances the
// environment's lifecycle machine; any failure moves it to FAILED and is
// returned as is. Nothing is retried.
//
// The entrypoint's exit code is the environment's outcome and is never
// remapped.
package bootstrap
