// SPDX-License-Identifier: MIT
package main

import (
	"tuner/cmd"
	applog "tuner/internal/log"
	"tuner/pkg/build"
)

// main wires build information and hands over to the command line. The
// commands own the audio subsystem, the analysis goroutine and shutdown on
// SIGINT or SIGTERM.
func main() {
	// Initialize build information including version, commit hash, and build time
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v", err)
	}

	if err := cmd.Execute(); err != nil {
		applog.Fatalf("%v", err)
	}
}
