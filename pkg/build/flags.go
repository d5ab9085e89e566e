// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for a Go application. It allows embedding metadata such as the application
// name, build timestamp, Git commit hash, and semantic version into the binary
// at compile time using linker flags, for example:
//
//	go build -ldflags "-X tuner/pkg/build.buildName=tuner -X tuner/pkg/build.buildVersion=0.1.0 \
//	    -X tuner/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X tuner/pkg/build.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// The information is shown by --version and attached to exported telemetry.
package build

import "fmt"

// Info is the build metadata of the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the version line, e.g. "tuner 0.1.0 (abc123, 2025-04-13)".
func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", i.Name, i.Version, i.Commit, i.Time)
}

const description = "Real-time instrument tuner"

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Development builds keep the defaults below.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:        "tuner",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize validates and copies build information from ldflags variables
// into the build info. It returns an error if any flag is missing, in which
// case the development defaults stay in place.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}
