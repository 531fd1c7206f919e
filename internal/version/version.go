// Package version exposes build-time identity for the agent binary. The
// variables are stamped with ldflags, for example:
//
//	go build -ldflags "-X github.com/retropie-ha/retropie-ha/internal/version.Version=v1.2.0"
//
// Unstamped builds report "dev" so payloads and discovery configs always
// carry a value.
package version

import "fmt"

var (
	// Version is the release tag, also published as sw_version in the
	// Home Assistant discovery configs.
	Version = "dev"

	// GitCommit and BuildTime round out the version command output.
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String renders the full build identity for the version command.
func String() string {
	return fmt.Sprintf("retropie-ha %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
