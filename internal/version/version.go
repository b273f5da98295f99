// Package version holds build-time version information.
package version

import "fmt"

const product = "influxpipe"

// Build-time variables injected via ldflags.
var (
	Release   = "dev"
	GitCommit = "unknown"
	GOOS      = "unknown"
	GOARCH    = "unknown"
)

// Full returns the version string with commit and platform information,
// e.g. "influxpipe/dev (commit: unknown, linux/amd64)".
func Full() string {
	return fmt.Sprintf("%s/%s (commit: %s, %s/%s)", product, Release, GitCommit, GOOS, GOARCH)
}
