// Package version holds build metadata injected at link time.
package version

// These are set via -ldflags at build time.
var (
	// GitRelease is the release tag (e.g., "v0.3.1").
	GitRelease = "dev"

	// GitCommit is the short commit SHA.
	GitCommit = "unknown"

	// BuildDate is the RFC3339 build timestamp.
	BuildDate = ""
)
