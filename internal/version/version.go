// Package version holds build-time version metadata, set via
// -ldflags at release build time; local development builds report the
// placeholder values below.
package version

var (
	// Version is the release tag this binary was built from.
	Version = "dev"
	// Commit is the source revision this binary was built from.
	Commit = "unknown"
	// BuildDate is when this binary was built, RFC3339.
	BuildDate = "unknown"
)

// String renders the one-line version banner printed to stderr at
// server startup.
func String() string {
	return "claude-zephyr " + Version + " (" + Commit + ", built " + BuildDate + ")"
}
