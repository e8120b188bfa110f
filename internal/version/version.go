// Package version holds build identification stamped in at link time.
package version

// Set via -ldflags "-X tributary/internal/version.Version=v1.2.3" and
// friends; a plain `go build` leaves the dev defaults.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
