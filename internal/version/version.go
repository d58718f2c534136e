package version

import "fmt"

// VERSION, Commit and Date are set at build time via:
//
//	go build -ldflags "-X github.com/chronologos/simwire/internal/version.VERSION=0.1.0 \
//	  -X github.com/chronologos/simwire/internal/version.Commit=abc123 \
//	  -X github.com/chronologos/simwire/internal/version.Date=2026-01-02"
var (
	VERSION = "dev"
	Commit  = "dev"
	Date    = "unknown"
)

// String formats the build identity for `simwire version` and log lines.
func String() string {
	return fmt.Sprintf("simwire %s (%s, built %s)", VERSION, Commit, Date)
}
