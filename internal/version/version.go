// Package version holds build metadata stamped at release time:
//
//	go build -ldflags "-X github.com/docuquery/docuquery/internal/version.Version=v1.2.3"
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
