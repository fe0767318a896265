// Package buildinfo carries version identity stamped at build time:
//
//	go build -ldflags "\
//	  -X 'stickerdex/core/buildinfo.Version=v1.2.3' \
//	  -X 'stickerdex/core/buildinfo.Commit=abcdef0' \
//	  -X 'stickerdex/core/buildinfo.Date=2025-08-30T12:00:00Z'"
//
// Unstamped binaries report the dev defaults.
package buildinfo

var (
	// Version is the release tag.
	Version = "dev"
	// Commit is the source revision the binary was built from.
	Commit = "local"
	// Date is the build timestamp in RFC3339.
	Date = ""
)

// String renders the identity the way the ready log shows it.
func String() string {
	s := Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return s
}
