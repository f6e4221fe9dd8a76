// Package version carries build metadata injected with -ldflags -X.
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the metadata the way the version command prints it.
func String() string {
	return fmt.Sprintf("windowavg %s (commit %s, built %s)", Version, Commit, BuildDate)
}
