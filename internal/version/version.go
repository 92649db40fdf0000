// Package version holds build metadata injected with
// -ldflags "-X github.com/hazz-dev/watchdog/internal/version.Version=...".
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String is the one-line banner printed by "watchdog version".
func String() string {
	return fmt.Sprintf("watchdog %s (commit %s, built %s)", Version, Commit, Date)
}

// UserAgent is the default User-Agent header sent with probes.
func UserAgent() string {
	return "watchdog/" + Version
}
