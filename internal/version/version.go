// Package version carries build identity, stamped via -ldflags at release
// time.
package version

import "fmt"

var (
	Name        = "manifold"
	Description = "Multi-provider LLM fan-out gateway"
	Version     = "v0.1.0"
	Commit      = "none"
	Date        = "unknown"
)

// String renders the one-line identity used at startup and by --version.
func String() string {
	return fmt.Sprintf("%s %s (%s, built %s)", Name, Version, Commit, Date)
}
