package util

import (
	"os"
	"strings"

	"golang.org/x/term"
)

/*
   references:
   - https://no-color.org/
*/

// IsTerminal checks if stdout is a terminal
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColors determines if coloured output should be used
func ShouldUseColors() bool {
	if noColor := os.Getenv("NO_COLOR"); noColor != "" {
		return false
	}

	if forceColor := os.Getenv("FORCE_COLOR"); forceColor != "" {
		return forceColor != "0"
	}

	if manifoldColors := os.Getenv("MANIFOLD_FORCE_COLORS"); manifoldColors != "" {
		return strings.ToLower(manifoldColors) == "true"
	}

	return IsTerminal()
}
