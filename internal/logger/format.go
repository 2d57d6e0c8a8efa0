package logger

import "strings"

// stripAnsiCodes removes terminal colour sequences from attribute values
// before they reach the JSON file handler. pterm styles leak into attrs
// when a themed value is logged, and rotated log files should stay clean.
func stripAnsiCodes(s string) string {
	// matches \x1b[...m sequences without reaching for regexp
	var b strings.Builder
	b.Grow(len(s))

	inEscape := false

	for i := 0; i < len(s); i++ {
		if !inEscape {
			if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '[' {
				inEscape = true
				i++ // skip the '['
				continue
			}
			b.WriteByte(s[i])
			continue
		}

		// inside escape sequence; look for the end token
		if (s[i] >= 'A' && s[i] <= 'Z') || (s[i] >= 'a' && s[i] <= 'z') {
			inEscape = false
		}
	}

	return b.String()
}
