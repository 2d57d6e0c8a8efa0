package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesGlob(t *testing.T) {
	tests := []struct {
		s       string
		pattern string
		want    bool
	}{
		{"anything", "*", true},
		{"generation:abc", "generation:*", true},
		{"embedding:abc", "generation:*", false},
		{"user-prompt-7", "*-7", true},
		{"user-prompt-8", "*-7", false},
		{"abc-cache-xyz", "*cache*", true},
		{"abc-xyz", "*cache*", false},
		{"exact", "exact", true},
		{"exact", "other", false},
		{"MiXeD", "mixed", true},
		{"GENERATION:1", "generation:*", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.s, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesGlob(tt.s, tt.pattern))
		})
	}
}
