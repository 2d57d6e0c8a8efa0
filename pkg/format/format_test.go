package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBytes(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.00 KB", Bytes(1024))
	assert.Equal(t, "1.50 MB", Bytes(1572864))
	assert.Equal(t, "1.00 GB", Bytes(1<<30))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "250µs", Duration(250*time.Microsecond))
	assert.Equal(t, "42ms", Duration(42*time.Millisecond))
	assert.Equal(t, "1.5s", Duration(1500*time.Millisecond))
	assert.Equal(t, "2m30s", Duration(150*time.Second))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "0%", Percent(0))
	assert.Equal(t, "0%", Percent(-0.5))
	assert.Equal(t, "12.5%", Percent(0.125))
	assert.Equal(t, "100.0%", Percent(1))
}
