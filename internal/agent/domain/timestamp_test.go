package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{in: "1760000000000", want: time.UnixMilli(1760000000000), ok: true},
		{in: "2025-10-09T06:00:00Z", want: time.Date(2025, 10, 9, 6, 0, 0, 0, time.UTC), ok: true},
		{in: "", ok: false},
		{in: "tomorrow", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got))
			}
		})
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	fallback := time.UnixMilli(1000)

	assert.Equal(t, "1760000000000", NormalizeTimestamp("1760000000000", fallback))
	assert.Equal(t, "1759989600000", NormalizeTimestamp("2025-10-09T06:00:00Z", fallback))
	assert.Equal(t, "1000", NormalizeTimestamp("", fallback))
	assert.Equal(t, "1000", NormalizeTimestamp("soon", fallback))
}
