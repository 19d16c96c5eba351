package numerator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	day := time.Date(2026, 10, 19, 15, 4, 0, 0, time.UTC)

	assert.Equal(t, "INV-20261019-001000", Format(DefaultConfig(), day, 1000))
	assert.Equal(t, "INV-20261019-1234567", Format(DefaultConfig(), day, 1234567))
	assert.Equal(t, "F-00042", Format(Config{Prefix: "F", PadWidth: 5}, day, 42))
	assert.Equal(t, "000007", Format(Config{}, day, 7))
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"INV-20261019-001000", 1000, true},
		{"INV-2024-00001", 1, true},
		{"F-42", 42, true},
		{"1500", 1500, true},
		{" INV-20261019-000999 ", 999, true},
		{"INV-", 0, false},
		{"", 0, false},
		{"INV-20261019-ABC", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseSequence(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	day := time.Now()
	for _, seq := range []int64{1, 999, 1000, 999999, 1000000} {
		got, ok := ParseSequence(Format(DefaultConfig(), day, seq))
		assert.True(t, ok)
		assert.Equal(t, seq, got)
	}
}
