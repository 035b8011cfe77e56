package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"1", 9, 1_000_000_000, false},
		{"0.2", 9, 200_000_000, false},
		{"1.000000001", 9, 1_000_000_001, false},
		{"0.0000000001", 9, 0, true},
		{"12.5", 0, 0, true},
		{"42", 0, 42, false},
		{"-1", 9, 0, true},
		{"abc", 9, 0, true},
		{"18446744073.709551615", 9, 18_446_744_073_709_551_615, false},
		{"18446744073.709551616", 9, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseUnits(tt.in, tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "1", formatUnits(1_000_000_000, 9))
	assert.Equal(t, "0.2", formatUnits(200_000_000, 9))
	assert.Equal(t, "0", formatUnits(0, 6))
	assert.Equal(t, "123", formatUnits(123, 0))
	assert.Equal(t, "1.5 SOL", formatSOL(1_500_000_000))
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), got)

	got, err = parseTime("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), got)
	assert.Equal(t, "2023-11-14T22:13:20Z", formatTime(got))

	_, err = parseTime("tomorrow")
	assert.Error(t, err)
}
