package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLSN(t *testing.T) {
	tests := []struct {
		in   string
		want LSN
	}{
		{"0/0", 0},
		{"0/A0000028", 0xA0000028},
		{"0/a0000028", 0xA0000028},
		{"1/0", 0x100000000},
		{"16/B374D848", 0x16B374D848},
		{"FFFFFFFF/FFFFFFFF", 0xFFFFFFFFFFFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLSN(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLSN_Empty(t *testing.T) {
	got, err := ParseLSN("")
	require.NoError(t, err)
	assert.Equal(t, InvalidLSN, got)
	assert.False(t, got.IsValid())
}

func TestParseLSN_Invalid(t *testing.T) {
	for _, in := range []string{
		"A0000028",
		"0/",
		"/A0000028",
		"0/XYZ",
		"0/A0000028/1",
		"123456789/0",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseLSN(in)
			require.Error(t, err)
		})
	}
}

func TestLSNString(t *testing.T) {
	tests := []struct {
		lsn  LSN
		want string
	}{
		{0, "0/0"},
		{0xA0000060, "0/A0000060"},
		{0x16B374D848, "16/B374D848"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.lsn.String())
	}
}

func TestLSNRoundTrip(t *testing.T) {
	for _, lsn := range []LSN{1, 0xA0000028, 0x100000000, 0xDEADBEEF00112233} {
		got, err := ParseLSN(lsn.String())
		require.NoError(t, err)
		assert.Equal(t, lsn, got)
	}
}
