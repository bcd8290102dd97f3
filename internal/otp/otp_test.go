package otp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		code, err := Generate()
		require.NoError(t, err)
		require.True(t, WellFormed(code), "code %q is not 6 digits", code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 150, "codes should not repeat often")
}

func TestGenerateZeroPads(t *testing.T) {
	// An all-zero entropy source yields the smallest value.
	code, err := generate(bytes.NewReader(make([]byte, 64)))
	require.NoError(t, err)
	assert.Equal(t, "000000", code)
}

func TestHashAndMatch(t *testing.T) {
	h := Hash("123456")
	assert.Len(t, h, 64)
	assert.Equal(t, h, Hash("123456"), "hash must be deterministic")
	assert.NotEqual(t, h, Hash("123457"))

	assert.True(t, Matches("123456", h))
	assert.True(t, Matches(" 123456\n", h))
	assert.False(t, Matches("000000", h))
	assert.False(t, Matches("", h))
}

func TestWellFormed(t *testing.T) {
	cases := map[string]bool{
		"000000":  true,
		"987654":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"":        false,
	}
	for in, want := range cases {
		assert.Equal(t, want, WellFormed(in), in)
	}
}
