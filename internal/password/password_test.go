package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	stored, err := Hash("secret123")
	require.NoError(t, err)

	saltHex, hashHex, found := strings.Cut(stored, ":")
	require.True(t, found, "expected salt:hash format")
	assert.Len(t, saltHex, 32)
	assert.Len(t, hashHex, 64)

	assert.True(t, Verify(stored, "secret123"))
	assert.False(t, Verify(stored, "wrong"))
	assert.False(t, Verify(stored, ""))
}

func TestHashWithSaltDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")

	first := HashWithSalt("secret123", salt)
	second := HashWithSalt("secret123", salt)
	assert.Equal(t, first, second)

	other := HashWithSalt("secret124", salt)
	assert.NotEqual(t, first, other)
}

func TestHashRandomSalt(t *testing.T) {
	first, err := Hash("secret123")
	require.NoError(t, err)
	second, err := Hash("secret123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, Verify(first, "secret123"))
	assert.True(t, Verify(second, "secret123"))
}

func TestVerifyMalformedStored(t *testing.T) {
	cases := []string{
		"",
		"no-delimiter",
		"zz:zz",
		":abcdef",
		"abcdef:",
		"abcdef:abcdef", // derived key too short
	}
	for _, stored := range cases {
		assert.False(t, Verify(stored, "secret123"), "stored=%q", stored)
	}
}
