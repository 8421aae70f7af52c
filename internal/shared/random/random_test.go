package random

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	s, err := String(32, "ab")
	require.NoError(t, err)
	assert.Len(t, s, 32)
	assert.Empty(t, strings.Trim(s, "ab"))

	s, err = String(0, "")
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestUpperAlphaNum(t *testing.T) {
	s := UpperAlphaNum(5)
	assert.Len(t, s, 5)
	for _, r := range s {
		assert.Contains(t, CharsetUpperAlphaNum, string(r))
	}
	assert.NotEqual(t, UpperAlphaNum(16), UpperAlphaNum(16))
}
