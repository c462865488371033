package uuid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNanoIDGenerator_Length(t *testing.T) {
	id, err := NewNanoIDGenerator(24).Generate()
	require.NoError(t, err)
	assert.Len(t, id, 24)
}

func TestVerificationCodeGenerator_Alphabet(t *testing.T) {
	gen := NewVerificationCodeGenerator(20)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		require.Len(t, code, 20)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(VerificationAlphabet, r), "unexpected symbol %q", r)
		}
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestVerificationCodeGenerator_RejectsShortCodes(t *testing.T) {
	assert.Panics(t, func() { NewVerificationCodeGenerator(8) })
}
