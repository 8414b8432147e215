package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashTokenRoundTrip(t *testing.T) {
	hash, err := HashToken([]byte("classroom-api-token"))
	require.NoError(t, err)

	assert.True(t, TokenCorrect("classroom-api-token", hash))
	assert.False(t, TokenCorrect("wrong-token", hash))
	assert.False(t, TokenCorrect("classroom-api-token", "not-a-bcrypt-hash"))
}

func TestGenerateToken(t *testing.T) {
	first, err := GenerateToken(32)
	require.NoError(t, err)
	second, err := GenerateToken(32)
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
