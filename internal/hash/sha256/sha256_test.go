package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("runway resurfacing|example airport ltd|2099-01-01T00:00:00Z"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("runway resurfacing|example airport ltd|2099-01-01T00:00:00Z"))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestHashDiffersForDifferentInputs(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("one"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("two"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
