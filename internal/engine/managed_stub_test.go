//go:build !llama

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManaged_UnavailableWithoutTag(t *testing.T) {
	assert.False(t, ManagedBuilt)
	m, err := NewManaged("/tmp/x.gguf", ManagedOptions{})
	require.ErrorIs(t, err, ErrRuntimeUnavailable)
	assert.Nil(t, m)
	assert.True(t, IsConstruction(err))
}

func TestManagedOptions_Defaults(t *testing.T) {
	o := ManagedOptions{Threads: 8}.withDefaults()
	assert.Equal(t, 8, o.Threads)
	assert.Equal(t, 2048, o.ContextSize)
	assert.Equal(t, 1024, o.MaxTokens)
}
