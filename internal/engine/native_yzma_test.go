//go:build yzma

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ NativeLibrary = (*yzmaLibrary)(nil)

func TestLoadNativeLibrary_UnconfiguredDirectoryFails(t *testing.T) {
	assert.True(t, NativeBuilt)
	lib := LoadNativeLibrary("")
	require.Error(t, lib.Err())
	assert.Same(t, lib, LoadNativeLibrary("/elsewhere"), "the library loads once per process")

	_, err := lib.NewContext("not a model", DefaultNativeOptions())
	require.Error(t, err)
	_, err = lib.Generate("not a model", nil, "hi", DefaultNativeOptions())
	require.Error(t, err)
}
