package signal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelRegistry_StartsEmptyWithoutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")

	registry, err := NewChannelRegistry(path)
	require.NoError(t, err)
	assert.Empty(t, registry.List())

	// No file is created until the first mutation.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestChannelRegistry_AddRemovePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")

	registry, err := NewChannelRegistry(path)
	require.NoError(t, err)

	require.NoError(t, registry.Add("chan-b"))
	require.NoError(t, registry.Add("chan-a"))
	require.NoError(t, registry.Add("chan-a")) // idempotent

	assert.True(t, registry.Contains("chan-a"))
	assert.False(t, registry.Contains("chan-c"))
	assert.Equal(t, []string{"chan-a", "chan-b"}, registry.List())

	// A fresh registry loaded from the same file sees the same set.
	reloaded, err := NewChannelRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"chan-a", "chan-b"}, reloaded.List())

	require.NoError(t, registry.Remove("chan-b"))
	require.NoError(t, registry.Remove("chan-b")) // idempotent

	reloaded, err = NewChannelRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"chan-a"}, reloaded.List())
}

func TestChannelRegistry_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewChannelRegistry(path)
	assert.Error(t, err)
}

func TestChannelRegistry_LoadsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	registry, err := NewChannelRegistry(path)
	require.NoError(t, err)
	assert.Empty(t, registry.List())
}
