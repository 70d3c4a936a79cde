package jsonstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	f := File{Path: filepath.Join(t.TempDir(), "accounts.json")}
	ctx := context.Background()

	require.NoError(t, f.Save(ctx, map[string]string{"box": "rt1", "googledrive": "rt2"}))

	got, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"box": "rt1", "googledrive": "rt2"}, got)
}

func TestLoadMissingFileReturnsEmptyMap(t *testing.T) {
	f := File{Path: filepath.Join(t.TempDir(), "does-not-exist.json")}
	got, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
