package tokencache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)
	return cache
}

func TestCache_GetEmpty(t *testing.T) {
	cache := setupCache(t)

	_, err := cache.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCache_SaveAndGet(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	saved := domain.TokenInfo{
		AccessToken: "EAAtoken123",
		TokenType:   "bearer",
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		ExpiresIn:   5184000,
	}
	require.NoError(t, cache.Save(ctx, saved))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.AccessToken, got.AccessToken)
	assert.Equal(t, saved.ExpiresIn, got.ExpiresIn)
	assert.False(t, got.IsExpired())
}

func TestCache_SaveEmptyToken(t *testing.T) {
	cache := setupCache(t)

	err := cache.Save(context.Background(), domain.TokenInfo{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCache_SaveReplaces(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, domain.TokenInfo{AccessToken: "first", CreatedAt: time.Now()}))
	require.NoError(t, cache.Save(ctx, domain.TokenInfo{AccessToken: "second", CreatedAt: time.Now()}))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got.AccessToken)
}

func TestCache_Clear(t *testing.T) {
	cache := setupCache(t)
	ctx := context.Background()

	// Clearing an empty cache is fine.
	require.NoError(t, cache.Clear(ctx))

	require.NoError(t, cache.Save(ctx, domain.TokenInfo{AccessToken: "tok", CreatedAt: time.Now()}))
	require.NoError(t, cache.Clear(ctx))

	_, err := cache.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCache_CorruptFileTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, cacheFileName), []byte("{not json"), 0600))

	_, err = cache.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCache_FilePermissions(t *testing.T) {
	cache := setupCache(t)
	require.NoError(t, cache.Save(context.Background(), domain.TokenInfo{AccessToken: "tok", CreatedAt: time.Now()}))

	info, err := os.Stat(cache.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
