// Package tokencache persists the single-tenant upstream token between
// process runs. One JSON record under the data directory, written
// atomically and readable only by the owner.
package tokencache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
	"github.com/pipeboard-co/meta-ads-mcp/internal/core/ports/driven"
)

const cacheFileName = "token_cache.json"

// Ensure Cache implements the TokenCache port.
var _ driven.TokenCache = (*Cache)(nil)

// Cache is a file-backed token cache.
type Cache struct {
	mu   sync.Mutex
	path string
}

// NewCache creates a cache under dataDir. If dataDir is empty, defaults to
// ~/.meta-ads-mcp.
func NewCache(dataDir string) (*Cache, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".meta-ads-mcp")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Cache{path: filepath.Join(dataDir, cacheFileName)}, nil
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// Get returns the cached token, or domain.ErrNotFound when nothing has been
// cached yet.
func (c *Cache) Get(_ context.Context) (*domain.TokenInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading token cache: %w", err)
	}

	var info domain.TokenInfo
	if err := json.Unmarshal(data, &info); err != nil {
		// A corrupt cache is treated as absent rather than fatal; the
		// caller falls back to re-authentication.
		return nil, domain.ErrNotFound
	}
	if info.AccessToken == "" {
		return nil, domain.ErrNotFound
	}

	return &info, nil
}

// Save persists the token. The record is written to a temp file and renamed
// into place so a crash never leaves a partial record.
func (c *Cache) Save(_ context.Context, info domain.TokenInfo) error {
	if info.AccessToken == "" {
		return domain.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling token: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing token cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing token cache: %w", err)
	}

	return nil
}

// Clear removes the cached token. Clearing an empty cache is not an error.
func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token cache: %w", err)
	}
	return nil
}
