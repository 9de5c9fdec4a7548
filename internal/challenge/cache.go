// Package challenge implements Enodia bot-challenge solving and cookie caching.
package challenge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/dip"
)

// Cache persists the solved-challenge cookie as a small JSON document.
// Writes go through a temp file and rename so a crash never leaves a
// half-written cache behind.
type Cache struct {
	path   string
	logger *zap.Logger
}

// NewCache creates a cookie cache rooted at path.
func NewCache(path string, logger *zap.Logger) (*Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("cookie cache path is required")
	}
	return &Cache{path: path, logger: logger}, nil
}

// Load reads the cached cookie. A missing or corrupt file is not an error;
// it just means there is no usable cookie.
func (c *Cache) Load() (dip.Cookie, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("read cookie cache failed", zap.String("path", c.path), zap.Error(err))
		}
		return dip.Cookie{}, false
	}
	var cookie dip.Cookie
	if err := json.Unmarshal(data, &cookie); err != nil {
		c.logger.Warn("decode cookie cache failed", zap.String("path", c.path), zap.Error(err))
		return dip.Cookie{}, false
	}
	if len(cookie.Values) == 0 {
		return dip.Cookie{}, false
	}
	return cookie, true
}

// Save atomically persists the cookie.
func (c *Cache) Save(cookie dip.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("create cookie cache dir: %w", err)
	}
	payload, err := json.MarshalIndent(cookie, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookie: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write cookie temp file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename cookie cache: %w", err)
	}
	return nil
}

// Clear removes the cached cookie. Missing file is fine.
func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cookie cache: %w", err)
	}
	return nil
}
