package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const cacheFile = "cache.json"

// Cache keys.
const (
	CacheLastServerURL = "last_server_url"
	CacheLastBackend   = "last_backend"
	CacheLastSeed      = "last_seed"
	CacheLastPrompt    = "last_prompt"
)

// Cache is the per-user session cache: values remembered between runs that
// do not belong in the config file.
type Cache struct {
	mu     sync.RWMutex
	values map[string]any
	path   string
}

// DefaultCachePath returns the cache file next to the default config.
func DefaultCachePath() string {
	return filepath.Join(filepath.Dir(DefaultPath()), cacheFile)
}

// LoadCache reads the cache at path. A missing or unreadable file yields an
// empty cache that will be written to path on Save.
func LoadCache(path string) *Cache {
	if path == "" {
		path = DefaultCachePath()
	}
	c := &Cache{values: make(map[string]any), path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	_ = json.Unmarshal(data, &c.values)
	if c.values == nil {
		c.values = make(map[string]any)
	}
	return c
}

// Path returns where Save writes.
func (c *Cache) Path() string { return c.path }

// Save writes the cache to disk.
func (c *Cache) Save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.values, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// String returns a string value, or "" if not set.
func (c *Cache) String(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, _ := c.values[key].(string)
	return s
}

// SetString stores a string value.
func (c *Cache) SetString(key, val string) {
	c.set(key, val)
}

// Int returns an integer value, or fallback if not set. JSON numbers decode
// as float64 so both forms are accepted.
func (c *Cache) Int(key string, fallback int64) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch n := c.values[key].(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return fallback
}

// SetInt stores an integer value.
func (c *Cache) SetInt(key string, val int64) {
	c.set(key, val)
}

func (c *Cache) set(key string, val any) {
	c.mu.Lock()
	c.values[key] = val
	c.mu.Unlock()
}

// ApplyTo fills empty config fields from remembered values.
func (c *Cache) ApplyTo(cfg *Config) {
	if cfg.Backend.ServerURL == "" {
		cfg.Backend.ServerURL = c.String(CacheLastServerURL)
	}
	if cfg.Generation.Prompt == "" {
		cfg.Generation.Prompt = c.String(CacheLastPrompt)
	}
}
