package config

import (
	"strconv"
	"sync"
	"time"
)

// Config manages service configuration as flat dotted keys ("server.http_port").
type Config struct {
	mu     sync.RWMutex
	values map[string]string

	// Define which keys require restart when changed
	restartKeys []string
}

// New creates a new configuration manager
func New() *Config {
	return &Config{
		values: make(map[string]string),
		restartKeys: []string{
			KeyHTTPPort,
			KeyConnectionsDigest,
		},
	}
}

// Get retrieves a configuration value
func (c *Config) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetString returns the value for key, or def when unset.
func (c *Config) GetString(key, def string) string {
	if v := c.Get(key); v != "" {
		return v
	}
	return def
}

// GetInt returns the integer value for key, or def when unset or malformed.
func (c *Config) GetInt(key string, def int) int {
	v := c.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetMillis reads an integer millisecond value as a duration.
func (c *Config) GetMillis(key string, def time.Duration) time.Duration {
	n := c.GetInt(key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// GetAll returns a copy of all configuration values
func (c *Config) GetAll() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copy := make(map[string]string, len(c.values))
	for k, v := range c.values {
		copy[k] = v
	}
	return copy
}

// Update updates configuration values
func (c *Config) Update(values map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range values {
		c.values[k] = v
	}
}

// RequiresRestart reports whether a key that is only read at startup differs
// from oldConfig. Sessions and the listener are not rebuilt on reload.
func (c *Config) RequiresRestart(oldConfig map[string]string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, key := range c.restartKeys {
		if oldConfig[key] != c.values[key] {
			return true
		}
	}

	return false
}
