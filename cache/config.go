package cache

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/tailored-agentic-units/filecache/store"
)

const defaultMaxSize = 128

// Config holds initialization parameters for a Cache and its Store.
type Config struct {
	MaxSize int          `json:"max_size,omitempty"`
	Store   store.Config `json:"store"`
}

// DefaultConfig returns a Config with the default capacity and no store
// directory.
func DefaultConfig() Config {
	return Config{
		MaxSize: defaultMaxSize,
		Store:   store.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c. A zero MaxSize in source
// keeps the current capacity; write-through caches set it explicitly.
func (c *Config) Merge(source *Config) {
	c.Store.Merge(&source.Store)

	if source.MaxSize > 0 {
		c.MaxSize = source.MaxSize
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config. Comments and trailing commas are accepted.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(standardized, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
