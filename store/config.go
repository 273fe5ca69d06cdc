package store

// Config holds store initialization parameters.
type Config struct {
	Dest  string `json:"dest,omitempty"`  // Root directory for value and metadata files.
	Clean bool   `json:"clean,omitempty"` // Wipe Dest during setup.
}

// DefaultConfig returns the default store configuration (no destination).
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Dest != "" {
		c.Dest = source.Dest
	}
	if source.Clean {
		c.Clean = true
	}
}
