package config

import "time"

// Config holds runtime settings for the sshvault CLI.
//
// Units: intervals are time.Duration values (e.g., 3*time.Second).
type Config struct {
	// ServerEndpointURL is the base URL of the sync authority's HTTP API.
	ServerEndpointURL string
	// DatabasePath is the SQLite file holding the local session store.
	DatabasePath string
	// SyncInterval is how often the background reconciler runs.
	SyncInterval time.Duration
	// OnlineCheckInterval is how often the client probes server reachability.
	OnlineCheckInterval time.Duration
	// MaxPageSize caps the page size accepted by list operations.
	MaxPageSize int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointURL = "http://127.0.0.1:8080"
	c.DatabasePath = "sshvault.db"
	c.SyncInterval = 30 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.MaxPageSize = 100
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
