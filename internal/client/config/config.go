package config

import "time"

// DefaultIntegritySalt is used when no salt is configured. Installs that care
// about tamper evidence across machines should set their own.
const DefaultIntegritySalt = "kappi-local-integrity"

// Config holds runtime settings for the kappi CLI.
type Config struct {
	ServerURL      string
	DatabasePath   string
	IntegritySalt  string
	RequestTimeout time.Duration
	SyncInterval   time.Duration
	SubmitRate     float64
	MetricsAddr    string
	LogLevel       string
	LogFormat      string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "kappi.db"
	c.IntegritySalt = DefaultIntegritySalt
	c.RequestTimeout = 10 * time.Second
	c.SyncInterval = 30 * time.Second
	c.SubmitRate = 0
	c.MetricsAddr = ""
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig builds a Config from defaults, then the JSON file named in args
// (if any), then the flags in args. args excludes the program name.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
