package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/kappi/internal/flagx"
	"github.com/dmitrijs2005/kappi/internal/timex"
)

// JSONConfig is the on-disk shape. Pointer fields distinguish "absent" from
// a zero value.
type JSONConfig struct {
	ServerURL      *string         `json:"server_url"`
	DatabasePath   *string         `json:"database_path"`
	IntegritySalt  *string         `json:"integrity_salt"`
	RequestTimeout *timex.Duration `json:"request_timeout"`
	SyncInterval   *timex.Duration `json:"sync_interval"`
	SubmitRate     *float64        `json:"submit_rate"`
	MetricsAddr    *string         `json:"metrics_addr"`
	LogLevel       *string         `json:"log_level"`
	LogFormat      *string         `json:"log_format"`
}

// parseJSON overlays cfg with the file named by -c/-config in args. No flag,
// no change.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	jc.apply(cfg)
	return nil
}

func (jc JSONConfig) apply(cfg *Config) {
	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.IntegritySalt, jc.IntegritySalt)
	setString(&cfg.MetricsAddr, jc.MetricsAddr)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.SubmitRate != nil {
		cfg.SubmitRate = *jc.SubmitRate
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
