package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/kappi/internal/flagx"
	"github.com/dmitrijs2005/kappi/internal/timex"
)

// JSONConfig is the on-disk shape of the server configuration. Token
// validity accepts "168h" as well as integer nanoseconds.
type JSONConfig struct {
	Addr          *string         `json:"addr"`
	SecretKey     *string         `json:"secret_key"`
	TokenValidity *timex.Duration `json:"token_validity"`
	BcryptCost    *int            `json:"bcrypt_cost"`
	LogLevel      *string         `json:"log_level"`
	LogFormat     *string         `json:"log_format"`
}

// parseJSON loads the file named by -c/-config in args into config. Fields
// absent from the file keep their current value.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigPath(args)

	// nothing to load
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JSONConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	if c.Addr != nil {
		config.Addr = *c.Addr
	}
	if c.SecretKey != nil {
		config.SecretKey = *c.SecretKey
	}
	if c.TokenValidity != nil {
		config.TokenValidity = c.TokenValidity.Duration
	}
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
	if c.LogLevel != nil {
		config.LogLevel = *c.LogLevel
	}
	if c.LogFormat != nil {
		config.LogFormat = *c.LogFormat
	}
	return nil
}
