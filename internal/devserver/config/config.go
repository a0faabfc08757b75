// Package config handles configuration for the development server,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/kappi/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// Config holds runtime settings for the development server.
//
// Fields:
//   - Addr: bind address for the HTTP endpoint.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Empty means a random
//     key per run, so tokens do not survive a restart.
//   - TokenValidity: lifetime of issued tokens.
//   - BcryptCost: cost used to hash passwords.
//   - LogLevel / LogFormat: logger settings.
type Config struct {
	Addr          string
	SecretKey     string
	TokenValidity time.Duration
	BcryptCost    int
	LogLevel      string
	LogFormat     string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.SecretKey = ""
	c.TokenValidity = common.CredentialTTL
	c.BcryptCost = bcrypt.DefaultCost
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags. args
// excludes the program name.
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
