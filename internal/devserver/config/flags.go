package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/kappi/internal/flagx"
	"golang.org/x/crypto/bcrypt"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   bind address (e.g., ":8080")
//	-s string   JWT HMAC secret key
//	-t int      token validity, hours
//	-b int      bcrypt cost
//	-l string   log level
//	-f string   log format (text|json)
//
// Other flags are filtered out first with flagx.FilterArgs.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-s", "-t", "-b", "-l", "-f"})

	fs := flag.NewFlagSet("devserver", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.Addr, "a", config.Addr, "address and port to run server")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	validity := fs.Int("t", int(config.TokenValidity.Hours()), "token validity (in hours)")
	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format (text|json)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if config.BcryptCost < bcrypt.MinCost || config.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("parse flags: bcrypt cost %d out of range", config.BcryptCost)
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "t" {
			return
		}
		if *validity <= 0 {
			err = fmt.Errorf("parse flags: token validity must be positive")
			return
		}
		config.TokenValidity = time.Duration(*validity) * time.Hour
	})
	return err
}
