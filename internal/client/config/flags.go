package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/kappi/internal/flagx"
)

var knownFlags = []string{"-a", "-d", "-s", "-t", "-i", "-r", "-m", "-l", "-f"}

// parseFlags overlays cfg with the flags it knows about. Other flags in args
// (for example -c) are filtered out first so they do not cause parse errors.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("kappi", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the remote scan service")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.IntegritySalt, "s", cfg.IntegritySalt, "integrity salt")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	interval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "background sync interval (in seconds, 0 = off)")
	fs.Float64Var(&cfg.SubmitRate, "r", cfg.SubmitRate, "max submissions per second (0 = unlimited)")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format (text|json)")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	if *timeout < 0 || *interval < 0 {
		return fmt.Errorf("parse flags: negative duration")
	}

	// Only explicit flags touch durations; sub-second JSON values survive.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			cfg.RequestTimeout = time.Duration(*timeout) * time.Second
		case "i":
			cfg.SyncInterval = time.Duration(*interval) * time.Second
		}
	})
	return nil
}
