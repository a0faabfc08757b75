// Package config loads runtime configuration for the kappi CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the remote scan service
//	-d string   path of the local SQLite database (":memory:" for a throwaway one)
//	-s string   integrity salt mixed into every stored digest
//	-t int      per-request timeout (seconds)
//	-i int      background sync interval (seconds, 0 disables it)
//	-r float    max scan submissions per second (0 means unlimited)
//	-m string   address for the Prometheus /metrics listener (empty disables it)
//	-l string   log level: debug, info, warn, error
//	-f string   log format: text or json
//
// # JSON schema
//
// Durations use timex.Duration, so "10s" and integer nanoseconds both work:
//
//	{
//	  "server_url": "https://kappi.example.org",
//	  "database_path": "/var/lib/kappi/kappi.db",
//	  "integrity_salt": "change-me",
//	  "request_timeout": "10s",
//	  "sync_interval": "30s",
//	  "submit_rate": 2,
//	  "metrics_addr": "127.0.0.1:9090",
//	  "log_level": "debug",
//	  "log_format": "json"
//	}
//
// Keys absent from the file leave the current value untouched.
package config
