// Package config loads runtime configuration for the resvault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see (*Config).LoadFile), named with --config.
//  3. Command-line flags, applied by the cli package on top.
//
// # JSON schema
//
// Timeout uses timex.Duration, so it can be a string like "30s" or integer
// nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "token_file": "/home/me/.config/resvault/credentials.json",
//	  "storage": "local",
//	  "encoding": "gzip",
//	  "transfer_speed": 512,
//	  "timeout": "30s"
//	}
package config
