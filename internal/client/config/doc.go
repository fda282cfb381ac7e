// Package config loads runtime configuration for the sshvault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the sync server HTTP API
//	-d string   path to the local database file
//	-s int      background sync interval (seconds)
//	-i int      online status check interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "30s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_url": "https://vault.example.com",
//	  "database_path": "/home/user/.sshvault/sshvault.db",
//	  "sync_interval": "30s",
//	  "online_check_interval": "3s",
//	  "max_page_size": 100
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
