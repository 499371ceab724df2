// Package config loads runtime configuration for the medkeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   credential server base URL
//	-d string   local SQLite database path
//	-i int      inactivity timeout (minutes)
//	-k int      PBKDF2 iterations
//	-b string   backup directory
//	-u string   S3 access key
//	-p string   S3 secret key
//	-e string   S3 endpoint
//	-g string   S3 region
//	-n string   S3 bucket
//	-r bool     restore the unlocked session within the running process
//
// # JSON schema
//
// Durations accept strings like "15m" or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "database_path": "medkeeper.db",
//	  "inactivity_timeout": "15m",
//	  "pbkdf2_iterations": 100000,
//	  "backup_dir": "backups",
//	  "restore_sessions": true
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
