package config

import "time"

// Config holds runtime settings for the medkeeper client.
//
// Fields:
//   - ServerURL: base URL of the credential server.
//   - DatabasePath: local SQLite file holding the keyring and encrypted records.
//   - InactivityTimeout: idle time after which an unlocked session locks itself.
//   - PBKDF2Iterations: KEK derivation cost for newly created accounts; never
//     below 100 000. Existing accounts keep the count they were set up with.
//   - BackupDir: directory for .mkbak files.
//   - S3*: optional S3-compatible backup target; disabled while S3Bucket is empty.
//   - RestoreSessions: keep the unlocked session in process memory across
//     re-bootstraps (see services.MemorySessionStore).
type Config struct {
	ServerURL         string
	DatabasePath      string
	InactivityTimeout time.Duration
	PBKDF2Iterations  int
	BackupDir         string
	S3AccessKey       string
	S3SecretKey       string
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	RestoreSessions   bool
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DatabasePath = "medkeeper.db"
	c.InactivityTimeout = 15 * time.Minute
	c.PBKDF2Iterations = 100_000
	c.BackupDir = "backups"
	c.S3Region = "us-east-1"
	c.RestoreSessions = true
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
