// Package config handles configuration for the credential server,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the medkeeper credential server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the HTTP API.
//   - DatabaseDSN: "postgres://..." selects PostgreSQL (pgx); anything else is a SQLite file.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use the default in prod.
//   - AccessTokenValidityDuration: lifetime of tokens issued on setup and login.
//   - AllowedOrigins: CORS origins for browser front ends.
type Config struct {
	EndpointAddrHTTP            string
	DatabaseDSN                 string
	SecretKey                   string
	AccessTokenValidityDuration time.Duration
	AllowedOrigins              []string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secret key must be overridden outside development.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = "127.0.0.1:8080"
	c.DatabaseDSN = "medkeeper-server.db"
	c.SecretKey = "secretKey"
	c.AccessTokenValidityDuration = 30 * time.Minute
	c.AllowedOrigins = []string{"http://localhost:5173"}
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
// args are the process arguments without the program name.
func LoadConfig(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
