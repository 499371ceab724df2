package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/flagx"
	"github.com/dmitrijs2005/medkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the server config file. Durations accept
// "30m" strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	AllowedOrigins              []string       `json:"allowed_origins"`
}

// parseJson overlays values from the file named by -c/-config. Only fields
// present in the file override the current values. A missing flag loads
// nothing; an unreadable or invalid file panics.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.ConfigPath(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	}
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
}
