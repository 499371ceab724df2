package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:8080", c.EndpointAddrHTTP)
	assert.Equal(t, "medkeeper-server.db", c.DatabaseDSN)
	assert.Equal(t, "secretKey", c.SecretKey)
	assert.Equal(t, 30*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, []string{"http://localhost:5173"}, c.AllowedOrigins)
}

func TestLoadConfig_UsesDefaultsWithoutArgs(t *testing.T) {
	c := LoadConfig(nil)
	require.NotNil(t, c, "LoadConfig must not return nil")

	var want Config
	want.LoadDefaults()
	assert.Equal(t, want, *c)
}

func TestLoadConfig_FlagsOverrideJSON(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"database_dsn": "from-json.db",
		"secret_key":   "json-secret",
	})

	c := LoadConfig([]string{"-c", path, "-s", "flag-secret"})

	assert.Equal(t, "from-json.db", c.DatabaseDSN)
	assert.Equal(t, "flag-secret", c.SecretKey)
}
