package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"server_url":         "http://www.example:9000",
		"inactivity_timeout": "2m",
		"pbkdf2_iterations":  150000,
		"restore_sessions":   false,
		"s3_bucket":          "vault",
	})

	t.Run("loads from flags", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg, []string{"-config", pathFlag})

		assert.Equal(t, "http://www.example:9000", cfg.ServerURL)
		assert.Equal(t, 2*time.Minute, cfg.InactivityTimeout)
		assert.Equal(t, 150000, cfg.PBKDF2Iterations)
		assert.False(t, cfg.RestoreSessions)
		assert.Equal(t, "vault", cfg.S3Bucket)
		assert.Equal(t, "medkeeper.db", cfg.DatabasePath)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		cfg := &Config{ServerURL: "defaults:1234", InactivityTimeout: 42 * time.Second}
		parseJson(cfg, nil)

		assert.Equal(t, "defaults:1234", cfg.ServerURL)
		assert.Equal(t, 42*time.Second, cfg.InactivityTimeout)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg, []string{"-c", bad}) })
	})
}
