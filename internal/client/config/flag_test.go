package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{
			"-a", "http://srv:9090", "-d", "local.db", "-i", "5", "-k", "200000", "-b", "bk",
			"-u", "ak", "-p", "sk", "-e", "http://minio:9000", "-g", "eu-west-1", "-n", "vault", "-r=false",
		}, expected: &Config{
			ServerURL: "http://srv:9090", DatabasePath: "local.db", InactivityTimeout: 5 * time.Minute,
			PBKDF2Iterations: 200_000, BackupDir: "bk", S3AccessKey: "ak", S3SecretKey: "sk",
			S3Endpoint: "http://minio:9000", S3Region: "eu-west-1", S3Bucket: "vault", RestoreSessions: false,
		}},
		{name: "incorrect inactivity", args: []string{"-i", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config, tt.args) })
				assert.Empty(t, cmp.Diff(tt.expected, config))
			} else {
				require.Panics(t, func() { parseFlags(config, tt.args) })
			}
		})
	}
}
