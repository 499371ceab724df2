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
			"-a", "127.0.0.1:9090", "-d", "postgres://db", "-s", "secret", "-t", "5",
			"-o", "http://a.local, http://b.local",
		}, expected: &Config{
			EndpointAddrHTTP:            "127.0.0.1:9090",
			DatabaseDSN:                 "postgres://db",
			SecretKey:                   "secret",
			AccessTokenValidityDuration: 5 * time.Minute,
			AllowedOrigins:              []string{"http://a.local", "http://b.local"},
		}},
		{name: "foreign flags ignored", args: []string{"-x", "1", "-a", ":1"}, expected: &Config{
			EndpointAddrHTTP: ":1",
		}},
		{name: "bad int", args: []string{"-t", "abc"}, expectPanic: true},
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
