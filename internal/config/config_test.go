package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-16-chars!!"

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9000
base_url = "http://flix.local"

[database]
path = "/tmp/flix.db"

[auth]
jwt_secret = "`+testSecret+`"
session_ttl = "24h"
`), 0o644))

	t.Setenv("PORT", "9100")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env wins over the file")
	assert.Equal(t, "http://flix.local", cfg.Server.BaseURL)
	assert.Equal(t, "/tmp/flix.db", cfg.Database.Path)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Auth.OTPTTL.Duration)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "lf_", cfg.Server.CookiePrefix, "defaults survive")
	assert.Equal(t, "http://flix.local/auth/callback", cfg.CallbackURL())
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = "), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port", map[string]string{"PORT": "eighty"}},
		{"secure cookies", map[string]string{"SECURE_COOKIES": "maybe"}},
		{"session ttl", map[string]string{"SESSION_TTL": "a week"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			assert.Error(t, cfg.applyEnv(envOf(tt.env)))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Auth.JWTSecret = testSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "JWT_SECRET"},
		{"half google", func(c *Config) { c.Google.ClientID = "id" }, "GOOGLE_CLIENT_ID"},
		{"https without secure cookies", func(c *Config) { c.Server.BaseURL = "https://flix.example" }, "SECURE_COOKIES"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGoogleEnabled(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.GoogleEnabled())

	cfg.Google = GoogleConfig{ClientID: "id", ClientSecret: "secret"}
	assert.True(t, cfg.GoogleEnabled())
}
