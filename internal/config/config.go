// Package config loads the server configuration.
//
// Sources, later ones winning:
//
//  1. built-in defaults
//  2. a TOML file (optional, see config.example.toml)
//  3. environment variables (a .env file is loaded into the environment by main)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as "15m" or "168h" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Google   GoogleConfig   `toml:"google"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Port          int      `toml:"port"`
	BaseURL       string   `toml:"base_url"` // public origin, used for callbacks and invite links
	CORSOrigins   []string `toml:"cors_origins"`
	SecureCookies bool     `toml:"secure_cookies"`
	CookiePrefix  string   `toml:"cookie_prefix"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type AuthConfig struct {
	JWTSecret       string   `toml:"jwt_secret"`
	SessionTTL      Duration `toml:"session_ttl"`
	OTPTTL          Duration `toml:"otp_ttl"`
	JanitorInterval Duration `toml:"janitor_interval"`
}

// GoogleConfig enables Google sign-in when both fields are set.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text (colored) or json
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			BaseURL:      "http://localhost:8080",
			CookiePrefix: "lf_",
		},
		Database: DatabaseConfig{Path: "data/list-flix.db"},
		Auth: AuthConfig{
			SessionTTL:      Duration{7 * 24 * time.Hour},
			OTPTTL:          Duration{15 * time.Minute},
			JanitorInterval: Duration{10 * time.Minute},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	str("BASE_URL", &c.Server.BaseURL)
	str("DB_PATH", &c.Database.Path)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	str("GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	if v := getenv("SECURE_COOKIES"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SECURE_COOKIES %q", v)
		}
		c.Server.SecureCookies = secure
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, o)
			}
		}
	}

	for key, dst := range map[string]*Duration{
		"SESSION_TTL": &c.Auth.SessionTTL,
		"OTP_TTL":     &c.Auth.OTPTTL,
	} {
		if v := getenv(key); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
		}
	}
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Auth.SessionTTL.Duration <= 0 || c.Auth.OTPTTL.Duration <= 0 || c.Auth.JanitorInterval.Duration <= 0 {
		errs = append(errs, errors.New("session_ttl, otp_ttl and janitor_interval must be positive"))
	}
	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}
	if strings.HasPrefix(strings.ToLower(c.Server.BaseURL), "https://") && !c.Server.SecureCookies {
		errs = append(errs, errors.New("BASE_URL is https but SECURE_COOKIES is false"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// GoogleEnabled reports whether Google credentials are configured.
func (c Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// CallbackURL is where both providers send the browser back to.
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.Server.BaseURL, "/") + "/auth/callback"
}

func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return level, nil
}
