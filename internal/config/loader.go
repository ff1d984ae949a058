package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 10

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Session issuers and opaque session stores.
const (
	IssuerJWT    = "jwt"
	IssuerOpaque = "opaque"

	SessionStoreDatabase = "database"
	SessionStoreRedis    = "redis"
)

// Config captures environment driven configuration values for the meeting service.
type Config struct {
	HTTPPort          int           `env:"MEETING_HTTP_PORT" envDefault:"8080"`
	StorageDriver     string        `env:"MEETING_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLiteDSN         string        `env:"MEETING_SQLITE_DSN" envDefault:"file:meetings.db"`
	PostgresURL       string        `env:"MEETING_POSTGRES_URL"`
	AccessTokenSecret  string        `env:"MEETING_ACCESS_TOKEN_SECRET"`
	AccessTokenTTL     time.Duration `env:"MEETING_ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenSecret string        `env:"MEETING_REFRESH_TOKEN_SECRET"`
	RefreshTokenTTL    time.Duration `env:"MEETING_REFRESH_TOKEN_TTL" envDefault:"168h"`
	SessionIssuer     string        `env:"MEETING_SESSION_ISSUER" envDefault:"jwt"`
	SessionSecret     string        `env:"MEETING_SESSION_SECRET"`
	SessionTTL        time.Duration `env:"MEETING_SESSION_TTL" envDefault:"2h"`
	SessionStore      string        `env:"MEETING_SESSION_STORE" envDefault:"database"`
	RedisURL          string        `env:"MEETING_REDIS_URL"`
	DefaultCapacity   int           `env:"MEETING_DEFAULT_CAPACITY" envDefault:"50"`
	MaxCapacity       int           `env:"MEETING_MAX_CAPACITY" envDefault:"0"`
	ClientURL         string        `env:"MEETING_CLIENT_URL" envDefault:"http://localhost:5173"`
	LogLevel          string        `env:"MEETING_LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"MEETING_LOG_FORMAT" envDefault:"json"`
}

// Load parses configuration values from the current process environment.
//
// Optional fields fall back to their defaults. Values that fail to parse,
// required values that are absent and values outside their allowed range are
// reported together by variable name.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid environment values: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.SessionIssuer = strings.ToLower(strings.TrimSpace(c.SessionIssuer))
	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))
	c.SQLiteDSN = strings.TrimSpace(c.SQLiteDSN)
	c.PostgresURL = strings.TrimSpace(c.PostgresURL)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.AccessTokenSecret = strings.TrimSpace(c.AccessTokenSecret)
	c.RefreshTokenSecret = strings.TrimSpace(c.RefreshTokenSecret)
	c.SessionSecret = strings.TrimSpace(c.SessionSecret)
	c.ClientURL = strings.TrimSpace(c.ClientURL)
}

// Validate reports missing required values first, then invalid ones.
func (c Config) Validate() error {
	missing := make([]string, 0, 4)
	invalid := make([]string, 0, 4)

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		invalid = append(invalid, "MEETING_HTTP_PORT")
	}

	switch c.StorageDriver {
	case DriverSQLite:
		if c.SQLiteDSN == "" {
			missing = append(missing, "MEETING_SQLITE_DSN")
		}
	case DriverPostgres:
		if c.PostgresURL == "" {
			missing = append(missing, "MEETING_POSTGRES_URL")
		}
	case DriverMemory:
	default:
		invalid = append(invalid, "MEETING_STORAGE_DRIVER")
	}

	if c.AccessTokenSecret == "" {
		missing = append(missing, "MEETING_ACCESS_TOKEN_SECRET")
	} else if len(c.AccessTokenSecret) < MinSecretLength {
		invalid = append(invalid, "MEETING_ACCESS_TOKEN_SECRET")
	}
	if c.AccessTokenTTL <= 0 {
		invalid = append(invalid, "MEETING_ACCESS_TOKEN_TTL")
	}

	// Each token kind is signed with its own secret so one can never be
	// replayed as another.
	if c.RefreshTokenSecret == "" {
		missing = append(missing, "MEETING_REFRESH_TOKEN_SECRET")
	} else if len(c.RefreshTokenSecret) < MinSecretLength || c.RefreshTokenSecret == c.AccessTokenSecret {
		invalid = append(invalid, "MEETING_REFRESH_TOKEN_SECRET")
	}
	if c.RefreshTokenTTL <= 0 {
		invalid = append(invalid, "MEETING_REFRESH_TOKEN_TTL")
	}

	switch c.SessionIssuer {
	case IssuerJWT:
		switch {
		case c.SessionSecret == "":
			missing = append(missing, "MEETING_SESSION_SECRET")
		case len(c.SessionSecret) < MinSecretLength,
			c.SessionSecret == c.AccessTokenSecret,
			c.SessionSecret == c.RefreshTokenSecret:
			invalid = append(invalid, "MEETING_SESSION_SECRET")
		}
	case IssuerOpaque:
		switch c.SessionStore {
		case SessionStoreDatabase:
		case SessionStoreRedis:
			if c.RedisURL == "" {
				missing = append(missing, "MEETING_REDIS_URL")
			}
		default:
			invalid = append(invalid, "MEETING_SESSION_STORE")
		}
	default:
		invalid = append(invalid, "MEETING_SESSION_ISSUER")
	}

	if c.SessionTTL <= 0 {
		invalid = append(invalid, "MEETING_SESSION_TTL")
	}
	if c.DefaultCapacity <= 0 || (c.MaxCapacity > 0 && c.DefaultCapacity > c.MaxCapacity) {
		invalid = append(invalid, "MEETING_DEFAULT_CAPACITY")
	}
	if c.MaxCapacity < 0 {
		invalid = append(invalid, "MEETING_MAX_CAPACITY")
	}
	if c.ClientURL != "" {
		if u, err := url.Parse(c.ClientURL); err != nil || u.Scheme == "" || u.Host == "" {
			invalid = append(invalid, "MEETING_CLIENT_URL")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}
