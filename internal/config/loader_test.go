package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"MEETING_HTTP_PORT",
	"MEETING_STORAGE_DRIVER",
	"MEETING_SQLITE_DSN",
	"MEETING_POSTGRES_URL",
	"MEETING_ACCESS_TOKEN_SECRET",
	"MEETING_ACCESS_TOKEN_TTL",
	"MEETING_REFRESH_TOKEN_SECRET",
	"MEETING_REFRESH_TOKEN_TTL",
	"MEETING_SESSION_ISSUER",
	"MEETING_SESSION_SECRET",
	"MEETING_SESSION_TTL",
	"MEETING_SESSION_STORE",
	"MEETING_REDIS_URL",
	"MEETING_DEFAULT_CAPACITY",
	"MEETING_MAX_CAPACITY",
	"MEETING_CLIENT_URL",
	"MEETING_LOG_LEVEL",
	"MEETING_LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		// Setenv registers the restore; Unsetenv then removes the value.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEETING_ACCESS_TOKEN_SECRET", "access-secret")
		t.Setenv("MEETING_REFRESH_TOKEN_SECRET", "refresh-secret")
		t.Setenv("MEETING_SESSION_SECRET", "session-secret")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.StorageDriver != DriverSQLite || cfg.SQLiteDSN != "file:meetings.db" {
			t.Fatalf("unexpected storage defaults: %q %q", cfg.StorageDriver, cfg.SQLiteDSN)
		}
		if cfg.SessionIssuer != IssuerJWT || cfg.SessionTTL != 2*time.Hour {
			t.Fatalf("unexpected session defaults: %q %s", cfg.SessionIssuer, cfg.SessionTTL)
		}
		if cfg.DefaultCapacity != 50 || cfg.MaxCapacity != 0 {
			t.Fatalf("unexpected capacity defaults: %d %d", cfg.DefaultCapacity, cfg.MaxCapacity)
		}
		if cfg.ClientURL != "http://localhost:5173" {
			t.Fatalf("unexpected client URL %q", cfg.ClientURL)
		}
		if cfg.AccessTokenTTL != 15*time.Minute || cfg.RefreshTokenTTL != 7*24*time.Hour {
			t.Fatalf("unexpected token lifetimes: %s %s", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
		}
		if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
			t.Fatalf("unexpected log defaults: %q %q", cfg.LogLevel, cfg.LogFormat)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "missing required environment variables: MEETING_ACCESS_TOKEN_SECRET, MEETING_REFRESH_TOKEN_SECRET, MEETING_SESSION_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("requires driver specific values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEETING_ACCESS_TOKEN_SECRET", "access-secret")
		t.Setenv("MEETING_REFRESH_TOKEN_SECRET", "refresh-secret")
		t.Setenv("MEETING_STORAGE_DRIVER", "postgres")
		t.Setenv("MEETING_SESSION_ISSUER", "opaque")
		t.Setenv("MEETING_SESSION_STORE", "redis")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for missing driver values")
		}
		expected := "missing required environment variables: MEETING_POSTGRES_URL, MEETING_REDIS_URL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEETING_ACCESS_TOKEN_SECRET", "short")
		t.Setenv("MEETING_REFRESH_TOKEN_SECRET", "refresh-secret")
		t.Setenv("MEETING_SESSION_SECRET", "session-secret")
		t.Setenv("MEETING_STORAGE_DRIVER", "mysql")
		t.Setenv("MEETING_MAX_CAPACITY", "10")
		t.Setenv("MEETING_DEFAULT_CAPACITY", "20")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "invalid environment values: MEETING_STORAGE_DRIVER, MEETING_ACCESS_TOKEN_SECRET, MEETING_DEFAULT_CAPACITY"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("rejects secrets shared between token kinds", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEETING_ACCESS_TOKEN_SECRET", "shared-secret")
		t.Setenv("MEETING_REFRESH_TOKEN_SECRET", "shared-secret")
		t.Setenv("MEETING_SESSION_SECRET", "shared-secret")

		_, err := Load()
		expected := "invalid environment values: MEETING_REFRESH_TOKEN_SECRET, MEETING_SESSION_SECRET"
		if err == nil || err.Error() != expected {
			t.Fatalf("expected %q, got %v", expected, err)
		}
	})

	t.Run("rejects a session secret equal to the access secret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEETING_ACCESS_TOKEN_SECRET", "access-secret")
		t.Setenv("MEETING_REFRESH_TOKEN_SECRET", "refresh-secret")
		t.Setenv("MEETING_SESSION_SECRET", "access-secret")

		_, err := Load()
		expected := "invalid environment values: MEETING_SESSION_SECRET"
		if err == nil || err.Error() != expected {
			t.Fatalf("expected %q, got %v", expected, err)
		}
	})

	t.Run("rejects unparsable numbers", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEETING_ACCESS_TOKEN_SECRET", "access-secret")
		t.Setenv("MEETING_REFRESH_TOKEN_SECRET", "refresh-secret")
		t.Setenv("MEETING_SESSION_SECRET", "session-secret")
		t.Setenv("MEETING_HTTP_PORT", "eighty")

		_, err := Load()
		if err == nil || !strings.HasPrefix(err.Error(), "invalid environment values:") {
			t.Fatalf("expected parse failure, got %v", err)
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MEETING_ACCESS_TOKEN_SECRET", "access-secret")
		t.Setenv("MEETING_REFRESH_TOKEN_SECRET", "refresh-secret")
		t.Setenv("MEETING_SESSION_ISSUER", "Opaque")
		t.Setenv("MEETING_HTTP_PORT", "9090")
		t.Setenv("MEETING_STORAGE_DRIVER", "memory")
		t.Setenv("MEETING_SESSION_TTL", "30m")
		t.Setenv("MEETING_DEFAULT_CAPACITY", "10")
		t.Setenv("MEETING_MAX_CAPACITY", "100")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.SessionTTL != 30*time.Minute {
			t.Fatalf("expected session TTL 30m, got %s", cfg.SessionTTL)
		}
		if cfg.SessionIssuer != IssuerOpaque || cfg.SessionStore != SessionStoreDatabase {
			t.Fatalf("unexpected session settings: %q %q", cfg.SessionIssuer, cfg.SessionStore)
		}
		if cfg.DefaultCapacity != 10 || cfg.MaxCapacity != 100 {
			t.Fatalf("unexpected capacities: %d %d", cfg.DefaultCapacity, cfg.MaxCapacity)
		}
		if cfg.HTTPPort != 9090 || cfg.StorageDriver != DriverMemory {
			t.Fatalf("unexpected port/driver: %d %q", cfg.HTTPPort, cfg.StorageDriver)
		}
	})
}
