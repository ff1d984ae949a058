// Package bootstrap assembles the meeting service from configuration: it
// opens the selected storage driver, builds the session issuer and wires the
// application services behind the HTTP router.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/example/meeting-service/internal/config"
	"github.com/example/meeting-service/internal/persistence"
	"github.com/example/meeting-service/internal/persistence/memory"
	"github.com/example/meeting-service/internal/persistence/postgres"
	"github.com/example/meeting-service/internal/persistence/sqlite"
)

// Storage is an opened and migrated storage driver.
type Storage struct {
	Driver   string
	Users    persistence.UserRepository
	Meetings persistence.MeetingRepository
	Sessions persistence.SessionRepository

	ping  func(context.Context) error
	close func() error
}

// OpenStorage opens the driver named in cfg and applies its schema.
func OpenStorage(ctx context.Context, cfg config.Config) (*Storage, error) {
	var (
		storage *Storage
		migrate func(context.Context) error
	)

	switch cfg.StorageDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(sqlite.Config{DSN: cfg.SQLiteDSN})
		if err != nil {
			return nil, err
		}
		storage = &Storage{
			Users:    store.Users,
			Meetings: store.Meetings,
			Sessions: store.Sessions,
			ping:     store.Ping,
			close:    store.Close,
		}
		migrate = store.Migrate
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		storage = &Storage{Users: store, Meetings: store, Sessions: store, ping: store.Ping, close: store.Close}
		migrate = store.Migrate
	case config.DriverMemory:
		store := memory.New()
		storage = &Storage{Users: store, Meetings: store, Sessions: store, ping: store.Ping, close: store.Close}
		migrate = store.Migrate
	default:
		return nil, fmt.Errorf("bootstrap: unknown storage driver %q", cfg.StorageDriver)
	}
	storage.Driver = cfg.StorageDriver

	if err := migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, err
	}
	return storage, nil
}

// Ping checks that the storage is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the storage.
func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
