package sqlite

import (
	"context"
	"fmt"
)

// Store bundles the SQLite repositories over one connection pool.
type Store struct {
	pool     *ConnectionPool
	Users    *UserRepository
	Meetings *MeetingRepository
	Sessions *SessionRepository
}

// Open connects to the configured database. Call Migrate before use.
func Open(cfg Config) (*Store, error) {
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}

	return &Store{
		pool:     pool,
		Users:    NewUserRepository(pool),
		Meetings: NewMeetingRepository(pool),
		Sessions: NewSessionRepository(pool),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := ApplyMigrations(ctx, s.pool.DB(), migrationFiles, "migrations"); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
