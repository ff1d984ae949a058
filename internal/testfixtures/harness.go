package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/meeting-service/internal/persistence"
	"github.com/example/meeting-service/internal/persistence/memory"
	"github.com/example/meeting-service/internal/persistence/sqlite"
)

// Harness provides repository access backed by one migrated storage driver.
type Harness struct {
	Name     string
	Users    persistence.UserRepository
	Meetings persistence.MeetingRepository
	Sessions persistence.SessionRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *Harness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// SeedUsers inserts the fixtures into the users table.
func (h *Harness) SeedUsers(tb testing.TB, users ...UserFixture) {
	tb.Helper()
	for _, user := range users {
		if err := h.Users.CreateUser(context.Background(), user.Persistence()); err != nil {
			tb.Fatalf("seed user %s: %v", user.ID, err)
		}
	}
}

// SeedMeetings inserts the fixtures into the meetings table.
func (h *Harness) SeedMeetings(tb testing.TB, meetings ...MeetingFixture) {
	tb.Helper()
	for _, meeting := range meetings {
		if err := h.Meetings.CreateMeeting(context.Background(), meeting.Persistence()); err != nil {
			tb.Fatalf("seed meeting %s: %v", meeting.ID, err)
		}
	}
}

// NewSQLiteHarness constructs a Harness using a temporary database file that
// is migrated automatically. The harness is closed when the test ends.
func NewSQLiteHarness(tb testing.TB) *Harness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "meetings.db")
	store, err := sqlite.Open(sqlite.Config{DSN: "file:" + path})
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &Harness{
		Name:     "sqlite",
		Users:    store.Users,
		Meetings: store.Meetings,
		Sessions: store.Sessions,
		cleanup:  func() { _ = store.Close() },
	}
	tb.Cleanup(harness.Close)
	return harness
}

// NewMemoryHarness constructs a Harness over the in-memory store.
func NewMemoryHarness(tb testing.TB) *Harness {
	tb.Helper()

	store := memory.New()
	harness := &Harness{
		Name:     "memory",
		Users:    store,
		Meetings: store,
		Sessions: store,
		cleanup:  func() { _ = store.Close() },
	}
	tb.Cleanup(harness.Close)
	return harness
}

// HarnessConstructors lists every driver harness for table driven tests.
func HarnessConstructors() map[string]func(testing.TB) *Harness {
	return map[string]func(testing.TB) *Harness{
		"memory": NewMemoryHarness,
		"sqlite": NewSQLiteHarness,
	}
}
