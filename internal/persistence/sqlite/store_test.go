package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

var referenceTime = time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "meetings.db")
	store, err := Open(Config{DSN: dsn})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func seedUser(t *testing.T, store *Store, id string) persistence.User {
	t.Helper()

	user := persistence.User{
		ID:           id,
		Email:        id + "@example.com",
		DisplayName:  "User " + id,
		PasswordHash: "hash",
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	if err := store.Users.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return user
}

func seedMeeting(t *testing.T, store *Store, id, hostID string, status persistence.MeetingStatus, createdAt time.Time) persistence.Meeting {
	t.Helper()

	meeting := persistence.Meeting{
		ID:          id,
		Title:       "Meeting " + id,
		HostID:      hostID,
		MaxCapacity: 3,
		Status:      status,
		CreatedAt:   createdAt,
	}
	if status != persistence.StatusScheduled {
		startedAt := createdAt.Add(time.Minute)
		meeting.StartedAt = &startedAt
	}
	if err := store.Meetings.CreateMeeting(context.Background(), meeting); err != nil {
		t.Fatalf("seed meeting %s: %v", id, err)
	}
	return meeting
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var count int
	if err := store.pool.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", count)
	}
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- header\n-- +migrate Up\nCREATE TABLE a (id TEXT);\n-- +migrate Down\nDROP TABLE a;\n"

	got := ExtractUpMigration(content)
	if got != "\nCREATE TABLE a (id TEXT);\n" {
		t.Fatalf("unexpected up section %q", got)
	}

	if got := ExtractUpMigration("SELECT 1;"); got != "SELECT 1;" {
		t.Fatalf("expected content without markers to be returned unchanged, got %q", got)
	}
}

func TestConfigDataSourceName(t *testing.T) {
	cfg := Config{DSN: "file:meetings.db?cache=shared", BusyTimeout: 2 * time.Second}

	want := "file:meetings.db?cache=shared&_pragma=busy_timeout(2000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"
	if got := cfg.dataSourceName(); got != want {
		t.Fatalf("unexpected dsn\n got: %s\nwant: %s", got, want)
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := seedUser(t, store, "alice")

	fetched, err := store.Users.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if fetched.Email != user.Email || !fetched.CreatedAt.Equal(referenceTime) {
		t.Fatalf("unexpected user: %#v", fetched)
	}

	byEmail, err := store.Users.GetUserByEmail(ctx, "  ALICE@example.com ")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Fatalf("expected %s, got %s", user.ID, byEmail.ID)
	}

	duplicate := user
	duplicate.ID = "alice-2"
	if err := store.Users.CreateUser(ctx, duplicate); !errorIs(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for duplicate email, got %v", err)
	}

	if _, err := store.Users.GetUser(ctx, "missing"); err != persistence.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedUser(t, store, "alice")
	seedMeeting(t, store, "m1", "alice", persistence.StatusActive, referenceTime)

	meetingID := "m1"
	session := persistence.Session{
		ID:        "s1",
		Token:     "token-1",
		UserID:    "alice",
		MeetingID: &meetingID,
		ExpiresAt: referenceTime.Add(2 * time.Hour),
		CreatedAt: referenceTime,
	}
	if err := store.Sessions.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	fetched, err := store.Sessions.GetSession(ctx, "token-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if fetched.UserID != "alice" || fetched.MeetingID == nil || *fetched.MeetingID != "m1" {
		t.Fatalf("unexpected session: %#v", fetched)
	}
	if !fetched.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("expected expiry %v, got %v", session.ExpiresAt, fetched.ExpiresAt)
	}

	again := session
	again.ID = "s2"
	if err := store.Sessions.CreateSession(ctx, again); !errorIs(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused token, got %v", err)
	}

	if _, err := store.Sessions.GetSession(ctx, "unknown"); err != persistence.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
