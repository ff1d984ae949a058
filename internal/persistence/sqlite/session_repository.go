package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
	}
}

// CreateSession stores a new session token.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) error {
	if session.ID == "" || session.UserID == "" || strings.TrimSpace(session.Token) == "" {
		return persistence.ErrConstraintViolation
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sessions (id, token, user_id, meeting_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.DB().ExecContext(ctx, query,
		session.ID,
		session.Token,
		session.UserID,
		nullString(session.MeetingID),
		formatTime(session.ExpiresAt),
		formatTime(session.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetSession retrieves a session by its token. Expiry is left to the caller.
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	query := `
		SELECT id, token, user_id, meeting_id, expires_at, created_at
		FROM sessions
		WHERE token = ?
	`

	var (
		session              persistence.Session
		meetingID            sql.NullString
		expiresAt, createdAt string
	)

	err := r.pool.DB().QueryRowContext(ctx, query, token).Scan(
		&session.ID,
		&session.Token,
		&session.UserID,
		&meetingID,
		&expiresAt,
		&createdAt,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	session.MeetingID = stringPtr(meetingID)
	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

var _ persistence.SessionRepository = (*SessionRepository)(nil)
