package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if strings.TrimSpace(user.ID) == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, normalizeEmail(user.Email), user.DisplayName, user.PasswordHash,
		user.CreatedAt.UTC(), user.UpdatedAt.UTC(),
	)
	return mapError(err)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email address, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return s.getUser(ctx, `WHERE email = $1`, normalizeEmail(email))
}

func (s *Store) getUser(ctx context.Context, where, arg string) (persistence.User, error) {
	var user persistence.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, display_name, password_hash, created_at, updated_at FROM users `+where,
		arg,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return persistence.User{}, mapError(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// CreateSession stores a new session token.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) error {
	if session.ID == "" || session.UserID == "" || strings.TrimSpace(session.Token) == "" {
		return persistence.ErrConstraintViolation
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, token, user_id, meeting_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.Token, session.UserID, session.MeetingID,
		session.ExpiresAt.UTC(), session.CreatedAt.UTC(),
	)
	return mapError(err)
}

// GetSession retrieves a session by token.
func (s *Store) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	var session persistence.Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, token, user_id, meeting_id, expires_at, created_at
		FROM sessions WHERE token = $1`,
		strings.TrimSpace(token),
	).Scan(&session.ID, &session.Token, &session.UserID, &session.MeetingID, &session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		return persistence.Session{}, mapError(err)
	}
	session.ExpiresAt = session.ExpiresAt.UTC()
	session.CreatedAt = session.CreatedAt.UTC()
	return session, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
