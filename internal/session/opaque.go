package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/meeting-service/internal/application"
)

// opaqueTokenBytes is the entropy of an opaque token before hex encoding.
const opaqueTokenBytes = 32

// Record is a stored opaque session.
type Record struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	MeetingID *string   `json:"meeting_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists opaque session records.
type Store interface {
	Save(ctx context.Context, record Record) error
	// Load returns ErrNotFound when no record exists for token.
	Load(ctx context.Context, token string) (Record, error)
}

// OpaqueIssuer mints random tokens and keeps their claims in a Store.
type OpaqueIssuer struct {
	store Store
	opts  options
}

// NewOpaqueIssuer constructs an issuer backed by store.
func NewOpaqueIssuer(store Store, opts ...Option) (*OpaqueIssuer, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	return &OpaqueIssuer{store: store, opts: buildOptions(uuid.NewString, opts)}, nil
}

// IssueSession implements application.SessionIssuer.
func (i *OpaqueIssuer) IssueSession(ctx context.Context, userID string, meetingID *string) (application.SessionToken, error) {
	if strings.TrimSpace(userID) == "" {
		return application.SessionToken{}, errors.New("session: user id is required")
	}

	token, err := randomHex(opaqueTokenBytes)
	if err != nil {
		return application.SessionToken{}, err
	}

	now := i.opts.now().UTC()
	record := Record{
		ID:        i.opts.newID(),
		Token:     token,
		UserID:    userID,
		MeetingID: cloneString(meetingID),
		ExpiresAt: now.Add(i.opts.ttl),
		CreatedAt: now,
	}
	if err := i.store.Save(ctx, record); err != nil {
		return application.SessionToken{}, fmt.Errorf("session: save: %w", err)
	}

	return application.SessionToken{
		Token:     record.Token,
		UserID:    record.UserID,
		MeetingID: cloneString(record.MeetingID),
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Verify loads the record for token and rejects it once expired.
func (i *OpaqueIssuer) Verify(ctx context.Context, token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	record, err := i.store.Load(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return Claims{}, ErrInvalidToken
	}
	if err != nil {
		return Claims{}, fmt.Errorf("session: load: %w", err)
	}

	if !record.ExpiresAt.After(i.opts.now()) {
		return Claims{}, ErrExpired
	}

	return Claims{
		Token:     record.Token,
		UserID:    record.UserID,
		MeetingID: cloneString(record.MeetingID),
		ExpiresAt: record.ExpiresAt,
	}, nil
}

var _ application.SessionIssuer = (*OpaqueIssuer)(nil)
