package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/meeting-service/internal/persistence"
)

// RepositoryStore keeps opaque sessions in the relational sessions table.
type RepositoryStore struct {
	sessions persistence.SessionRepository
}

// NewRepositoryStore wraps a persistence session repository.
func NewRepositoryStore(sessions persistence.SessionRepository) *RepositoryStore {
	return &RepositoryStore{sessions: sessions}
}

// Save implements Store.
func (s *RepositoryStore) Save(ctx context.Context, record Record) error {
	return s.sessions.CreateSession(ctx, persistence.Session{
		ID:        record.ID,
		Token:     record.Token,
		UserID:    record.UserID,
		MeetingID: record.MeetingID,
		ExpiresAt: record.ExpiresAt,
		CreatedAt: record.CreatedAt,
	})
}

// Load implements Store.
func (s *RepositoryStore) Load(ctx context.Context, token string) (Record, error) {
	stored, err := s.sessions.GetSession(ctx, token)
	if errors.Is(err, persistence.ErrNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        stored.ID,
		Token:     stored.Token,
		UserID:    stored.UserID,
		MeetingID: stored.MeetingID,
		ExpiresAt: stored.ExpiresAt,
		CreatedAt: stored.CreatedAt,
	}, nil
}

// RedisStore keeps opaque sessions as JSON values whose Redis TTL matches
// the session expiry.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedisStore constructs a store on client. An empty prefix defaults to
// "meeting:".
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "meeting:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, now: time.Now}
}

func (s *RedisStore) sessionKey(token string) string {
	return s.keyPrefix + "session:" + token
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, record Record) error {
	ttl := record.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("redis: session %s already expired", record.ID)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis: encode session %s: %w", record.ID, err)
	}

	ok, err := s.client.SetNX(ctx, s.sessionKey(record.Token), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: store session %s: %w", record.ID, err)
	}
	if !ok {
		return fmt.Errorf("redis: session token collision for %s", record.ID)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, token string) (Record, error) {
	payload, err := s.client.Get(ctx, s.sessionKey(strings.TrimSpace(token))).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis: load session: %w", err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return Record{}, fmt.Errorf("redis: decode session: %w", err)
	}
	return record, nil
}

var (
	_ Store = (*RepositoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
