// Package session issues and verifies the short lived tokens handed out on
// a successful meeting join. Expiry is checked lazily on verification; no
// token is ever revoked or swept.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidToken is returned for tokens that are malformed, unknown or
	// carry a bad signature.
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrExpired is returned for tokens past their expiry.
	ErrExpired = errors.New("session: token expired")
	// ErrNotFound is returned by stores that hold no record for a token.
	ErrNotFound = errors.New("session: not found")
)

// DefaultTTL is the session lifetime used when none is configured.
const DefaultTTL = 2 * time.Hour

// Claims is the verified content of a session token.
type Claims struct {
	Token     string
	UserID    string
	MeetingID *string
	ExpiresAt time.Time
}

// Option customises an issuer.
type Option func(*options)

type options struct {
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides how session identifiers are generated.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

func buildOptions(newID func() string, opts []Option) options {
	o := options{ttl: DefaultTTL, now: time.Now, newID: newID}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// randomHex returns n random bytes hex encoded.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
