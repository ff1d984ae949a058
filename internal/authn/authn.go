// Package authn signs and verifies the account tokens of the meeting API.
// Access and refresh tokens are HS256 JWTs whose subject is a user id; they
// share an issuer but carry different audiences and always expire.
package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/meeting-service/internal/application"
)

var (
	// ErrMissingToken is returned when no bearer token was presented.
	ErrMissingToken = errors.New("authn: access token required")
	// ErrInvalidToken is returned for tokens that fail verification or whose
	// subject no longer exists.
	ErrInvalidToken = errors.New("authn: invalid or expired token")
)

// MinSecretLength is the shortest signing secret accepted.
const MinSecretLength = 10

const (
	// Issuer is stamped on every access and refresh token.
	Issuer = "meeting-api"
	// AccessAudience scopes tokens accepted by the API middleware.
	AccessAudience = "meeting-api"
	// RefreshAudience scopes tokens accepted by the refresh endpoint.
	RefreshAudience = "meeting-api/refresh"
)

// Verifier signs tokens for one audience and checks tokens of that audience.
type Verifier struct {
	secret   []byte
	audience string
	users    application.UserDirectory
	now      func() time.Time
}

// NewVerifier constructs an access token verifier. users may be nil, in
// which case the subject is trusted without a directory lookup.
func NewVerifier(secret []byte, users application.UserDirectory, now func() time.Time) (*Verifier, error) {
	return newVerifier(secret, AccessAudience, users, now)
}

// NewRefreshVerifier constructs a verifier for refresh tokens.
func NewRefreshVerifier(secret []byte, users application.UserDirectory, now func() time.Time) (*Verifier, error) {
	return newVerifier(secret, RefreshAudience, users, now)
}

func newVerifier(secret []byte, audience string, users application.UserDirectory, now func() time.Time) (*Verifier, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("authn: secret must be at least %d bytes", MinSecretLength)
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: secret, audience: audience, users: users, now: now}, nil
}

// Sign mints a token for userID valid for ttl, which must be positive.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("authn: user id is required")
	}
	if ttl <= 0 {
		return "", errors.New("authn: token lifetime must be positive")
	}
	issued := v.now().UTC()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{v.audience},
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("authn: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token, checks its issuer, audience and expiry, and confirms
// its subject still exists.
func (v *Verifier) Verify(ctx context.Context, token string) (application.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return application.Principal{}, ErrMissingToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return application.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return application.Principal{}, ErrInvalidToken
	}

	if v.users != nil {
		if _, err := v.users.FindUserByID(ctx, claims.Subject); err != nil {
			if errors.Is(err, application.ErrNotFound) {
				return application.Principal{}, ErrInvalidToken
			}
			return application.Principal{}, fmt.Errorf("authn: resolve subject: %w", err)
		}
	}

	return application.Principal{UserID: claims.Subject}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
