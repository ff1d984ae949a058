package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/meeting-service/internal/application"
)

// MinSecretLength is the shortest signing secret accepted.
const MinSecretLength = 10

// JWTIssuer mints HS256 tokens carrying the user as subject and the meeting
// as a private claim. Nothing is stored; Verify checks the signature and
// expiry.
type JWTIssuer struct {
	secret []byte
	issuer string
	opts   options
}

type sessionClaims struct {
	jwt.RegisteredClaims
	MeetingID string `json:"meeting_id,omitempty"`
}

// NewJWTIssuer constructs an issuer signing with secret.
func NewJWTIssuer(secret []byte, issuer string, opts ...Option) (*JWTIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session: secret must be at least %d bytes", MinSecretLength)
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "meeting-service"
	}
	return &JWTIssuer{
		secret: secret,
		issuer: issuer,
		opts:   buildOptions(uuid.NewString, opts),
	}, nil
}

// IssueSession implements application.SessionIssuer.
func (i *JWTIssuer) IssueSession(ctx context.Context, userID string, meetingID *string) (application.SessionToken, error) {
	if strings.TrimSpace(userID) == "" {
		return application.SessionToken{}, errors.New("session: user id is required")
	}

	issuedAt := i.opts.now().UTC()
	expiresAt := issuedAt.Add(i.opts.ttl)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        i.opts.newID(),
			Issuer:    i.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if meetingID != nil {
		claims.MeetingID = *meetingID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return application.SessionToken{}, fmt.Errorf("session: sign token: %w", err)
	}

	return application.SessionToken{
		Token:     signed,
		UserID:    userID,
		MeetingID: cloneString(meetingID),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify parses token and returns its claims.
func (i *JWTIssuer) Verify(ctx context.Context, token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.opts.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		Token:     token,
		UserID:    parsed.Subject,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}
	if parsed.MeetingID != "" {
		meetingID := parsed.MeetingID
		claims.MeetingID = &meetingID
	}
	return claims, nil
}

var _ application.SessionIssuer = (*JWTIssuer)(nil)
