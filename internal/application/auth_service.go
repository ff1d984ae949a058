package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// CredentialStore exposes the account operations required by the auth service.
type CredentialStore interface {
	CreateUser(ctx context.Context, credentials UserCredentials) (User, error)
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
}

// TokenSigner mints a token for a user that stays valid for ttl.
type TokenSigner interface {
	Sign(userID string, ttl time.Duration) (string, error)
}

// TokenCodec signs tokens and verifies tokens it signed.
type TokenCodec interface {
	TokenSigner
	Verify(ctx context.Context, token string) (Principal, error)
}

// PasswordHasher encodes a plaintext password for storage.
type PasswordHasher func(password string) (string, error)

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// TokenSettings configures the token pair issued by the auth service.
type TokenSettings struct {
	Access     TokenSigner
	Refresh    TokenCodec
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

const (
	minPasswordLength    = 8
	minDisplayNameLength = 2
	maxDisplayNameLength = 50
)

// AuthService registers accounts and issues access and refresh tokens.
type AuthService struct {
	credentials    CredentialStore
	users          UserDirectory
	tokens         TokenSettings
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	idGenerator    func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(credentials CredentialStore, users UserDirectory, tokens TokenSettings, hash PasswordHasher, verify PasswordVerifier, idGenerator func() string, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(credentials, users, tokens, hash, verify, idGenerator, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(credentials CredentialStore, users UserDirectory, tokens TokenSettings, hash PasswordHasher, verify PasswordVerifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AuthService {
	if hash == nil {
		hash = HashPassword
	}
	if verify == nil {
		verify = VerifyPassword
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if tokens.AccessTTL <= 0 {
		tokens.AccessTTL = 15 * time.Minute
	}
	if tokens.RefreshTTL <= 0 {
		tokens.RefreshTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		credentials:    credentials,
		users:          users,
		tokens:         tokens,
		hashPassword:   hash,
		verifyPassword: verify,
		idGenerator:    idGenerator,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Register creates an account and signs the caller in.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (result AuthResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil {
		err = fmt.Errorf("credential store not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Register", "email", email)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "registration failed", err)
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "user registered")
	}()

	vErr := validateRegistration(email, params.Password, params.DisplayName)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var hashed string
	hashed, err = s.hashPassword(params.Password)
	if err != nil {
		err = fmt.Errorf("application: hash password: %w", err)
		return
	}

	now := s.now()
	var user User
	user, err = s.credentials.CreateUser(ctx, UserCredentials{
		User: User{
			ID:          s.idGenerator(),
			Email:       email,
			DisplayName: strings.TrimSpace(params.DisplayName),
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		PasswordHash: hashed,
	})
	if err != nil {
		return
	}

	result.User = user
	result.Tokens, err = s.issueTokens(user.ID)
	return
}

// Login checks the email and password pair and issues a token pair. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (result AuthResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.credentials == nil {
		err = fmt.Errorf("credential store not configured")
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Login", "email", email)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "authentication failed", err)
			return
		}
		logger.With("user_id", result.User.ID).InfoContext(ctx, "authentication succeeded")
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}

	if verr := s.verifyPassword(creds.PasswordHash, params.Password); verr != nil {
		if errors.Is(verr, ErrPasswordMismatch) {
			err = ErrInvalidCredentials
			return
		}
		err = fmt.Errorf("application: verify password: %w", verr)
		return
	}

	result.User = creds.User
	result.Tokens, err = s.issueTokens(creds.User.ID)
	return
}

// Refresh exchanges a refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (tokens AuthTokens, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.tokens.Refresh == nil || s.users == nil {
		err = fmt.Errorf("refresh tokens not configured")
		return
	}

	token := strings.TrimSpace(refreshToken)
	logger := s.loggerWith(ctx, "Refresh", "token_provided", token != "")
	var principal Principal
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "token refresh failed", err)
			return
		}
		logger.With("user_id", principal.UserID).InfoContext(ctx, "tokens refreshed")
	}()

	if token == "" {
		vErr := &ValidationError{}
		vErr.add("refresh_token", "refresh token is required")
		err = vErr
		return
	}

	principal, err = s.tokens.Refresh.Verify(ctx, token)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		return
	}

	if _, err = s.users.FindUserByID(ctx, principal.UserID); err != nil {
		if isNotFound(err) {
			err = ErrNotFound
		}
		return
	}

	tokens, err = s.issueTokens(principal.UserID)
	return
}

// CurrentUser returns the account of the authenticated principal.
func (s *AuthService) CurrentUser(ctx context.Context, principal Principal) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user directory not configured")
		return
	}

	logger := s.loggerWith(ctx, "CurrentUser", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to load current user", err)
		}
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = ErrUnauthorized
		return
	}

	user, err = s.users.FindUserByID(ctx, principal.UserID)
	if err != nil && isNotFound(err) {
		err = ErrNotFound
	}
	return
}

func (s *AuthService) issueTokens(userID string) (AuthTokens, error) {
	if s.tokens.Access == nil || s.tokens.Refresh == nil {
		return AuthTokens{}, fmt.Errorf("token signers not configured")
	}
	access, err := s.tokens.Access.Sign(userID, s.tokens.AccessTTL)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("application: sign access token: %w", err)
	}
	refresh, err := s.tokens.Refresh.Sign(userID, s.tokens.RefreshTTL)
	if err != nil {
		return AuthTokens{}, fmt.Errorf("application: sign refresh token: %w", err)
	}
	return AuthTokens{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        s.tokens.AccessTTL,
		RefreshExpiresIn: s.tokens.RefreshTTL,
	}, nil
}

func validateRegistration(email, password, displayName string) *ValidationError {
	vErr := &ValidationError{}

	if email == "" {
		vErr.add("email", "email is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		vErr.add("email", "email must be a valid address")
	}

	if utf8.RuneCountInString(password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	} else if !strongPassword(password) {
		vErr.add("password", "password must mix upper and lower case letters with a digit")
	}

	name := strings.TrimSpace(displayName)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		vErr.add("display_name", "display name is required")
	case n < minDisplayNameLength || n > maxDisplayNameLength:
		vErr.add("display_name", fmt.Sprintf("display name must be %d-%d characters", minDisplayNameLength, maxDisplayNameLength))
	}

	return vErr
}

func strongPassword(password string) bool {
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
