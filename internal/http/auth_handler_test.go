package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/meeting-service/internal/application"
)

type authServiceStub struct {
	registered application.RegisterParams
	loggedIn   application.LoginParams
	refreshed  string
	user       application.User
	err        error
}

func (s *authServiceStub) result() application.AuthResult {
	return application.AuthResult{
		User: s.user,
		Tokens: application.AuthTokens{
			AccessToken:      "access",
			RefreshToken:     "refresh",
			ExpiresIn:        15 * time.Minute,
			RefreshExpiresIn: 7 * 24 * time.Hour,
		},
	}
}

func (s *authServiceStub) Register(_ context.Context, params application.RegisterParams) (application.AuthResult, error) {
	s.registered = params
	if s.err != nil {
		return application.AuthResult{}, s.err
	}
	return s.result(), nil
}

func (s *authServiceStub) Login(_ context.Context, params application.LoginParams) (application.AuthResult, error) {
	s.loggedIn = params
	if s.err != nil {
		return application.AuthResult{}, s.err
	}
	return s.result(), nil
}

func (s *authServiceStub) Refresh(_ context.Context, token string) (application.AuthTokens, error) {
	s.refreshed = token
	if s.err != nil {
		return application.AuthTokens{}, s.err
	}
	return s.result().Tokens, nil
}

func (s *authServiceStub) CurrentUser(_ context.Context, principal application.Principal) (application.User, error) {
	if s.err != nil {
		return application.User{}, s.err
	}
	user := s.user
	user.ID = principal.UserID
	return user, nil
}

func newAuthRouter(service *authServiceStub) http.Handler {
	verifier := verifierStub{tokens: map[string]string{"alice-token": "alice"}}
	return NewRouter(RouterConfig{
		Auth:         NewAuthHandler(service, nil),
		Authenticate: RequireAccessToken(verifier, nil),
	})
}

func serve(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthHandlers(t *testing.T) {
	t.Parallel()

	alice := application.User{ID: "alice", Email: "alice@example.com", DisplayName: "Alice", CreatedAt: fixedNow, UpdatedAt: fixedNow}

	t.Run("register returns the user and token pair", func(t *testing.T) {
		t.Parallel()
		service := &authServiceStub{user: alice}

		rec := serve(newAuthRouter(service), http.MethodPost, "/auth/register", "",
			`{"email":"alice@example.com","password":"Test1234","display_name":"Alice"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if service.registered.DisplayName != "Alice" || service.registered.Password != "Test1234" {
			t.Fatalf("unexpected params %#v", service.registered)
		}
		body := decode[authResponse](t, rec)
		if body.User.ID != "alice" || body.User.CreatedAt != "2024-03-04T09:30:00Z" {
			t.Fatalf("unexpected user %#v", body.User)
		}
		if body.AccessToken != "access" || body.RefreshToken != "refresh" || body.ExpiresIn != 900 || body.RefreshExpiresIn != 604800 {
			t.Fatalf("unexpected tokens %#v", body.tokensDTO)
		}
	})

	t.Run("register reports duplicate emails as 409", func(t *testing.T) {
		t.Parallel()
		service := &authServiceStub{err: application.ErrEmailTaken}

		rec := serve(newAuthRouter(service), http.MethodPost, "/auth/register", "", `{"email":"alice@example.com"}`)
		if body := decode[errorResponse](t, rec); rec.Code != http.StatusConflict || body.ErrorCode != codeEmailInUse {
			t.Fatalf("unexpected response %d %#v", rec.Code, body)
		}
	})

	t.Run("login does not need an access token", func(t *testing.T) {
		t.Parallel()
		service := &authServiceStub{user: alice}

		rec := serve(newAuthRouter(service), http.MethodPost, "/auth/login", "", `{"email":" alice@example.com ","password":"Test1234"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if service.loggedIn.Email != "alice@example.com" {
			t.Fatalf("unexpected params %#v", service.loggedIn)
		}
	})

	t.Run("login rejects bad credentials with 401", func(t *testing.T) {
		t.Parallel()
		service := &authServiceStub{err: application.ErrInvalidCredentials}

		rec := serve(newAuthRouter(service), http.MethodPost, "/auth/login", "", `{"email":"alice@example.com","password":"nope"}`)
		body := decode[errorResponse](t, rec)
		if rec.Code != http.StatusUnauthorized || body.ErrorCode != codeInvalidCredentials || body.Message != "Invalid email or password" {
			t.Fatalf("unexpected response %d %#v", rec.Code, body)
		}
	})

	t.Run("malformed bodies are 400", func(t *testing.T) {
		t.Parallel()
		for _, path := range []string{"/auth/register", "/auth/login", "/auth/refresh"} {
			rec := serve(newAuthRouter(&authServiceStub{}), http.MethodPost, path, "", `{"email":`)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("%s: expected 400, got %d", path, rec.Code)
			}
		}
	})

	t.Run("refresh returns a new token pair", func(t *testing.T) {
		t.Parallel()
		service := &authServiceStub{}

		rec := serve(newAuthRouter(service), http.MethodPost, "/auth/refresh", "", `{"refresh_token":"refresh"}`)
		if body := decode[tokensDTO](t, rec); rec.Code != http.StatusOK || body.AccessToken != "access" {
			t.Fatalf("unexpected response %d %#v", rec.Code, body)
		}
		if service.refreshed != "refresh" {
			t.Fatalf("expected the refresh token to reach the service, got %q", service.refreshed)
		}
	})

	t.Run("refresh maps invalid tokens to 401 and deleted users to 404", func(t *testing.T) {
		t.Parallel()
		cases := map[error]struct {
			status int
			code   string
		}{
			fmt.Errorf("%w: expired", application.ErrInvalidCredentials): {http.StatusUnauthorized, codeInvalidCredentials},
			application.ErrNotFound: {http.StatusNotFound, codeUserNotFound},
		}
		for err, want := range cases {
			rec := serve(newAuthRouter(&authServiceStub{err: err}), http.MethodPost, "/auth/refresh", "", `{"refresh_token":"x"}`)
			if body := decode[errorResponse](t, rec); rec.Code != want.status || body.ErrorCode != want.code {
				t.Fatalf("%v: unexpected response %d %#v", err, rec.Code, body)
			}
		}
	})

	t.Run("me requires an access token", func(t *testing.T) {
		t.Parallel()

		rec := serve(newAuthRouter(&authServiceStub{user: alice}), http.MethodGet, "/users/me", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("me returns the caller", func(t *testing.T) {
		t.Parallel()

		rec := serve(newAuthRouter(&authServiceStub{user: alice}), http.MethodGet, "/users/me", "alice-token", "")
		body := decode[currentUserResponse](t, rec)
		if rec.Code != http.StatusOK || body.User.ID != "alice" || body.User.DisplayName != "Alice" {
			t.Fatalf("unexpected response %d %#v", rec.Code, body)
		}
	})

	t.Run("me reports a deleted account as 404", func(t *testing.T) {
		t.Parallel()

		rec := serve(newAuthRouter(&authServiceStub{err: application.ErrNotFound}), http.MethodGet, "/users/me", "alice-token", "")
		if body := decode[errorResponse](t, rec); rec.Code != http.StatusNotFound || body.ErrorCode != codeUserNotFound {
			t.Fatalf("unexpected response %d %#v", rec.Code, body)
		}
	})
}
