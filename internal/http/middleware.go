package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/authn"
	"github.com/example/meeting-service/internal/logging"
)

// AccessTokenVerifier resolves a bearer access token to a principal.
type AccessTokenVerifier interface {
	Verify(ctx context.Context, token string) (application.Principal, error)
}

// RequireAccessToken rejects requests without a valid bearer token and
// attaches the verified principal to the request context.
func RequireAccessToken(verifier AccessTokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := authn.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthenticated, errMissingToken)
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, authn.ErrInvalidToken), errors.Is(err, authn.ErrMissingToken):
					responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthenticated, errInvalidToken)
				default:
					responder.loggerFor(r.Context()).ErrorContext(r.Context(), "access token verification failed", "error", err)
					responder.writeError(r.Context(), w, http.StatusInternalServerError, codeInternal, errInternal)
				}
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger attaches a request scoped logger to the context and logs the
// outcome of every request.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// CORS allows browser calls from origin. An empty origin disables the
// middleware.
func CORS(origin string) func(http.Handler) http.Handler {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")

	return func(next http.Handler) http.Handler {
		if origin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Origin") == origin {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
					h.Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
