package http

import (
	"context"
	"net/http"
)

// HealthChecker reports whether the backing storage is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Meetings *MeetingHandler
	Auth     *AuthHandler
	Health   HealthChecker
	// Authenticate wraps every meeting route and /users/me, typically
	// RequireAccessToken.
	Authenticate func(http.Handler) http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler {
		if cfg.Authenticate == nil {
			return h
		}
		return cfg.Authenticate(h)
	}

	if cfg.Meetings != nil {
		mux.Handle("POST /meetings", protect(cfg.Meetings.Create))
		mux.Handle("GET /meetings/active", protect(cfg.Meetings.ListActive))
		mux.Handle("GET /meetings/{id}", protect(cfg.Meetings.Get))
		mux.Handle("POST /meetings/{id}/start", protect(cfg.Meetings.Start))
		mux.Handle("POST /meetings/{id}/end", protect(cfg.Meetings.End))
		mux.Handle("POST /meetings/{id}/join", protect(cfg.Meetings.Join))
		mux.Handle("POST /meetings/{id}/leave", protect(cfg.Meetings.Leave))
	}

	if cfg.Auth != nil {
		mux.HandleFunc("POST /auth/register", cfg.Auth.Register)
		mux.HandleFunc("POST /auth/login", cfg.Auth.Login)
		mux.HandleFunc("POST /auth/refresh", cfg.Auth.Refresh)
		mux.Handle("GET /users/me", protect(cfg.Auth.Me))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, healthResponse{Status: "ok"}
		if cfg.Health != nil {
			if err := cfg.Health.Ping(r.Context()); err != nil {
				status, body = http.StatusServiceUnavailable, healthResponse{Status: "unavailable"}
			}
		}
		newResponder(nil).writeJSON(r.Context(), w, status, body)
	})

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

type healthResponse struct {
	Status string `json:"status"`
}
