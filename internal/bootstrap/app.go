package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/authn"
	"github.com/example/meeting-service/internal/config"
	httptransport "github.com/example/meeting-service/internal/http"
	"github.com/example/meeting-service/internal/session"
)

// App is a fully wired meeting service.
type App struct {
	Storage   *Storage
	Meetings  *application.MeetingService
	Admission *application.AdmissionService
	Queries   *application.QueryService
	Auth      *application.AuthService
	Verifier  *authn.Verifier
	Handler   http.Handler

	closers []func() error
}

// New opens storage and builds the services and HTTP handler described by cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	storage, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Storage: storage, closers: []func() error{storage.Close}}

	issuer, closeIssuer, err := newSessionIssuer(ctx, cfg, storage)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if closeIssuer != nil {
		app.closers = append(app.closers, closeIssuer)
	}

	users := NewUserDirectory(storage.Users)
	verifier, err := authn.NewVerifier([]byte(cfg.AccessTokenSecret), users, time.Now)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	// The auth service checks the subject itself so deleted accounts surface
	// as not found rather than as a bad token.
	refresh, err := authn.NewRefreshVerifier([]byte(cfg.RefreshTokenSecret), nil, time.Now)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	meetings := NewMeetingRepository(storage.Meetings)
	now := func() time.Time { return time.Now().UTC() }

	app.Meetings = application.NewMeetingServiceWithLogger(meetings, uuid.NewString, now, logger,
		application.WithDefaultCapacity(cfg.DefaultCapacity),
		application.WithCapacityCeiling(cfg.MaxCapacity),
	)
	app.Admission = application.NewAdmissionServiceWithLogger(meetings, issuer, uuid.NewString, now, logger)
	app.Queries = application.NewQueryServiceWithLogger(meetings, users, logger)
	app.Auth = application.NewAuthServiceWithLogger(NewCredentialStore(storage.Users), users, application.TokenSettings{
		Access:     verifier,
		Refresh:    refresh,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, nil, nil, uuid.NewString, now, logger)
	app.Verifier = verifier

	app.Handler = httptransport.NewRouter(httptransport.RouterConfig{
		Meetings:     httptransport.NewMeetingHandler(app.Meetings, app.Admission, app.Queries, logger),
		Auth:         httptransport.NewAuthHandler(app.Auth, logger),
		Health:       storage,
		Authenticate: httptransport.RequireAccessToken(verifier, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.CORS(cfg.ClientURL),
		},
	})

	return app, nil
}

// Close releases every resource opened by New, most recent first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newSessionIssuer(ctx context.Context, cfg config.Config, storage *Storage) (application.SessionIssuer, func() error, error) {
	opts := []session.Option{session.WithTTL(cfg.SessionTTL)}

	switch cfg.SessionIssuer {
	case config.IssuerJWT:
		issuer, err := session.NewJWTIssuer([]byte(cfg.SessionSecret), "meeting-service", opts...)
		return issuer, nil, err
	case config.IssuerOpaque:
		switch cfg.SessionStore {
		case config.SessionStoreRedis:
			redisOpts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return nil, nil, fmt.Errorf("bootstrap: parse redis url: %w", err)
			}
			client := redis.NewClient(redisOpts)
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				return nil, nil, fmt.Errorf("bootstrap: ping redis: %w", err)
			}
			issuer, err := session.NewOpaqueIssuer(session.NewRedisStore(client, ""), opts...)
			if err != nil {
				_ = client.Close()
				return nil, nil, err
			}
			return issuer, client.Close, nil
		default:
			issuer, err := session.NewOpaqueIssuer(session.NewRepositoryStore(storage.Sessions), opts...)
			return issuer, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown session issuer %q", cfg.SessionIssuer)
	}
}
