package testfixtures

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/bootstrap"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Services bundles the application services over one harness.
type Services struct {
	Meetings  *application.MeetingService
	Admission *application.AdmissionService
	Queries   *application.QueryService
	Sessions  *SessionRecorder
}

// NewServices wires the meeting, admission and query services to the
// harness storage through the production adapters. Meetings draw IDs from
// the "meeting" sequence and memberships from "membership".
func (f *ServiceFactory) NewServices(h *Harness, opts ...application.MeetingServiceOption) Services {
	repo := bootstrap.NewMeetingRepository(h.Meetings)
	users := bootstrap.NewUserDirectory(h.Users)
	now := f.Clock.NowFunc()
	sessions := NewSessionRecorder(now)

	return Services{
		Meetings:  application.NewMeetingServiceWithLogger(repo, f.IDGenerator.For("meeting"), now, f.Logger, opts...),
		Admission: application.NewAdmissionServiceWithLogger(repo, sessions, f.IDGenerator.For("membership"), now, f.Logger),
		Queries:   application.NewQueryServiceWithLogger(repo, users, f.Logger),
		Sessions:  sessions,
	}
}

// SessionRecorder is a SessionIssuer that records every issued token.
type SessionRecorder struct {
	mu     sync.Mutex
	now    func() time.Time
	issued []application.SessionToken
}

// NewSessionRecorder constructs a recorder using now for expiry.
func NewSessionRecorder(now func() time.Time) *SessionRecorder {
	if now == nil {
		now = time.Now
	}
	return &SessionRecorder{now: now}
}

// IssueSession implements application.SessionIssuer.
func (r *SessionRecorder) IssueSession(_ context.Context, userID string, meetingID *string) (application.SessionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := application.SessionToken{
		Token:     "session-" + userID,
		UserID:    userID,
		MeetingID: copyStringPtr(meetingID),
		ExpiresAt: r.now().Add(2 * time.Hour),
	}
	r.issued = append(r.issued, token)
	return token, nil
}

// Issued returns a copy of the tokens issued so far.
func (r *SessionRecorder) Issued() []application.SessionToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]application.SessionToken(nil), r.issued...)
}
