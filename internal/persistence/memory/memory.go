// Package memory provides an in-process implementation of the persistence
// repositories. It is used by tests and by the "memory" storage driver.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

// Storage keeps every record in maps guarded by mu. Meeting units of work
// additionally hold a per-meeting lock and stage their writes until commit.
type Storage struct {
	mu          sync.RWMutex
	users       map[string]persistence.User
	meetings    map[string]persistence.Meeting
	memberships map[string]persistence.Membership
	sessions    map[string]persistence.Session

	locksMu sync.Mutex
	locks   map[string]*meetingLock
}

// meetingLock is held by at most one unit of work. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type meetingLock struct {
	ch   chan struct{}
	refs int
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		users:       make(map[string]persistence.User),
		meetings:    make(map[string]persistence.Meeting),
		memberships: make(map[string]persistence.Membership),
		sessions:    make(map[string]persistence.Session),
		locks:       make(map[string]*meetingLock),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// Migrate initialises the storage. No-op for the in-memory implementation.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	if strings.TrimSpace(user.ID) == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return persistence.ErrDuplicate
	}
	email := normalizeEmail(user.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return persistence.ErrDuplicate
		}
	}

	user.Email = email
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized := normalizeEmail(email)
	for _, user := range s.users {
		if user.Email == normalized {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

// --- MeetingRepository implementation ---

// CreateMeeting stores a new meeting.
func (s *Storage) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if strings.TrimSpace(meeting.ID) == "" || !meeting.Status.Valid() || meeting.MaxCapacity <= 0 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[meeting.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.users[meeting.HostID]; !ok {
		return persistence.ErrConstraintViolation
	}

	s.meetings[meeting.ID] = cloneMeeting(meeting)
	return nil
}

// GetMeeting retrieves a meeting by ID.
func (s *Storage) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meeting, ok := s.meetings[id]
	if !ok {
		return persistence.Meeting{}, persistence.ErrNotFound
	}
	return cloneMeeting(meeting), nil
}

// ListActiveMeetings returns active meetings ordered by CreatedAt descending.
func (s *Storage) ListActiveMeetings(ctx context.Context) ([]persistence.ActiveMeeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, membership := range s.memberships {
		if membership.Open() {
			counts[membership.MeetingID]++
		}
	}

	var active []persistence.ActiveMeeting
	for _, meeting := range s.meetings {
		if meeting.Status != persistence.StatusActive {
			continue
		}
		active = append(active, persistence.ActiveMeeting{
			Meeting:         cloneMeeting(meeting),
			OpenMemberships: counts[meeting.ID],
		})
	}

	sort.Slice(active, func(i, j int) bool {
		a, b := active[i].Meeting, active[j].Meeting
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return active, nil
}

// ListOpenParticipants returns the open memberships of a meeting ordered by join time.
func (s *Storage) ListOpenParticipants(ctx context.Context, meetingID string) ([]persistence.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.openMembershipsLocked(meetingID), nil
}

// GetMeetingSnapshot reads a meeting and its open memberships under one read lock.
func (s *Storage) GetMeetingSnapshot(ctx context.Context, id string) (persistence.Meeting, []persistence.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meeting, ok := s.meetings[id]
	if !ok {
		return persistence.Meeting{}, nil, persistence.ErrNotFound
	}
	return cloneMeeting(meeting), s.openMembershipsLocked(id), nil
}

// WithMeetingTx runs fn while holding the lock for meetingID. Writes made
// through the transaction become visible together when fn returns nil and
// are discarded otherwise.
func (s *Storage) WithMeetingTx(ctx context.Context, meetingID string, fn func(tx persistence.MeetingTx) error) error {
	release, err := s.lockMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	defer release()

	tx := &meetingTx{
		storage:     s,
		meetings:    make(map[string]persistence.Meeting),
		memberships: make(map[string]persistence.Membership),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, meeting := range tx.meetings {
		s.meetings[id] = meeting
	}
	for id, membership := range tx.memberships {
		s.memberships[id] = membership
	}
	return nil
}

func (s *Storage) lockMeeting(ctx context.Context, meetingID string) (func(), error) {
	s.locksMu.Lock()
	lock, ok := s.locks[meetingID]
	if !ok {
		lock = &meetingLock{ch: make(chan struct{}, 1)}
		s.locks[meetingID] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		return func() {
			<-lock.ch
			s.unrefLock(meetingID, lock)
		}, nil
	case <-ctx.Done():
		s.unrefLock(meetingID, lock)
		return nil, ctx.Err()
	}
}

func (s *Storage) unrefLock(meetingID string, lock *meetingLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock.refs--
	if lock.refs == 0 && s.locks[meetingID] == lock {
		delete(s.locks, meetingID)
	}
}

func (s *Storage) openMembershipsLocked(meetingID string) []persistence.Membership {
	var open []persistence.Membership
	for _, membership := range s.memberships {
		if membership.MeetingID == meetingID && membership.Open() {
			open = append(open, cloneMembership(membership))
		}
	}
	sortMemberships(open)
	return open
}

// --- SessionRepository implementation ---

// CreateSession stores a new session token.
func (s *Storage) CreateSession(ctx context.Context, session persistence.Session) error {
	if session.ID == "" || session.UserID == "" || strings.TrimSpace(session.Token) == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.Token]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.users[session.UserID]; !ok {
		return persistence.ErrConstraintViolation
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	s.sessions[session.Token] = cloneSession(session)
	return nil
}

// GetSession retrieves a session by its token.
func (s *Storage) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[strings.TrimSpace(token)]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return cloneSession(session), nil
}

var (
	_ persistence.UserRepository    = (*Storage)(nil)
	_ persistence.MeetingRepository = (*Storage)(nil)
	_ persistence.SessionRepository = (*Storage)(nil)
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sortMemberships(memberships []persistence.Membership) {
	sort.Slice(memberships, func(i, j int) bool {
		if memberships[i].JoinedAt.Equal(memberships[j].JoinedAt) {
			return memberships[i].ID < memberships[j].ID
		}
		return memberships[i].JoinedAt.Before(memberships[j].JoinedAt)
	})
}

func cloneMeeting(meeting persistence.Meeting) persistence.Meeting {
	meeting.Description = cloneString(meeting.Description)
	meeting.StartedAt = cloneTime(meeting.StartedAt)
	meeting.EndedAt = cloneTime(meeting.EndedAt)
	return meeting
}

func cloneMembership(membership persistence.Membership) persistence.Membership {
	membership.LeftAt = cloneTime(membership.LeftAt)
	return membership
}

func cloneSession(session persistence.Session) persistence.Session {
	session.MeetingID = cloneString(session.MeetingID)
	return session
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
