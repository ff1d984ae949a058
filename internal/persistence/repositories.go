package persistence

import (
	"context"
	"time"
)

// UserRepository exposes identity store lookups. CreateUser is only used by
// seeding tools.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// MeetingRepository stores meetings and their memberships.
//
// Reads outside WithMeetingTx observe committed state only. Every
// read-check-write sequence against a meeting must run inside WithMeetingTx,
// which serialises units of work touching the same meeting and commits or
// discards all of their writes together.
type MeetingRepository interface {
	CreateMeeting(ctx context.Context, meeting Meeting) error
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	// ListActiveMeetings returns ACTIVE meetings ordered by CreatedAt
	// descending, each with its open membership count.
	ListActiveMeetings(ctx context.Context) ([]ActiveMeeting, error)
	ListOpenParticipants(ctx context.Context, meetingID string) ([]Membership, error)
	// GetMeetingSnapshot reads a meeting and its open memberships from a
	// single consistent view.
	GetMeetingSnapshot(ctx context.Context, id string) (Meeting, []Membership, error)
	WithMeetingTx(ctx context.Context, meetingID string, fn func(tx MeetingTx) error) error
}

// MeetingTx is the set of operations available inside a meeting unit of work.
type MeetingTx interface {
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	// UpdateMeetingStatus moves a meeting from expected to next and stamps
	// the timestamp column belonging to next. It returns ErrStatusConflict
	// when the stored status is not expected.
	UpdateMeetingStatus(ctx context.Context, id string, expected, next MeetingStatus, at time.Time) (Meeting, error)
	CountOpenMemberships(ctx context.Context, meetingID string) (int, error)
	GetMembership(ctx context.Context, meetingID, userID string) (Membership, error)
	// UpsertMembership inserts a new open membership or reopens the existing
	// row for the same (meeting, user) pair, keeping its ID.
	UpsertMembership(ctx context.Context, membership Membership) (Membership, error)
	CloseMembership(ctx context.Context, membershipID string, leftAt time.Time) error
	CloseAllOpenMemberships(ctx context.Context, meetingID string, leftAt time.Time) (int, error)
}

// SessionRepository stores opaque session tokens.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, token string) (Session, error)
}
