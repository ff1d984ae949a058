package application

import (
	"context"
	"time"
)

// MeetingRepository captures the persistence operations needed by the
// meeting services.
type MeetingRepository interface {
	CreateMeeting(ctx context.Context, meeting Meeting) (Meeting, error)
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	ListActiveMeetings(ctx context.Context) ([]ActiveMeeting, error)
	GetMeetingSnapshot(ctx context.Context, id string) (Meeting, []Membership, error)
	// WithMeetingTx runs fn as one atomic unit of work serialised against
	// every other unit of work on the same meeting.
	WithMeetingTx(ctx context.Context, meetingID string, fn func(tx MeetingTx) error) error
}

// MeetingTx is the view of a meeting available inside a unit of work.
type MeetingTx interface {
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	UpdateMeetingStatus(ctx context.Context, id string, expected, next MeetingStatus, at time.Time) (Meeting, error)
	CountOpenMemberships(ctx context.Context, meetingID string) (int, error)
	GetMembership(ctx context.Context, meetingID, userID string) (Membership, error)
	UpsertMembership(ctx context.Context, membership Membership) (Membership, error)
	CloseMembership(ctx context.Context, membershipID string, leftAt time.Time) error
	CloseAllOpenMemberships(ctx context.Context, meetingID string, leftAt time.Time) (int, error)
}

// UserDirectory resolves user identities. It is never written to by the
// meeting services.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id string) (User, error)
}

// SessionIssuer mints session tokens scoped to a user and optionally a meeting.
type SessionIssuer interface {
	IssueSession(ctx context.Context, userID string, meetingID *string) (SessionToken, error)
}
