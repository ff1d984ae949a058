package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
}

// MeetingStatus is the lifecycle phase of a meeting.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingActive    MeetingStatus = "ACTIVE"
	MeetingEnded     MeetingStatus = "ENDED"
)

// DefaultMaxCapacity applies when a meeting is created without a capacity.
const DefaultMaxCapacity = 50

// MeetingInput captures caller provided meeting fields.
type MeetingInput struct {
	Title       string
	Description *string
	MaxCapacity *int
}

// CreateMeetingParams wraps the data required to create a meeting.
type CreateMeetingParams struct {
	Principal Principal
	Input     MeetingInput
}

// Meeting represents a persisted meeting. StartedAt is set once the meeting
// leaves SCHEDULED and EndedAt once it is ENDED.
type Meeting struct {
	ID          string
	Title       string
	Description *string
	HostID      string
	MaxCapacity int
	Status      MeetingStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// Membership is one user's presence record in one meeting. The same record
// is reopened when the user rejoins.
type Membership struct {
	ID        string
	MeetingID string
	UserID    string
	JoinedAt  time.Time
	LeftAt    *time.Time
}

// Open reports whether the user is currently in the meeting.
func (m Membership) Open() bool {
	return m.LeftAt == nil
}

// ActiveMeeting is an active meeting with its live open membership count.
type ActiveMeeting struct {
	Meeting          Meeting
	ParticipantCount int
}

// User is the identity store view of an account.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials pairs an account with its stored password hash.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// RegisterParams carries the fields of a new account.
type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
}

// LoginParams carries an email and password pair.
type LoginParams struct {
	Email    string
	Password string
}

// AuthTokens is an access and refresh token pair with their lifetimes.
type AuthTokens struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
}

// AuthResult is the outcome of a successful registration or login.
type AuthResult struct {
	User   User
	Tokens AuthTokens
}

// MeetingSummary is a row of the active meetings listing.
type MeetingSummary struct {
	Meeting          Meeting
	Host             *User
	ParticipantCount int
}

// Participant is an open membership with the resolved user, when known.
type Participant struct {
	Membership Membership
	User       *User
}

// MeetingDetail is a meeting plus its current roster.
type MeetingDetail struct {
	Meeting      Meeting
	Host         *User
	Participants []Participant
}

// SessionToken is a short lived credential issued on a successful join.
type SessionToken struct {
	Token     string
	UserID    string
	MeetingID *string
	ExpiresAt time.Time
}

// JoinResult describes a successful admission.
type JoinResult struct {
	Membership Membership
	Rejoined   bool
	Session    SessionToken
}
