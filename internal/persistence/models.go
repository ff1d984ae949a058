package persistence

import "time"

// MeetingStatus is the lifecycle phase stored for a meeting.
type MeetingStatus string

const (
	StatusScheduled MeetingStatus = "SCHEDULED"
	StatusActive    MeetingStatus = "ACTIVE"
	StatusEnded     MeetingStatus = "ENDED"
)

// Valid reports whether the status is one of the known lifecycle phases.
func (s MeetingStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusEnded:
		return true
	}
	return false
}

// User represents an account in the identity store.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Meeting represents a meeting row.
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

// Membership represents the relationship of one user to one meeting. A nil
// LeftAt marks the membership as open.
type Membership struct {
	ID        string
	MeetingID string
	UserID    string
	JoinedAt  time.Time
	LeftAt    *time.Time
}

// Open reports whether the user is currently present in the meeting.
func (m Membership) Open() bool {
	return m.LeftAt == nil
}

// ActiveMeeting pairs an active meeting with its live open membership count.
type ActiveMeeting struct {
	Meeting         Meeting
	OpenMemberships int
}

// Session represents an issued opaque session token.
type Session struct {
	ID        string
	Token     string
	UserID    string
	MeetingID *string
	ExpiresAt time.Time
	CreatedAt time.Time
}
