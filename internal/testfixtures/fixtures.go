package testfixtures

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/persistence"
)

var (
	userCounter    uint64
	meetingCounter uint64
)

// UserFixture represents a deterministic user record.
type UserFixture struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:           id,
		Email:        id + "@example.com",
		DisplayName:  fmt.Sprintf("User %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated ID and derives the email and display
// name from it.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
		f.Email = id + "@example.com"
		if id != "" {
			f.DisplayName = strings.ToUpper(id[:1]) + id[1:]
		}
	}
}

// WithUserDisplayName overrides the generated display name.
func WithUserDisplayName(name string) UserOption {
	return func(f *UserFixture) {
		f.DisplayName = name
	}
}

// Principal returns the fixture as an acting principal.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID}
}

// Application returns the identity store view of the fixture.
func (f UserFixture) Application() application.User {
	return application.User{ID: f.ID, Email: f.Email, DisplayName: f.DisplayName}
}

// Persistence returns the fixture as a users row.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		PasswordHash: f.PasswordHash,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// MeetingFixture represents a deterministic meeting row.
type MeetingFixture struct {
	ID          string
	Title       string
	Description *string
	HostID      string
	MaxCapacity int
	Status      persistence.MeetingStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// MeetingOption configures the generated meeting fixture.
type MeetingOption func(*MeetingFixture)

// NewMeetingFixture returns a scheduled meeting hosted by hostID.
func NewMeetingFixture(hostID string, opts ...MeetingOption) MeetingFixture {
	idx := atomic.AddUint64(&meetingCounter, 1)
	fixture := MeetingFixture{
		ID:          fmt.Sprintf("meeting-%03d", idx),
		Title:       fmt.Sprintf("Meeting %03d", idx),
		HostID:      hostID,
		MaxCapacity: application.DefaultMaxCapacity,
		Status:      persistence.StatusScheduled,
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMeetingID overrides the generated meeting ID.
func WithMeetingID(id string) MeetingOption {
	return func(f *MeetingFixture) {
		f.ID = id
	}
}

// WithMeetingTitle overrides the generated title.
func WithMeetingTitle(title string) MeetingOption {
	return func(f *MeetingFixture) {
		f.Title = title
	}
}

// WithMeetingCapacity sets the participant limit.
func WithMeetingCapacity(capacity int) MeetingOption {
	return func(f *MeetingFixture) {
		f.MaxCapacity = capacity
	}
}

// WithMeetingCreatedAt sets the creation timestamp.
func WithMeetingCreatedAt(t time.Time) MeetingOption {
	return func(f *MeetingFixture) {
		f.CreatedAt = t
	}
}

// Active marks the meeting as started one minute after creation.
func Active() MeetingOption {
	return func(f *MeetingFixture) {
		started := f.CreatedAt.Add(time.Minute)
		f.Status = persistence.StatusActive
		f.StartedAt = &started
		f.EndedAt = nil
	}
}

// Ended marks the meeting as started and then ended.
func Ended() MeetingOption {
	return func(f *MeetingFixture) {
		started := f.CreatedAt.Add(time.Minute)
		ended := started.Add(time.Hour)
		f.Status = persistence.StatusEnded
		f.StartedAt = &started
		f.EndedAt = &ended
	}
}

// Persistence returns the fixture as a meetings row.
func (f MeetingFixture) Persistence() persistence.Meeting {
	return persistence.Meeting{
		ID:          f.ID,
		Title:       f.Title,
		Description: copyStringPtr(f.Description),
		HostID:      f.HostID,
		MaxCapacity: f.MaxCapacity,
		Status:      f.Status,
		CreatedAt:   f.CreatedAt,
		StartedAt:   copyTimePtr(f.StartedAt),
		EndedAt:     copyTimePtr(f.EndedAt),
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

// CreateParams returns the parameters for host creating a meeting called
// title. A capacity, when given, is passed explicitly.
func CreateParams(host UserFixture, title string, capacity ...int) application.CreateMeetingParams {
	params := application.CreateMeetingParams{
		Principal: host.Principal(),
		Input:     application.MeetingInput{Title: title},
	}
	if len(capacity) > 0 {
		c := capacity[0]
		params.Input.MaxCapacity = &c
	}
	return params
}
