package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/persistence"
)

// meetingRepositoryAdapter exposes a persistence.MeetingRepository to the
// application services. Persistence sentinels pass through unchanged; the
// services map them.
type meetingRepositoryAdapter struct {
	repo persistence.MeetingRepository
}

// NewMeetingRepository adapts repo to application.MeetingRepository.
func NewMeetingRepository(repo persistence.MeetingRepository) application.MeetingRepository {
	return &meetingRepositoryAdapter{repo: repo}
}

func (a *meetingRepositoryAdapter) CreateMeeting(ctx context.Context, meeting application.Meeting) (application.Meeting, error) {
	if err := a.repo.CreateMeeting(ctx, toPersistenceMeeting(meeting)); err != nil {
		return application.Meeting{}, err
	}
	stored, err := a.repo.GetMeeting(ctx, meeting.ID)
	if err != nil {
		return application.Meeting{}, err
	}
	return toApplicationMeeting(stored), nil
}

func (a *meetingRepositoryAdapter) GetMeeting(ctx context.Context, id string) (application.Meeting, error) {
	stored, err := a.repo.GetMeeting(ctx, id)
	if err != nil {
		return application.Meeting{}, err
	}
	return toApplicationMeeting(stored), nil
}

func (a *meetingRepositoryAdapter) ListActiveMeetings(ctx context.Context) ([]application.ActiveMeeting, error) {
	models, err := a.repo.ListActiveMeetings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.ActiveMeeting, 0, len(models))
	for _, model := range models {
		out = append(out, application.ActiveMeeting{
			Meeting:          toApplicationMeeting(model.Meeting),
			ParticipantCount: model.OpenMemberships,
		})
	}
	return out, nil
}

func (a *meetingRepositoryAdapter) GetMeetingSnapshot(ctx context.Context, id string) (application.Meeting, []application.Membership, error) {
	meeting, memberships, err := a.repo.GetMeetingSnapshot(ctx, id)
	if err != nil {
		return application.Meeting{}, nil, err
	}
	return toApplicationMeeting(meeting), toApplicationMemberships(memberships), nil
}

func (a *meetingRepositoryAdapter) WithMeetingTx(ctx context.Context, meetingID string, fn func(tx application.MeetingTx) error) error {
	return a.repo.WithMeetingTx(ctx, meetingID, func(tx persistence.MeetingTx) error {
		return fn(meetingTxAdapter{tx: tx})
	})
}

type meetingTxAdapter struct {
	tx persistence.MeetingTx
}

func (a meetingTxAdapter) GetMeeting(ctx context.Context, id string) (application.Meeting, error) {
	stored, err := a.tx.GetMeeting(ctx, id)
	if err != nil {
		return application.Meeting{}, err
	}
	return toApplicationMeeting(stored), nil
}

func (a meetingTxAdapter) UpdateMeetingStatus(ctx context.Context, id string, expected, next application.MeetingStatus, at time.Time) (application.Meeting, error) {
	stored, err := a.tx.UpdateMeetingStatus(ctx, id, persistence.MeetingStatus(expected), persistence.MeetingStatus(next), at)
	if err != nil {
		return application.Meeting{}, err
	}
	return toApplicationMeeting(stored), nil
}

func (a meetingTxAdapter) CountOpenMemberships(ctx context.Context, meetingID string) (int, error) {
	return a.tx.CountOpenMemberships(ctx, meetingID)
}

func (a meetingTxAdapter) GetMembership(ctx context.Context, meetingID, userID string) (application.Membership, error) {
	stored, err := a.tx.GetMembership(ctx, meetingID, userID)
	if err != nil {
		return application.Membership{}, err
	}
	return toApplicationMembership(stored), nil
}

func (a meetingTxAdapter) UpsertMembership(ctx context.Context, membership application.Membership) (application.Membership, error) {
	stored, err := a.tx.UpsertMembership(ctx, persistence.Membership{
		ID:        membership.ID,
		MeetingID: membership.MeetingID,
		UserID:    membership.UserID,
		JoinedAt:  membership.JoinedAt,
		LeftAt:    cloneTime(membership.LeftAt),
	})
	if err != nil {
		return application.Membership{}, err
	}
	return toApplicationMembership(stored), nil
}

func (a meetingTxAdapter) CloseMembership(ctx context.Context, membershipID string, leftAt time.Time) error {
	return a.tx.CloseMembership(ctx, membershipID, leftAt)
}

func (a meetingTxAdapter) CloseAllOpenMemberships(ctx context.Context, meetingID string, leftAt time.Time) (int, error) {
	return a.tx.CloseAllOpenMemberships(ctx, meetingID, leftAt)
}

// userDirectoryAdapter resolves identities from the users table.
type userDirectoryAdapter struct {
	repo persistence.UserRepository
}

// NewUserDirectory adapts repo to application.UserDirectory.
func NewUserDirectory(repo persistence.UserRepository) application.UserDirectory {
	return &userDirectoryAdapter{repo: repo}
}

func (a *userDirectoryAdapter) FindUserByID(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return application.User{}, application.ErrNotFound
	}
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

// credentialStoreAdapter backs account registration and login with the
// users table.
type credentialStoreAdapter struct {
	repo persistence.UserRepository
}

// NewCredentialStore adapts repo to application.CredentialStore.
func NewCredentialStore(repo persistence.UserRepository) application.CredentialStore {
	return &credentialStoreAdapter{repo: repo}
}

func (a *credentialStoreAdapter) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	err := a.repo.CreateUser(ctx, persistence.User{
		ID:           creds.User.ID,
		Email:        creds.User.Email,
		DisplayName:  creds.User.DisplayName,
		PasswordHash: creds.PasswordHash,
		CreatedAt:    creds.User.CreatedAt,
		UpdatedAt:    creds.User.UpdatedAt,
	})
	if errors.Is(err, persistence.ErrDuplicate) {
		return application.User{}, application.ErrEmailTaken
	}
	if err != nil {
		return application.User{}, err
	}
	stored, err := a.repo.GetUser(ctx, creds.User.ID)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *credentialStoreAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, persistence.ErrNotFound) {
		return application.UserCredentials{}, application.ErrNotFound
	}
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{User: toApplicationUser(stored), PasswordHash: stored.PasswordHash}, nil
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:          model.ID,
		Email:       model.Email,
		DisplayName: model.DisplayName,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toApplicationMeeting(model persistence.Meeting) application.Meeting {
	return application.Meeting{
		ID:          model.ID,
		Title:       model.Title,
		Description: cloneString(model.Description),
		HostID:      model.HostID,
		MaxCapacity: model.MaxCapacity,
		Status:      application.MeetingStatus(model.Status),
		CreatedAt:   model.CreatedAt,
		StartedAt:   cloneTime(model.StartedAt),
		EndedAt:     cloneTime(model.EndedAt),
	}
}

func toPersistenceMeeting(meeting application.Meeting) persistence.Meeting {
	return persistence.Meeting{
		ID:          meeting.ID,
		Title:       meeting.Title,
		Description: cloneString(meeting.Description),
		HostID:      meeting.HostID,
		MaxCapacity: meeting.MaxCapacity,
		Status:      persistence.MeetingStatus(meeting.Status),
		CreatedAt:   meeting.CreatedAt,
		StartedAt:   cloneTime(meeting.StartedAt),
		EndedAt:     cloneTime(meeting.EndedAt),
	}
}

func toApplicationMembership(model persistence.Membership) application.Membership {
	return application.Membership{
		ID:        model.ID,
		MeetingID: model.MeetingID,
		UserID:    model.UserID,
		JoinedAt:  model.JoinedAt,
		LeftAt:    cloneTime(model.LeftAt),
	}
}

func toApplicationMemberships(models []persistence.Membership) []application.Membership {
	out := make([]application.Membership, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationMembership(model))
	}
	return out
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
