package memory

import (
	"context"
	"strings"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

// meetingTx reads through its staged writes to the committed maps.
type meetingTx struct {
	storage     *Storage
	meetings    map[string]persistence.Meeting
	memberships map[string]persistence.Membership
}

func (t *meetingTx) GetMeeting(ctx context.Context, id string) (persistence.Meeting, error) {
	meeting, ok := t.meeting(id)
	if !ok {
		return persistence.Meeting{}, persistence.ErrNotFound
	}
	return cloneMeeting(meeting), nil
}

func (t *meetingTx) UpdateMeetingStatus(ctx context.Context, id string, expected, next persistence.MeetingStatus, at time.Time) (persistence.Meeting, error) {
	meeting, ok := t.meeting(id)
	if !ok {
		return persistence.Meeting{}, persistence.ErrNotFound
	}
	if meeting.Status != expected {
		return persistence.Meeting{}, persistence.ErrStatusConflict
	}

	meeting = cloneMeeting(meeting)
	stamp := at
	switch next {
	case persistence.StatusActive:
		meeting.StartedAt = &stamp
	case persistence.StatusEnded:
		meeting.EndedAt = &stamp
	default:
		return persistence.Meeting{}, persistence.ErrConstraintViolation
	}
	meeting.Status = next

	t.meetings[id] = meeting
	return cloneMeeting(meeting), nil
}

func (t *meetingTx) CountOpenMemberships(ctx context.Context, meetingID string) (int, error) {
	count := 0
	for _, membership := range t.view(meetingID) {
		if membership.Open() {
			count++
		}
	}
	return count, nil
}

func (t *meetingTx) GetMembership(ctx context.Context, meetingID, userID string) (persistence.Membership, error) {
	for _, membership := range t.view(meetingID) {
		if membership.UserID == userID {
			return cloneMembership(membership), nil
		}
	}
	return persistence.Membership{}, persistence.ErrNotFound
}

func (t *meetingTx) UpsertMembership(ctx context.Context, membership persistence.Membership) (persistence.Membership, error) {
	if strings.TrimSpace(membership.ID) == "" {
		return persistence.Membership{}, persistence.ErrConstraintViolation
	}
	if _, ok := t.meeting(membership.MeetingID); !ok {
		return persistence.Membership{}, persistence.ErrConstraintViolation
	}

	t.storage.mu.RLock()
	_, userExists := t.storage.users[membership.UserID]
	t.storage.mu.RUnlock()
	if !userExists {
		return persistence.Membership{}, persistence.ErrConstraintViolation
	}

	stored := persistence.Membership{
		ID:        membership.ID,
		MeetingID: membership.MeetingID,
		UserID:    membership.UserID,
		JoinedAt:  membership.JoinedAt,
	}
	reopened := false
	for _, existing := range t.view(membership.MeetingID) {
		if existing.UserID == membership.UserID {
			stored.ID = existing.ID
			reopened = true
			break
		}
	}
	if !reopened {
		if _, taken := t.membership(stored.ID); taken {
			return persistence.Membership{}, persistence.ErrDuplicate
		}
	}

	t.memberships[stored.ID] = stored
	return stored, nil
}

func (t *meetingTx) CloseMembership(ctx context.Context, membershipID string, leftAt time.Time) error {
	membership, ok := t.membership(membershipID)
	if !ok || !membership.Open() {
		return persistence.ErrNotFound
	}

	stamp := leftAt
	membership.LeftAt = &stamp
	t.memberships[membershipID] = membership
	return nil
}

func (t *meetingTx) CloseAllOpenMemberships(ctx context.Context, meetingID string, leftAt time.Time) (int, error) {
	closed := 0
	for _, membership := range t.view(meetingID) {
		if !membership.Open() {
			continue
		}
		stamp := leftAt
		membership.LeftAt = &stamp
		t.memberships[membership.ID] = membership
		closed++
	}
	return closed, nil
}

func (t *meetingTx) meeting(id string) (persistence.Meeting, bool) {
	if meeting, ok := t.meetings[id]; ok {
		return meeting, true
	}

	t.storage.mu.RLock()
	defer t.storage.mu.RUnlock()
	meeting, ok := t.storage.meetings[id]
	return meeting, ok
}

func (t *meetingTx) membership(id string) (persistence.Membership, bool) {
	if membership, ok := t.memberships[id]; ok {
		return cloneMembership(membership), true
	}

	t.storage.mu.RLock()
	defer t.storage.mu.RUnlock()
	membership, ok := t.storage.memberships[id]
	return cloneMembership(membership), ok
}

// view returns the memberships of a meeting as this transaction sees them.
func (t *meetingTx) view(meetingID string) []persistence.Membership {
	merged := make(map[string]persistence.Membership)

	t.storage.mu.RLock()
	for id, membership := range t.storage.memberships {
		if membership.MeetingID == meetingID {
			merged[id] = cloneMembership(membership)
		}
	}
	t.storage.mu.RUnlock()

	for id, membership := range t.memberships {
		if membership.MeetingID == meetingID {
			merged[id] = cloneMembership(membership)
		}
	}

	view := make([]persistence.Membership, 0, len(merged))
	for _, membership := range merged {
		view = append(view, membership)
	}
	sortMemberships(view)
	return view
}
