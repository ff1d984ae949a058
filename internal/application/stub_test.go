package application

import (
	"context"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

// meetingRepoStub implements MeetingRepository and MeetingTx over maps.
// WithMeetingTx restores the previous state when fn fails.
type meetingRepoStub struct {
	mu          sync.Mutex
	meetings    map[string]Meeting
	memberships map[string]Membership

	createErr   error
	getErr      error
	updateErr   error
	closeAllErr error
	listErr     error

	txCalls int
}

func newMeetingRepoStub(meetings ...Meeting) *meetingRepoStub {
	stub := &meetingRepoStub{
		meetings:    make(map[string]Meeting),
		memberships: make(map[string]Membership),
	}
	for _, meeting := range meetings {
		stub.meetings[meeting.ID] = meeting
	}
	return stub
}

func (r *meetingRepoStub) CreateMeeting(ctx context.Context, meeting Meeting) (Meeting, error) {
	if r.createErr != nil {
		return Meeting{}, r.createErr
	}
	r.meetings[meeting.ID] = meeting
	return meeting, nil
}

func (r *meetingRepoStub) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	if r.getErr != nil {
		return Meeting{}, r.getErr
	}
	meeting, ok := r.meetings[id]
	if !ok {
		return Meeting{}, ErrNotFound
	}
	return meeting, nil
}

func (r *meetingRepoStub) ListActiveMeetings(ctx context.Context) ([]ActiveMeeting, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var active []ActiveMeeting
	for _, meeting := range r.meetings {
		if meeting.Status != MeetingActive {
			continue
		}
		count, _ := r.CountOpenMemberships(ctx, meeting.ID)
		active = append(active, ActiveMeeting{Meeting: meeting, ParticipantCount: count})
	}
	return active, nil
}

func (r *meetingRepoStub) GetMeetingSnapshot(ctx context.Context, id string) (Meeting, []Membership, error) {
	meeting, err := r.GetMeeting(ctx, id)
	if err != nil {
		return Meeting{}, nil, err
	}
	var open []Membership
	for _, membership := range r.memberships {
		if membership.MeetingID == id && membership.Open() {
			open = append(open, membership)
		}
	}
	return meeting, open, nil
}

func (r *meetingRepoStub) WithMeetingTx(ctx context.Context, meetingID string, fn func(tx MeetingTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.txCalls++
	meetings := maps.Clone(r.meetings)
	memberships := maps.Clone(r.memberships)
	if err := fn(r); err != nil {
		r.meetings = meetings
		r.memberships = memberships
		return err
	}
	return nil
}

func (r *meetingRepoStub) UpdateMeetingStatus(ctx context.Context, id string, expected, next MeetingStatus, at time.Time) (Meeting, error) {
	if r.updateErr != nil {
		return Meeting{}, r.updateErr
	}
	meeting, ok := r.meetings[id]
	if !ok {
		return Meeting{}, ErrNotFound
	}
	if meeting.Status != expected {
		return Meeting{}, persistence.ErrStatusConflict
	}
	stamp := at
	switch next {
	case MeetingActive:
		meeting.StartedAt = &stamp
	case MeetingEnded:
		meeting.EndedAt = &stamp
	}
	meeting.Status = next
	r.meetings[id] = meeting
	return meeting, nil
}

func (r *meetingRepoStub) CountOpenMemberships(ctx context.Context, meetingID string) (int, error) {
	count := 0
	for _, membership := range r.memberships {
		if membership.MeetingID == meetingID && membership.Open() {
			count++
		}
	}
	return count, nil
}

func (r *meetingRepoStub) GetMembership(ctx context.Context, meetingID, userID string) (Membership, error) {
	for _, membership := range r.memberships {
		if membership.MeetingID == meetingID && membership.UserID == userID {
			return membership, nil
		}
	}
	return Membership{}, ErrNotFound
}

func (r *meetingRepoStub) UpsertMembership(ctx context.Context, membership Membership) (Membership, error) {
	membership.LeftAt = nil
	r.memberships[membership.ID] = membership
	return membership, nil
}

func (r *meetingRepoStub) CloseMembership(ctx context.Context, membershipID string, leftAt time.Time) error {
	membership, ok := r.memberships[membershipID]
	if !ok || !membership.Open() {
		return ErrNotFound
	}
	stamp := leftAt
	membership.LeftAt = &stamp
	r.memberships[membershipID] = membership
	return nil
}

func (r *meetingRepoStub) CloseAllOpenMemberships(ctx context.Context, meetingID string, leftAt time.Time) (int, error) {
	if r.closeAllErr != nil {
		return 0, r.closeAllErr
	}
	closed := 0
	for id, membership := range r.memberships {
		if membership.MeetingID != meetingID || !membership.Open() {
			continue
		}
		stamp := leftAt
		membership.LeftAt = &stamp
		r.memberships[id] = membership
		closed++
	}
	return closed, nil
}

func (r *meetingRepoStub) openCount(meetingID string) int {
	count, _ := r.CountOpenMemberships(context.Background(), meetingID)
	return count
}

type sessionIssuerStub struct {
	err    error
	issued []SessionToken
	now    time.Time
}

func (s *sessionIssuerStub) IssueSession(ctx context.Context, userID string, meetingID *string) (SessionToken, error) {
	if s.err != nil {
		return SessionToken{}, s.err
	}
	token := SessionToken{
		Token:     "token-" + userID,
		UserID:    userID,
		MeetingID: meetingID,
		ExpiresAt: s.now.Add(2 * time.Hour),
	}
	s.issued = append(s.issued, token)
	return token, nil
}

type userDirectoryStub struct {
	users map[string]User
	err   error
}

func (d *userDirectoryStub) FindUserByID(ctx context.Context, id string) (User, error) {
	if d.err != nil {
		return User{}, d.err
	}
	user, ok := d.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

var fixedNow = time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
