package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/persistence"
	"github.com/example/meeting-service/internal/testfixtures"
)

func membershipOf(t *testing.T, h *testfixtures.Harness, meetingID, userID string) persistence.Membership {
	t.Helper()
	var out persistence.Membership
	err := h.Meetings.WithMeetingTx(context.Background(), meetingID, func(tx persistence.MeetingTx) error {
		var err error
		out, err = tx.GetMembership(context.Background(), meetingID, userID)
		return err
	})
	if err != nil {
		t.Fatalf("GetMembership(%s, %s): %v", meetingID, userID, err)
	}
	return out
}

func TestStandupScenario(t *testing.T) {
	for name, newHarness := range testfixtures.HarnessConstructors() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)

			host := testfixtures.NewUserFixture(testfixtures.WithUserID("host"))
			outsider := testfixtures.NewUserFixture(testfixtures.WithUserID("outsider"))
			a := testfixtures.NewUserFixture(testfixtures.WithUserID("a"))
			b := testfixtures.NewUserFixture(testfixtures.WithUserID("b"))
			c := testfixtures.NewUserFixture(testfixtures.WithUserID("c"))
			h.SeedUsers(t, host, outsider, a, b, c)

			factory := testfixtures.NewServiceFactory(testfixtures.WithClock(testfixtures.NewSteppingClock(time.Time{}, time.Second)))
			svc := factory.NewServices(h)

			meeting, err := svc.Meetings.CreateMeeting(ctx, testfixtures.CreateParams(host, "Standup", 2))
			if err != nil {
				t.Fatalf("CreateMeeting: %v", err)
			}
			if meeting.Status != application.MeetingScheduled {
				t.Fatalf("expected SCHEDULED, got %s", meeting.Status)
			}

			if _, err := svc.Meetings.StartMeeting(ctx, outsider.Principal(), meeting.ID); !errors.Is(err, application.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized for non-host start, got %v", err)
			}
			started, err := svc.Meetings.StartMeeting(ctx, host.Principal(), meeting.ID)
			if err != nil || started.Status != application.MeetingActive || started.StartedAt == nil {
				t.Fatalf("StartMeeting: %#v %v", started, err)
			}

			mustJoin := func(user testfixtures.UserFixture) application.JoinResult {
				t.Helper()
				result, err := svc.Admission.JoinMeeting(ctx, user.Principal(), meeting.ID)
				if err != nil {
					t.Fatalf("JoinMeeting(%s): %v", user.ID, err)
				}
				return result
			}

			mustJoin(a)
			mustJoin(b)
			if _, err := svc.Admission.JoinMeeting(ctx, c.Principal(), meeting.ID); !errors.Is(err, application.ErrCapacityReached) {
				t.Fatalf("expected ErrCapacityReached for c, got %v", err)
			}

			if err := svc.Admission.LeaveMeeting(ctx, a.Principal(), meeting.ID); err != nil {
				t.Fatalf("LeaveMeeting(a): %v", err)
			}
			mustJoin(c)

			detail, found, err := svc.Queries.GetMeetingDetail(ctx, meeting.ID)
			if err != nil || !found {
				t.Fatalf("GetMeetingDetail: %v %v", found, err)
			}
			if len(detail.Participants) != 2 || detail.Host == nil || detail.Host.ID != host.ID {
				t.Fatalf("unexpected detail %#v", detail)
			}
			if membershipOf(t, h, meeting.ID, a.ID).Open() {
				t.Fatalf("expected a's membership to be closed")
			}

			ended, err := svc.Meetings.EndMeeting(ctx, host.Principal(), meeting.ID)
			if err != nil || ended.Status != application.MeetingEnded || ended.EndedAt == nil {
				t.Fatalf("EndMeeting: %#v %v", ended, err)
			}

			_, open, err := h.Meetings.GetMeetingSnapshot(ctx, meeting.ID)
			if err != nil {
				t.Fatalf("GetMeetingSnapshot: %v", err)
			}
			if len(open) != 0 {
				t.Fatalf("expected 0 open memberships, got %d", len(open))
			}
			for _, user := range []testfixtures.UserFixture{b, c} {
				m := membershipOf(t, h, meeting.ID, user.ID)
				if m.LeftAt == nil || !m.LeftAt.Equal(*ended.EndedAt) {
					t.Fatalf("expected %s closed at %v, got %v", user.ID, ended.EndedAt, m.LeftAt)
				}
			}

			if _, err := svc.Admission.JoinMeeting(ctx, a.Principal(), meeting.ID); !errors.Is(err, application.ErrInvalidState) {
				t.Fatalf("expected ErrInvalidState after end, got %v", err)
			}
			if _, err := svc.Meetings.StartMeeting(ctx, host.Principal(), meeting.ID); !errors.Is(err, application.ErrInvalidState) {
				t.Fatalf("expected ErrInvalidState restarting, got %v", err)
			}
			if got := len(svc.Sessions.Issued()); got != 3 {
				t.Fatalf("expected 3 sessions issued, got %d", got)
			}
		})
	}
}

func TestRejoinReusesMembership(t *testing.T) {
	for name, newHarness := range testfixtures.HarnessConstructors() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)

			host := testfixtures.NewUserFixture()
			guest := testfixtures.NewUserFixture()
			h.SeedUsers(t, host, guest)
			meeting := testfixtures.NewMeetingFixture(host.ID, testfixtures.Active())
			h.SeedMeetings(t, meeting)

			svc := testfixtures.NewServiceFactory(testfixtures.WithClock(testfixtures.NewSteppingClock(time.Time{}, time.Minute))).NewServices(h)

			first, err := svc.Admission.JoinMeeting(ctx, guest.Principal(), meeting.ID)
			if err != nil || first.Rejoined {
				t.Fatalf("first join: %#v %v", first, err)
			}
			if _, err := svc.Admission.JoinMeeting(ctx, guest.Principal(), meeting.ID); !errors.Is(err, application.ErrConflict) {
				t.Fatalf("expected ErrConflict for duplicate join, got %v", err)
			}
			if err := svc.Admission.LeaveMeeting(ctx, guest.Principal(), meeting.ID); err != nil {
				t.Fatalf("leave: %v", err)
			}
			if err := svc.Admission.LeaveMeeting(ctx, guest.Principal(), meeting.ID); !errors.Is(err, application.ErrConflict) {
				t.Fatalf("expected ErrConflict for second leave, got %v", err)
			}

			second, err := svc.Admission.JoinMeeting(ctx, guest.Principal(), meeting.ID)
			if err != nil || !second.Rejoined {
				t.Fatalf("rejoin: %#v %v", second, err)
			}
			if second.Membership.ID != first.Membership.ID {
				t.Fatalf("expected membership %s to be reused, got %s", first.Membership.ID, second.Membership.ID)
			}
			if !second.Membership.JoinedAt.After(first.Membership.JoinedAt) {
				t.Fatalf("expected joined_at to move forward")
			}

			stored := membershipOf(t, h, meeting.ID, guest.ID)
			if stored.ID != first.Membership.ID || !stored.Open() {
				t.Fatalf("unexpected stored membership %#v", stored)
			}
			open, err := h.Meetings.ListOpenParticipants(ctx, meeting.ID)
			if err != nil || len(open) != 1 {
				t.Fatalf("expected exactly one open row, got %d (%v)", len(open), err)
			}
		})
	}
}

func TestConcurrentLastSlot(t *testing.T) {
	const capacity = 3

	for name, newHarness := range testfixtures.HarnessConstructors() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)

			host := testfixtures.NewUserFixture()
			present := []testfixtures.UserFixture{testfixtures.NewUserFixture(), testfixtures.NewUserFixture()}
			racers := []testfixtures.UserFixture{testfixtures.NewUserFixture(), testfixtures.NewUserFixture()}
			h.SeedUsers(t, host)
			h.SeedUsers(t, present...)
			h.SeedUsers(t, racers...)

			meeting := testfixtures.NewMeetingFixture(host.ID, testfixtures.Active(), testfixtures.WithMeetingCapacity(capacity))
			h.SeedMeetings(t, meeting)

			svc := testfixtures.NewServiceFactory().NewServices(h)
			for _, user := range present {
				if _, err := svc.Admission.JoinMeeting(ctx, user.Principal(), meeting.ID); err != nil {
					t.Fatalf("join %s: %v", user.ID, err)
				}
			}

			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				results = make([]error, len(racers))
			)
			for i, user := range racers {
				wg.Add(1)
				go func(i int, user testfixtures.UserFixture) {
					defer wg.Done()
					<-start
					_, results[i] = svc.Admission.JoinMeeting(ctx, user.Principal(), meeting.ID)
				}(i, user)
			}
			close(start)
			wg.Wait()

			var succeeded, full int
			for _, err := range results {
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, application.ErrCapacityReached):
					full++
				default:
					t.Fatalf("unexpected join error: %v", err)
				}
			}
			if succeeded != 1 || full != 1 {
				t.Fatalf("expected one success and one capacity failure, got %d and %d", succeeded, full)
			}

			open, err := h.Meetings.ListOpenParticipants(ctx, meeting.ID)
			if err != nil || len(open) != capacity {
				t.Fatalf("expected %d open memberships, got %d (%v)", capacity, len(open), err)
			}
		})
	}
}

func TestConcurrentStart(t *testing.T) {
	const starters = 10

	for name, newHarness := range testfixtures.HarnessConstructors() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)

			host := testfixtures.NewUserFixture()
			h.SeedUsers(t, host)
			meeting := testfixtures.NewMeetingFixture(host.ID)
			h.SeedMeetings(t, meeting)

			svc := testfixtures.NewServiceFactory().NewServices(h)

			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				results = make([]error, starters)
			)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, results[i] = svc.Meetings.StartMeeting(ctx, host.Principal(), meeting.ID)
				}(i)
			}
			close(start)
			wg.Wait()

			var started, invalid int
			for _, err := range results {
				switch {
				case err == nil:
					started++
				case errors.Is(err, application.ErrInvalidState):
					invalid++
				default:
					t.Fatalf("unexpected start error: %v", err)
				}
			}
			if started != 1 || invalid != starters-1 {
				t.Fatalf("expected one start and %d invalid state errors, got %d and %d", starters-1, started, invalid)
			}

			stored, err := h.Meetings.GetMeeting(ctx, meeting.ID)
			if err != nil || stored.Status != persistence.StatusActive || stored.StartedAt == nil {
				t.Fatalf("expected an ACTIVE meeting with a start time, got %#v (%v)", stored, err)
			}
		})
	}
}

func TestEndIsNeverObservedWithOpenMemberships(t *testing.T) {
	const (
		capacity = 5
		joiners  = 40
		readers  = 4
	)

	for name, newHarness := range testfixtures.HarnessConstructors() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)

			host := testfixtures.NewUserFixture()
			h.SeedUsers(t, host)
			users := make([]testfixtures.UserFixture, joiners)
			for i := range users {
				users[i] = testfixtures.NewUserFixture()
			}
			h.SeedUsers(t, users...)

			meeting := testfixtures.NewMeetingFixture(host.ID, testfixtures.Active(), testfixtures.WithMeetingCapacity(capacity))
			h.SeedMeetings(t, meeting)

			svc := testfixtures.NewServiceFactory().NewServices(h)

			var (
				wg       sync.WaitGroup
				readerWG sync.WaitGroup
				start    = make(chan struct{})
				done     = make(chan struct{})
				joinErrs = make([]error, joiners)
				mu       sync.Mutex
				observed []string
			)

			for r := 0; r < readers; r++ {
				readerWG.Add(1)
				go func() {
					defer readerWG.Done()
					<-start
					for {
						detail, found, err := svc.Queries.GetMeetingDetail(ctx, meeting.ID)
						if err == nil && found && detail.Meeting.Status == application.MeetingEnded && len(detail.Participants) > 0 {
							mu.Lock()
							observed = append(observed, detail.Participants[0].Membership.UserID)
							mu.Unlock()
						}
						select {
						case <-done:
							return
						default:
						}
					}
				}()
			}

			for i, user := range users {
				wg.Add(1)
				go func(i int, user testfixtures.UserFixture) {
					defer wg.Done()
					<-start
					_, joinErrs[i] = svc.Admission.JoinMeeting(ctx, user.Principal(), meeting.ID)
				}(i, user)
			}

			var endErr error
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, endErr = svc.Meetings.EndMeeting(ctx, host.Principal(), meeting.ID)
			}()

			close(start)
			wg.Wait()
			close(done)
			readerWG.Wait()

			if endErr != nil {
				t.Fatalf("EndMeeting: %v", endErr)
			}
			var admitted int
			for _, err := range joinErrs {
				switch {
				case err == nil:
					admitted++
				case errors.Is(err, application.ErrCapacityReached), errors.Is(err, application.ErrInvalidState):
				default:
					t.Fatalf("unexpected join error: %v", err)
				}
			}
			if admitted > capacity {
				t.Fatalf("admitted %d users into a meeting of %d", admitted, capacity)
			}
			if len(observed) > 0 {
				t.Fatalf("ENDED meeting observed with open memberships (first: %s)", observed[0])
			}

			stored, open, err := h.Meetings.GetMeetingSnapshot(ctx, meeting.ID)
			if err != nil {
				t.Fatalf("GetMeetingSnapshot: %v", err)
			}
			if stored.Status != persistence.StatusEnded || len(open) != 0 {
				t.Fatalf("expected ENDED with no open memberships, got %s with %d", stored.Status, len(open))
			}
		})
	}
}
