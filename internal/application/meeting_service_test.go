package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/meeting-service/internal/persistence"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func scheduledMeeting(id, hostID string) Meeting {
	return Meeting{ID: id, Title: "Standup", HostID: hostID, MaxCapacity: 2, Status: MeetingScheduled, CreatedAt: fixedNow}
}

func TestMeetingService_CreateMeeting(t *testing.T) {
	t.Run("requires an authenticated principal", func(t *testing.T) {
		svc := NewMeetingService(newMeetingRepoStub(), sequentialIDs("m"), fixedClock)

		_, err := svc.CreateMeeting(context.Background(), CreateMeetingParams{
			Input: MeetingInput{Title: "Standup"},
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("validates title and capacity", func(t *testing.T) {
		svc := NewMeetingService(newMeetingRepoStub(), sequentialIDs("m"), fixedClock)

		_, err := svc.CreateMeeting(context.Background(), CreateMeetingParams{
			Principal: Principal{UserID: "host"},
			Input:     MeetingInput{Title: "   ", MaxCapacity: intPtr(0)},
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["title"]; !ok {
			t.Fatalf("expected title validation error, got %v", vErr.FieldErrors)
		}
		if _, ok := vErr.FieldErrors["max_capacity"]; !ok {
			t.Fatalf("expected max_capacity validation error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("rejects capacity above the ceiling", func(t *testing.T) {
		svc := NewMeetingService(newMeetingRepoStub(), sequentialIDs("m"), fixedClock, WithCapacityCeiling(10))

		_, err := svc.CreateMeeting(context.Background(), CreateMeetingParams{
			Principal: Principal{UserID: "host"},
			Input:     MeetingInput{Title: "All hands", MaxCapacity: intPtr(11)},
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["max_capacity"] == "" {
			t.Fatalf("expected max_capacity validation error, got %v", err)
		}
	})

	t.Run("persists a scheduled meeting with the default capacity", func(t *testing.T) {
		repo := newMeetingRepoStub()
		svc := NewMeetingService(repo, sequentialIDs("m"), fixedClock)

		meeting, err := svc.CreateMeeting(context.Background(), CreateMeetingParams{
			Principal: Principal{UserID: "host"},
			Input:     MeetingInput{Title: "  Standup  ", Description: strPtr("  ")},
		})
		if err != nil {
			t.Fatalf("CreateMeeting returned error: %v", err)
		}

		if meeting.ID != "m-1" || meeting.Title != "Standup" || meeting.HostID != "host" {
			t.Fatalf("unexpected meeting %#v", meeting)
		}
		if meeting.MaxCapacity != DefaultMaxCapacity {
			t.Fatalf("expected default capacity %d, got %d", DefaultMaxCapacity, meeting.MaxCapacity)
		}
		if meeting.Status != MeetingScheduled || meeting.StartedAt != nil || meeting.EndedAt != nil {
			t.Fatalf("expected a fresh scheduled meeting, got %#v", meeting)
		}
		if meeting.Description != nil {
			t.Fatalf("expected blank description to be dropped, got %q", *meeting.Description)
		}
		if _, ok := repo.meetings["m-1"]; !ok {
			t.Fatalf("expected meeting to be persisted")
		}
	})

	t.Run("honours a configured default capacity", func(t *testing.T) {
		svc := NewMeetingService(newMeetingRepoStub(), sequentialIDs("m"), fixedClock, WithDefaultCapacity(8))

		meeting, err := svc.CreateMeeting(context.Background(), CreateMeetingParams{
			Principal: Principal{UserID: "host"},
			Input:     MeetingInput{Title: "Retro"},
		})
		if err != nil {
			t.Fatalf("CreateMeeting returned error: %v", err)
		}
		if meeting.MaxCapacity != 8 {
			t.Fatalf("expected capacity 8, got %d", meeting.MaxCapacity)
		}
	})

	t.Run("surfaces storage failures as internal errors", func(t *testing.T) {
		repo := newMeetingRepoStub()
		repo.createErr = errors.New("disk full")
		svc := NewMeetingService(repo, sequentialIDs("m"), fixedClock)

		_, err := svc.CreateMeeting(context.Background(), CreateMeetingParams{
			Principal: Principal{UserID: "host"},
			Input:     MeetingInput{Title: "Standup"},
		})
		if err == nil || ErrorKind(err) != "unexpected" {
			t.Fatalf("expected unexpected error kind, got %v (%s)", err, ErrorKind(err))
		}
	})
}

func TestMeetingService_StartMeeting(t *testing.T) {
	t.Run("returns not found for unknown meetings", func(t *testing.T) {
		svc := NewMeetingService(newMeetingRepoStub(), nil, fixedClock)

		_, err := svc.StartMeeting(context.Background(), Principal{UserID: "host"}, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects non hosts in every status", func(t *testing.T) {
		for _, status := range []MeetingStatus{MeetingScheduled, MeetingActive, MeetingEnded} {
			meeting := scheduledMeeting("m1", "host")
			meeting.Status = status
			svc := NewMeetingService(newMeetingRepoStub(meeting), nil, fixedClock)

			_, err := svc.StartMeeting(context.Background(), Principal{UserID: "intruder"}, "m1")
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("status %s: expected ErrUnauthorized, got %v", status, err)
			}
		}
	})

	t.Run("rejects meetings that are not scheduled", func(t *testing.T) {
		meeting := scheduledMeeting("m1", "host")
		meeting.Status = MeetingActive
		svc := NewMeetingService(newMeetingRepoStub(meeting), nil, fixedClock)

		_, err := svc.StartMeeting(context.Background(), Principal{UserID: "host"}, "m1")
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("activates the meeting", func(t *testing.T) {
		repo := newMeetingRepoStub(scheduledMeeting("m1", "host"))
		svc := NewMeetingService(repo, nil, fixedClock)

		meeting, err := svc.StartMeeting(context.Background(), Principal{UserID: "host"}, "m1")
		if err != nil {
			t.Fatalf("StartMeeting returned error: %v", err)
		}
		if meeting.Status != MeetingActive || meeting.StartedAt == nil || !meeting.StartedAt.Equal(fixedNow) {
			t.Fatalf("unexpected meeting %#v", meeting)
		}
		if repo.txCalls != 1 {
			t.Fatalf("expected a single unit of work, got %d", repo.txCalls)
		}
	})

	t.Run("treats a lost status race as an internal failure", func(t *testing.T) {
		repo := newMeetingRepoStub(scheduledMeeting("m1", "host"))
		repo.updateErr = persistence.ErrStatusConflict
		svc := NewMeetingService(repo, nil, fixedClock)

		_, err := svc.StartMeeting(context.Background(), Principal{UserID: "host"}, "m1")
		if !errors.Is(err, persistence.ErrStatusConflict) || ErrorKind(err) != "unexpected" {
			t.Fatalf("expected internal status conflict, got %v (%s)", err, ErrorKind(err))
		}
	})
}

func TestMeetingService_EndMeeting(t *testing.T) {
	activeMeeting := func() Meeting {
		meeting := scheduledMeeting("m1", "host")
		meeting.Status = MeetingActive
		started := fixedNow
		meeting.StartedAt = &started
		return meeting
	}

	t.Run("rejects scheduled meetings", func(t *testing.T) {
		svc := NewMeetingService(newMeetingRepoStub(scheduledMeeting("m1", "host")), nil, fixedClock)

		_, err := svc.EndMeeting(context.Background(), Principal{UserID: "host"}, "m1")
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("rejects non hosts", func(t *testing.T) {
		svc := NewMeetingService(newMeetingRepoStub(activeMeeting()), nil, fixedClock)

		_, err := svc.EndMeeting(context.Background(), Principal{UserID: "guest"}, "m1")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("ends the meeting and closes open memberships", func(t *testing.T) {
		repo := newMeetingRepoStub(activeMeeting())
		repo.memberships["p1"] = Membership{ID: "p1", MeetingID: "m1", UserID: "a", JoinedAt: fixedNow}
		repo.memberships["p2"] = Membership{ID: "p2", MeetingID: "m1", UserID: "b", JoinedAt: fixedNow}
		svc := NewMeetingService(repo, nil, fixedClock)

		meeting, err := svc.EndMeeting(context.Background(), Principal{UserID: "host"}, "m1")
		if err != nil {
			t.Fatalf("EndMeeting returned error: %v", err)
		}
		if meeting.Status != MeetingEnded || meeting.EndedAt == nil {
			t.Fatalf("unexpected meeting %#v", meeting)
		}
		if open := repo.openCount("m1"); open != 0 {
			t.Fatalf("expected no open memberships, got %d", open)
		}
		for id, membership := range repo.memberships {
			if membership.LeftAt == nil || !membership.LeftAt.Equal(*meeting.EndedAt) {
				t.Fatalf("membership %s not closed at end time: %#v", id, membership)
			}
		}
	})

	t.Run("rolls back the status change when closing memberships fails", func(t *testing.T) {
		repo := newMeetingRepoStub(activeMeeting())
		repo.memberships["p1"] = Membership{ID: "p1", MeetingID: "m1", UserID: "a", JoinedAt: fixedNow}
		repo.closeAllErr = errors.New("write failed")
		svc := NewMeetingService(repo, nil, fixedClock)

		if _, err := svc.EndMeeting(context.Background(), Principal{UserID: "host"}, "m1"); err == nil {
			t.Fatalf("expected EndMeeting to fail")
		}
		if status := repo.meetings["m1"].Status; status != MeetingActive {
			t.Fatalf("expected status to remain ACTIVE, got %s", status)
		}
		if open := repo.openCount("m1"); open != 1 {
			t.Fatalf("expected membership to stay open, got %d open", open)
		}
	})
}
