package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AdmissionService owns participant join, leave and rejoin.
type AdmissionService struct {
	meetings    MeetingRepository
	sessions    SessionIssuer
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAdmissionService constructs an admission service with the provided dependencies.
func NewAdmissionService(meetings MeetingRepository, sessions SessionIssuer, idGenerator func() string, now func() time.Time) *AdmissionService {
	return NewAdmissionServiceWithLogger(meetings, sessions, idGenerator, now, nil)
}

// NewAdmissionServiceWithLogger constructs an admission service with a specified logger.
func NewAdmissionServiceWithLogger(meetings MeetingRepository, sessions SessionIssuer, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AdmissionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AdmissionService{
		meetings:    meetings,
		sessions:    sessions,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AdmissionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AdmissionService", operation, attrs...)
}

// JoinMeeting admits the principal to an active meeting with free capacity
// and issues a session token scoped to the meeting. A previously closed
// membership is reopened instead of creating a second one.
func (s *AdmissionService) JoinMeeting(ctx context.Context, principal Principal, meetingID string) (result JoinResult, err error) {
	if s == nil {
		err = fmt.Errorf("AdmissionService is nil")
		return
	}
	if s.meetings == nil {
		err = fmt.Errorf("meeting repository not configured")
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("session issuer not configured")
		return
	}

	logger := s.loggerWith(ctx, "JoinMeeting",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to join meeting", err)
			return
		}
		logger.With("membership_id", result.Membership.ID, "rejoined", result.Rejoined).InfoContext(ctx, "meeting joined")
	}()

	if principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	err = s.meetings.WithMeetingTx(ctx, meetingID, func(tx MeetingTx) error {
		meeting, err := tx.GetMeeting(ctx, meetingID)
		if err != nil {
			return err
		}
		if meeting.Status != MeetingActive {
			return fmt.Errorf("%w: meeting is %s and can only be joined while %s", ErrInvalidState, meeting.Status, MeetingActive)
		}

		open, err := tx.CountOpenMemberships(ctx, meetingID)
		if err != nil {
			return err
		}
		if open >= meeting.MaxCapacity {
			return fmt.Errorf("%w: %d of %d places taken", ErrCapacityReached, open, meeting.MaxCapacity)
		}

		membership := Membership{
			MeetingID: meetingID,
			UserID:    principal.UserID,
			JoinedAt:  s.now(),
		}

		existing, err := tx.GetMembership(ctx, meetingID, principal.UserID)
		switch {
		case err == nil && existing.Open():
			return fmt.Errorf("%w: user is already in the meeting", ErrConflict)
		case err == nil:
			membership.ID = existing.ID
			result.Rejoined = true
		case isNotFound(err):
			membership.ID = s.idGenerator()
		default:
			return err
		}

		result.Membership, err = tx.UpsertMembership(ctx, membership)
		return err
	})
	if err != nil {
		result = JoinResult{}
		err = mapMeetingRepoError(err)
		return
	}

	// The membership is committed at this point; a failed issue leaves the
	// user admitted and surfaces as an internal error.
	id := meetingID
	result.Session, err = s.sessions.IssueSession(ctx, principal.UserID, &id)
	if err != nil {
		err = fmt.Errorf("application: issue session: %w", err)
		return
	}
	return
}

// LeaveMeeting closes the principal's open membership in the meeting.
func (s *AdmissionService) LeaveMeeting(ctx context.Context, principal Principal, meetingID string) (err error) {
	if s == nil {
		return fmt.Errorf("AdmissionService is nil")
	}
	if s.meetings == nil {
		return fmt.Errorf("meeting repository not configured")
	}

	logger := s.loggerWith(ctx, "LeaveMeeting",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to leave meeting", err)
			return
		}
		logger.InfoContext(ctx, "meeting left")
	}()

	err = s.meetings.WithMeetingTx(ctx, meetingID, func(tx MeetingTx) error {
		membership, err := tx.GetMembership(ctx, meetingID, principal.UserID)
		if isNotFound(err) {
			return fmt.Errorf("%w: user is not in the meeting", ErrConflict)
		}
		if err != nil {
			return err
		}
		if !membership.Open() {
			return fmt.Errorf("%w: user is not in the meeting", ErrConflict)
		}

		err = tx.CloseMembership(ctx, membership.ID, s.now())
		if isNotFound(err) {
			return fmt.Errorf("%w: user is not in the meeting", ErrConflict)
		}
		return err
	})
	return mapMeetingRepoError(err)
}
