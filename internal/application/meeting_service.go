package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// MeetingService owns the meeting lifecycle: creation and the host driven
// SCHEDULED -> ACTIVE -> ENDED transitions.
type MeetingService struct {
	meetings        MeetingRepository
	idGenerator     func() string
	now             func() time.Time
	logger          *slog.Logger
	defaultCapacity int
	capacityCeiling int
}

// MeetingServiceOption customises a MeetingService.
type MeetingServiceOption func(*MeetingService)

// WithDefaultCapacity overrides the capacity used when none is supplied.
func WithDefaultCapacity(capacity int) MeetingServiceOption {
	return func(s *MeetingService) {
		if capacity > 0 {
			s.defaultCapacity = capacity
		}
	}
}

// WithCapacityCeiling rejects meetings asking for more than ceiling
// participants. Zero disables the ceiling.
func WithCapacityCeiling(ceiling int) MeetingServiceOption {
	return func(s *MeetingService) {
		if ceiling >= 0 {
			s.capacityCeiling = ceiling
		}
	}
}

// NewMeetingService constructs a meeting service with the provided dependencies.
func NewMeetingService(meetings MeetingRepository, idGenerator func() string, now func() time.Time, opts ...MeetingServiceOption) *MeetingService {
	return NewMeetingServiceWithLogger(meetings, idGenerator, now, nil, opts...)
}

// NewMeetingServiceWithLogger constructs a meeting service with a specified logger.
func NewMeetingServiceWithLogger(meetings MeetingRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger, opts ...MeetingServiceOption) *MeetingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	s := &MeetingService{
		meetings:        meetings,
		idGenerator:     idGenerator,
		now:             now,
		logger:          defaultLogger(logger),
		defaultCapacity: DefaultMaxCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MeetingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MeetingService", operation, attrs...)
}

// CreateMeeting validates input and persists a new SCHEDULED meeting hosted
// by the principal.
func (s *MeetingService) CreateMeeting(ctx context.Context, params CreateMeetingParams) (meeting Meeting, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}
	if s.meetings == nil {
		err = fmt.Errorf("meeting repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateMeeting",
		"principal_id", params.Principal.UserID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to create meeting", err)
			return
		}
		logger.With("meeting_id", meeting.ID, "max_capacity", meeting.MaxCapacity).InfoContext(ctx, "meeting created")
	}()

	if strings.TrimSpace(params.Principal.UserID) == "" {
		err = ErrUnauthorized
		return
	}

	vErr := s.validateMeetingInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	capacity := s.defaultCapacity
	if params.Input.MaxCapacity != nil {
		capacity = *params.Input.MaxCapacity
	}

	meeting = Meeting{
		ID:          s.idGenerator(),
		Title:       strings.TrimSpace(params.Input.Title),
		Description: normalizeOptionalString(params.Input.Description),
		HostID:      params.Principal.UserID,
		MaxCapacity: capacity,
		Status:      MeetingScheduled,
		CreatedAt:   s.now(),
	}

	var persisted Meeting
	persisted, err = s.meetings.CreateMeeting(ctx, meeting)
	if err != nil {
		err = mapMeetingRepoError(err)
		return
	}

	meeting = persisted
	return
}

// StartMeeting moves a SCHEDULED meeting to ACTIVE. Only the host may start it.
func (s *MeetingService) StartMeeting(ctx context.Context, principal Principal, meetingID string) (meeting Meeting, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}
	if s.meetings == nil {
		err = fmt.Errorf("meeting repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "StartMeeting",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to start meeting", err)
			return
		}
		logger.InfoContext(ctx, "meeting started")
	}()

	err = s.meetings.WithMeetingTx(ctx, meetingID, func(tx MeetingTx) error {
		current, err := s.authorizeHost(ctx, tx, principal, meetingID)
		if err != nil {
			return err
		}
		if current.Status != MeetingScheduled {
			return fmt.Errorf("%w: meeting is %s and can only be started while %s", ErrInvalidState, current.Status, MeetingScheduled)
		}

		meeting, err = tx.UpdateMeetingStatus(ctx, meetingID, MeetingScheduled, MeetingActive, s.now())
		return err
	})
	if err != nil {
		meeting = Meeting{}
		err = mapMeetingRepoError(err)
	}
	return
}

// EndMeeting moves an ACTIVE meeting to ENDED and closes every open
// membership in the same unit of work. Only the host may end it.
func (s *MeetingService) EndMeeting(ctx context.Context, principal Principal, meetingID string) (meeting Meeting, err error) {
	if s == nil {
		err = fmt.Errorf("MeetingService is nil")
		return
	}
	if s.meetings == nil {
		err = fmt.Errorf("meeting repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "EndMeeting",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)

	closed := 0
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to end meeting", err)
			return
		}
		logger.With("closed_memberships", closed).InfoContext(ctx, "meeting ended")
	}()

	err = s.meetings.WithMeetingTx(ctx, meetingID, func(tx MeetingTx) error {
		current, err := s.authorizeHost(ctx, tx, principal, meetingID)
		if err != nil {
			return err
		}
		if current.Status != MeetingActive {
			return fmt.Errorf("%w: meeting is %s and can only be ended while %s", ErrInvalidState, current.Status, MeetingActive)
		}

		endedAt := s.now()
		meeting, err = tx.UpdateMeetingStatus(ctx, meetingID, MeetingActive, MeetingEnded, endedAt)
		if err != nil {
			return err
		}

		closed, err = tx.CloseAllOpenMemberships(ctx, meetingID, endedAt)
		return err
	})
	if err != nil {
		meeting = Meeting{}
		closed = 0
		err = mapMeetingRepoError(err)
	}
	return
}

// authorizeHost loads the meeting and rejects callers other than its host.
// The host check precedes any status check.
func (s *MeetingService) authorizeHost(ctx context.Context, tx MeetingTx, principal Principal, meetingID string) (Meeting, error) {
	meeting, err := tx.GetMeeting(ctx, meetingID)
	if err != nil {
		return Meeting{}, err
	}
	if principal.UserID == "" || meeting.HostID != principal.UserID {
		return Meeting{}, fmt.Errorf("%w: only the host can change the meeting status", ErrUnauthorized)
	}
	return meeting, nil
}

func (s *MeetingService) validateMeetingInput(input MeetingInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}
	vErr.merge(s.validateCapacity(input.MaxCapacity))

	return vErr
}

func (s *MeetingService) validateCapacity(capacity *int) *ValidationError {
	if capacity == nil {
		return nil
	}

	vErr := &ValidationError{}
	switch {
	case *capacity <= 0:
		vErr.add("max_capacity", "max capacity must be positive")
	case s.capacityCeiling > 0 && *capacity > s.capacityCeiling:
		vErr.add("max_capacity", fmt.Sprintf("max capacity must not exceed %d", s.capacityCeiling))
	}
	return vErr
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
