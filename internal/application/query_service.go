package application

import (
	"context"
	"fmt"
	"log/slog"
)

// QueryService serves read-only meeting projections.
type QueryService struct {
	meetings MeetingRepository
	users    UserDirectory
	logger   *slog.Logger
}

// NewQueryService constructs a query service with the provided dependencies.
func NewQueryService(meetings MeetingRepository, users UserDirectory) *QueryService {
	return NewQueryServiceWithLogger(meetings, users, nil)
}

// NewQueryServiceWithLogger constructs a query service with a specified logger.
func NewQueryServiceWithLogger(meetings MeetingRepository, users UserDirectory, logger *slog.Logger) *QueryService {
	return &QueryService{meetings: meetings, users: users, logger: defaultLogger(logger)}
}

func (s *QueryService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "QueryService", operation, attrs...)
}

// ListActiveMeetings returns active meetings newest first, each with its
// resolved host and live participant count.
func (s *QueryService) ListActiveMeetings(ctx context.Context) (summaries []MeetingSummary, err error) {
	if s == nil {
		err = fmt.Errorf("QueryService is nil")
		return
	}
	if s.meetings == nil {
		err = fmt.Errorf("meeting repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ListActiveMeetings")
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to list active meetings", err)
			return
		}
		logger.With("result_count", len(summaries)).DebugContext(ctx, "active meetings listed")
	}()

	var active []ActiveMeeting
	active, err = s.meetings.ListActiveMeetings(ctx)
	if err != nil {
		err = mapMeetingRepoError(err)
		return
	}

	resolve := s.resolver(ctx, logger)
	summaries = make([]MeetingSummary, 0, len(active))
	for _, item := range active {
		summaries = append(summaries, MeetingSummary{
			Meeting:          item.Meeting,
			Host:             resolve(item.Meeting.HostID),
			ParticipantCount: item.ParticipantCount,
		})
	}
	return
}

// GetMeetingDetail returns the meeting with its host and current roster.
// found is false, with a nil error, when the meeting does not exist.
func (s *QueryService) GetMeetingDetail(ctx context.Context, meetingID string) (detail MeetingDetail, found bool, err error) {
	if s == nil {
		err = fmt.Errorf("QueryService is nil")
		return
	}
	if s.meetings == nil {
		err = fmt.Errorf("meeting repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "GetMeetingDetail", "meeting_id", meetingID)
	defer func() {
		if err != nil {
			logFailure(ctx, logger, "failed to load meeting detail", err)
		}
	}()

	meeting, memberships, err := s.meetings.GetMeetingSnapshot(ctx, meetingID)
	if isNotFound(err) {
		return MeetingDetail{}, false, nil
	}
	if err != nil {
		err = mapMeetingRepoError(err)
		return
	}

	resolve := s.resolver(ctx, logger)
	detail = MeetingDetail{
		Meeting:      meeting,
		Host:         resolve(meeting.HostID),
		Participants: make([]Participant, 0, len(memberships)),
	}
	for _, membership := range memberships {
		detail.Participants = append(detail.Participants, Participant{
			Membership: membership,
			User:       resolve(membership.UserID),
		})
	}
	found = true
	return
}

// ResolveHost looks up the host of meeting, returning nil when the identity
// store has no record of it.
func (s *QueryService) ResolveHost(ctx context.Context, meeting Meeting) *User {
	if s == nil {
		return nil
	}
	return s.resolver(ctx, s.loggerWith(ctx, "ResolveHost", "meeting_id", meeting.ID))(meeting.HostID)
}

// resolver returns a lookup memoised for the lifetime of one call. Lookup
// failures degrade to a nil user.
func (s *QueryService) resolver(ctx context.Context, logger *slog.Logger) func(id string) *User {
	cache := make(map[string]*User)
	return func(id string) *User {
		if s.users == nil || id == "" {
			return nil
		}
		if user, ok := cache[id]; ok {
			return user
		}

		var resolved *User
		user, err := s.users.FindUserByID(ctx, id)
		switch {
		case err == nil:
			resolved = &user
		case !isNotFound(err):
			logger.WarnContext(ctx, "failed to resolve user", "user_id", id, "error", err)
		}
		cache[id] = resolved
		return resolved
	}
}
