package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/meeting-service/internal/application"
)

type meetingService interface {
	CreateMeeting(ctx context.Context, params application.CreateMeetingParams) (application.Meeting, error)
	StartMeeting(ctx context.Context, principal application.Principal, meetingID string) (application.Meeting, error)
	EndMeeting(ctx context.Context, principal application.Principal, meetingID string) (application.Meeting, error)
}

type admissionService interface {
	JoinMeeting(ctx context.Context, principal application.Principal, meetingID string) (application.JoinResult, error)
	LeaveMeeting(ctx context.Context, principal application.Principal, meetingID string) error
}

type queryService interface {
	ListActiveMeetings(ctx context.Context) ([]application.MeetingSummary, error)
	GetMeetingDetail(ctx context.Context, meetingID string) (application.MeetingDetail, bool, error)
	ResolveHost(ctx context.Context, meeting application.Meeting) *application.User
}

// MeetingHandler serves the meeting lifecycle, admission and query routes.
type MeetingHandler struct {
	meetings  meetingService
	admission admissionService
	queries   queryService
	responder responder
	logger    *slog.Logger
}

func NewMeetingHandler(meetings meetingService, admission admissionService, queries queryService, logger *slog.Logger) *MeetingHandler {
	base := defaultLogger(logger)
	return &MeetingHandler{
		meetings:  meetings,
		admission: admission,
		queries:   queries,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *MeetingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "MeetingHandler", operation, attrs...)
}

// principal returns the caller or writes a 401.
func (h *MeetingHandler) principal(w http.ResponseWriter, r *http.Request, operation string) (application.Principal, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok || strings.TrimSpace(principal.UserID) == "" {
		h.log(r.Context(), operation, "error_kind", "unauthorized").WarnContext(r.Context(), "missing authenticated principal")
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthenticated, errMissingIdentity)
		return application.Principal{}, false
	}
	return principal, true
}

func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r, "Create")
	if !ok {
		return
	}

	var req createMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode meeting request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}

	meeting, err := h.meetings.CreateMeeting(r.Context(), application.CreateMeetingParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderMeeting(r.Context(), w, http.StatusCreated, meeting)
}

func (h *MeetingHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Start", h.meetings.StartMeeting)
}

func (h *MeetingHandler) End(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "End", h.meetings.EndMeeting)
}

func (h *MeetingHandler) transition(w http.ResponseWriter, r *http.Request, operation string, apply func(context.Context, application.Principal, string) (application.Meeting, error)) {
	principal, ok := h.principal(w, r, operation)
	if !ok {
		return
	}
	meeting, err := apply(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderMeeting(r.Context(), w, http.StatusOK, meeting)
}

func (h *MeetingHandler) Join(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r, "Join")
	if !ok {
		return
	}
	result, err := h.admission.JoinMeeting(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, joinResponse{
		Message:      "Successfully joined meeting",
		SessionToken: result.Session.Token,
		ExpiresAt:    formatTime(result.Session.ExpiresAt),
	})
}

func (h *MeetingHandler) Leave(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r, "Leave")
	if !ok {
		return
	}
	if err := h.admission.LeaveMeeting(r.Context(), principal, r.PathValue("id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Successfully left meeting"})
}

func (h *MeetingHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.queries.ListActiveMeetings(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]meetingDTO, 0, len(summaries))
	for _, summary := range summaries {
		dto := toMeetingDTO(summary.Meeting, summary.Host)
		count := summary.ParticipantCount
		dto.ParticipantCount = &count
		out = append(out, dto)
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listMeetingsResponse{Meetings: out})
}

func (h *MeetingHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, found, err := h.queries.GetMeetingDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if !found {
		h.responder.handleServiceError(r.Context(), w, application.ErrNotFound)
		return
	}

	dto := toMeetingDTO(detail.Meeting, detail.Host)
	count := len(detail.Participants)
	dto.ParticipantCount = &count

	participants := make([]participantDTO, 0, len(detail.Participants))
	for _, p := range detail.Participants {
		participants = append(participants, participantDTO{
			MembershipID: p.Membership.ID,
			UserID:       p.Membership.UserID,
			JoinedAt:     formatTime(p.Membership.JoinedAt),
			User:         toUserDTO(p.User),
		})
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, meetingDetailResponse{Meeting: dto, Participants: participants})
}

func (h *MeetingHandler) renderMeeting(ctx context.Context, w http.ResponseWriter, status int, meeting application.Meeting) {
	var host *application.User
	if h.queries != nil {
		host = h.queries.ResolveHost(ctx, meeting)
	}
	h.responder.writeJSON(ctx, w, status, meetingResponse{Meeting: toMeetingDTO(meeting, host)})
}

type createMeetingRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	MaxCapacity *int    `json:"max_capacity"`
}

func (r createMeetingRequest) toInput() application.MeetingInput {
	return application.MeetingInput{
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		MaxCapacity: r.MaxCapacity,
	}
}

type meetingResponse struct {
	Meeting meetingDTO `json:"meeting"`
}

type meetingDetailResponse struct {
	Meeting      meetingDTO       `json:"meeting"`
	Participants []participantDTO `json:"participants"`
}

type listMeetingsResponse struct {
	Meetings []meetingDTO `json:"meetings"`
}

type joinResponse struct {
	Message      string `json:"message"`
	SessionToken string `json:"session_token"`
	ExpiresAt    string `json:"expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type meetingDTO struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      *string  `json:"description,omitempty"`
	HostID           string   `json:"host_id"`
	Host             *userDTO `json:"host,omitempty"`
	MaxCapacity      int      `json:"max_capacity"`
	Status           string   `json:"status"`
	ParticipantCount *int     `json:"participant_count,omitempty"`
	CreatedAt        string   `json:"created_at"`
	StartedAt        *string  `json:"started_at,omitempty"`
	EndedAt          *string  `json:"ended_at,omitempty"`
}

type participantDTO struct {
	MembershipID string   `json:"membership_id"`
	UserID       string   `json:"user_id"`
	JoinedAt     string   `json:"joined_at"`
	User         *userDTO `json:"user,omitempty"`
}

type userDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func toMeetingDTO(meeting application.Meeting, host *application.User) meetingDTO {
	return meetingDTO{
		ID:          meeting.ID,
		Title:       meeting.Title,
		Description: meeting.Description,
		HostID:      meeting.HostID,
		Host:        toUserDTO(host),
		MaxCapacity: meeting.MaxCapacity,
		Status:      string(meeting.Status),
		CreatedAt:   formatTime(meeting.CreatedAt),
		StartedAt:   formatOptionalTime(meeting.StartedAt),
		EndedAt:     formatOptionalTime(meeting.EndedAt),
	}
}

func toUserDTO(user *application.User) *userDTO {
	if user == nil {
		return nil
	}
	return &userDTO{ID: user.ID, Email: user.Email, DisplayName: user.DisplayName}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
