package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/logging"
)

// Error codes reported in errorResponse.ErrorCode.
const (
	codeValidationFailed    = "VALIDATION_FAILED"
	codeMeetingNotFound     = "MEETING_NOT_FOUND"
	codeNotMeetingHost      = "NOT_MEETING_HOST"
	codeInvalidMeetingState = "INVALID_MEETING_STATE"
	codeMeetingFull         = "MEETING_FULL"
	codeMembershipConflict  = "MEMBERSHIP_CONFLICT"
	codeUserNotFound        = "USER_NOT_FOUND"
	codeInvalidCredentials  = "INVALID_CREDENTIALS"
	codeEmailInUse          = "EMAIL_IN_USE"
	codeUnauthenticated     = "UNAUTHENTICATED"
	codeBadRequest          = "BAD_REQUEST"
	codeInternal            = "INTERNAL_ERROR"
)

var (
	errBadRequestBody  = errors.New("request body is not valid JSON")
	errMissingToken    = errors.New("no token provided")
	errInvalidToken    = errors.New("invalid token")
	errMissingIdentity = errors.New("authentication required")
	errUserNotFound    = errors.New("user not found")
	errInternal        = errors.New("internal server error")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		message = err.Error()
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var vErr *application.ValidationError
	switch {
	case err == nil:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: codeInternal, Message: "unknown error"})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: codeValidationFailed,
			Message:   "Validation failed",
			Errors:    vErr.FieldErrors,
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: codeMeetingNotFound, Message: "Meeting not found"})
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: codeNotMeetingHost, Message: "Only the meeting host can perform this action"})
	case errors.Is(err, application.ErrInvalidState):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: codeInvalidMeetingState, Message: "Meeting is not in a valid state for this action"})
	case errors.Is(err, application.ErrCapacityReached):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: codeMeetingFull, Message: "Meeting is at full capacity"})
	case errors.Is(err, application.ErrConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: codeMembershipConflict, Message: membershipConflictMessage(err)})
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{ErrorCode: codeInvalidCredentials, Message: "Invalid email or password"})
	case errors.Is(err, application.ErrEmailTaken):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: codeEmailInUse, Message: "Email already in use"})
	default:
		// Services log unexpected failures before they reach the handler.
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: codeInternal, Message: "Internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

// membershipConflictMessage keeps the detail the admission service attached
// ("already in the meeting" or "not in the meeting") without the error prefix.
func membershipConflictMessage(err error) string {
	if detail, ok := strings.CutPrefix(err.Error(), application.ErrConflict.Error()+": "); ok && detail != "" {
		return detail
	}
	return "Membership conflict"
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
