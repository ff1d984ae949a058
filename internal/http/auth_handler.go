package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/meeting-service/internal/application"
)

type authService interface {
	Register(ctx context.Context, params application.RegisterParams) (application.AuthResult, error)
	Login(ctx context.Context, params application.LoginParams) (application.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (application.AuthTokens, error)
	CurrentUser(ctx context.Context, principal application.Principal) (application.User, error)
}

// AuthHandler serves account registration, login, token refresh and the
// current user profile.
type AuthHandler struct {
	service   authService
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service authService, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req registerRequest
	if !h.decode(w, r, "Register", &req) {
		return
	}

	result, err := h.service.Register(r.Context(), application.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toAuthResponse(result))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if !h.decode(w, r, "Login", &req) {
		return
	}

	result, err := h.service.Login(r.Context(), application.LoginParams{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAuthResponse(result))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req refreshRequest
	if !h.decode(w, r, "Refresh", &req) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			h.responder.writeError(r.Context(), w, http.StatusNotFound, codeUserNotFound, errUserNotFound)
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toTokensDTO(tokens))
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, ok := PrincipalFromContext(r.Context())
	if !ok || strings.TrimSpace(principal.UserID) == "" {
		h.log(r.Context(), "Me", "error_kind", "unauthorized").WarnContext(r.Context(), "missing authenticated principal")
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthenticated, errMissingIdentity)
		return
	}

	user, err := h.service.CurrentUser(r.Context(), principal)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			h.responder.writeError(r.Context(), w, http.StatusNotFound, codeUserNotFound, errUserNotFound)
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, currentUserResponse{User: toAccountDTO(user)})
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, operation string, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log(r.Context(), operation, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode auth request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return false
	}
	return true
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokensDTO struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

type authResponse struct {
	User accountDTO `json:"user"`
	tokensDTO
}

type currentUserResponse struct {
	User accountDTO `json:"user"`
}

type accountDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toAuthResponse(result application.AuthResult) authResponse {
	return authResponse{User: toAccountDTO(result.User), tokensDTO: toTokensDTO(result.Tokens)}
}

// toTokensDTO reports lifetimes in seconds.
func toTokensDTO(tokens application.AuthTokens) tokensDTO {
	return tokensDTO{
		AccessToken:      tokens.AccessToken,
		RefreshToken:     tokens.RefreshToken,
		ExpiresIn:        int64(tokens.ExpiresIn / time.Second),
		RefreshExpiresIn: int64(tokens.RefreshExpiresIn / time.Second),
	}
}

func toAccountDTO(user application.User) accountDTO {
	return accountDTO{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		CreatedAt:   formatTime(user.CreatedAt),
		UpdatedAt:   formatTime(user.UpdatedAt),
	}
}
