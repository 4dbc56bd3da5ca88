package password

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/ipeimoveis/crm-backend/internal/auth"
	"github.com/ipeimoveis/crm-backend/internal/transport"
	"github.com/ipeimoveis/crm-backend/pkg/logger"
)

type ServiceAPI interface {
	CanChangePassword(ctx context.Context, actorID, targetID string) Authorization
	ProcessPasswordChange(ctx context.Context, actorID, targetID string, dto ChangePasswordDTO) (*ChangeResult, error)
	ApproveChangeRequest(ctx context.Context, approverID, requestID, newPassword string) (*ChangeResult, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// CheckAuthorization answers whether the caller may change the target
// user's password and what the change would require.
func (h *Handler) CheckAuthorization(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	targetID := chi.URLParam(r, "userID")
	if targetID == "" {
		h.WriteError(w, http.StatusBadRequest, "user ID is required")
		return
	}

	h.WriteJSON(w, http.StatusOK, h.Service.CanChangePassword(r.Context(), user.ID, targetID))
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	targetID := chi.URLParam(r, "userID")
	if targetID == "" {
		targetID = user.ID
	}

	var dto ChangePasswordDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("ChangePassword: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.ProcessPasswordChange(r.Context(), user.ID, targetID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

type approveChangeDTO struct {
	NewPassword string `json:"new_password"`
}

func (h *Handler) ApproveChange(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		h.WriteError(w, http.StatusBadRequest, "request ID is required")
		return
	}

	var dto approveChangeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.ApproveChangeRequest(r.Context(), user.ID, requestID, dto.NewPassword)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}
