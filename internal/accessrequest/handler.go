package accessrequest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/ipeimoveis/crm-backend/internal/auth"
	"github.com/ipeimoveis/crm-backend/internal/transport"
	"github.com/ipeimoveis/crm-backend/pkg/logger"
)

type ServiceAPI interface {
	SubmitAccessRequest(ctx context.Context, dto SubmitRequestDTO) (*SubmitRequestResult, error)
	GetPendingRequests(ctx context.Context, actorID string) ([]*AccessRequest, error)
	GetRequest(ctx context.Context, actorID, requestID string) (*AccessRequest, error)
	ReviewAccessRequest(ctx context.Context, reviewerID, requestID string, dto ReviewRequestDTO) (*ReviewResult, error)
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

type submitDocumentBody struct {
	DocumentType  string `json:"document_type"`
	FileName      string `json:"file_name"`
	ContentType   string `json:"content_type"`
	ContentBase64 string `json:"content_base64"`
}

type submitRequestBody struct {
	Email         string               `json:"email"`
	FullName      string               `json:"full_name"`
	Phone         string               `json:"phone"`
	Department    string               `json:"department"`
	DesiredRoleID *string              `json:"desired_role_id,omitempty"`
	Message       string               `json:"message,omitempty"`
	Documents     []submitDocumentBody `json:"documents,omitempty"`
}

// Submit is the public intake endpoint; no authentication required.
// Document contents arrive base64 encoded.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var body submitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.Logger.Error("Submit: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dto := SubmitRequestDTO{
		Email:         body.Email,
		FullName:      body.FullName,
		Phone:         body.Phone,
		Department:    body.Department,
		DesiredRoleID: body.DesiredRoleID,
		Message:       body.Message,
	}
	for _, doc := range body.Documents {
		content, err := base64.StdEncoding.DecodeString(doc.ContentBase64)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "document content must be base64 encoded")
			return
		}
		dto.Documents = append(dto.Documents, DocumentUpload{
			DocumentType: doc.DocumentType,
			FileName:     doc.FileName,
			ContentType:  doc.ContentType,
			Content:      content,
		})
	}

	result, err := h.Service.SubmitAccessRequest(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requests, err := h.Service.GetPendingRequests(r.Context(), user.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	request, err := h.Service.GetRequest(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto ReviewRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("Review: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.ReviewAccessRequest(r.Context(), user.ID, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}
