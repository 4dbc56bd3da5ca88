package document

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/ipeimoveis/crm-backend/internal/auth"
	"github.com/ipeimoveis/crm-backend/internal/transport"
	"github.com/ipeimoveis/crm-backend/pkg/logger"
)

// maxUploadSize bounds multipart uploads (25 MiB).
const maxUploadSize = 25 << 20

type ServiceAPI interface {
	GetDocumentTypes(ctx context.Context, category string) ([]*DocumentType, error)
	CreateDocument(ctx context.Context, actorID string, dto CreateDocumentDTO) (*Document, error)
	GetDocument(ctx context.Context, actorID, documentID string) (*Document, error)
	GetDocuments(ctx context.Context, actorID string, filters ListFilters) ([]*Document, int64, error)
	UpdateDocumentStatus(ctx context.Context, actorID, documentID string, dto UpdateStatusDTO) (*Document, error)
	CreateDocumentVersion(ctx context.Context, actorID, originalID string, file *FileUpload) (*Document, error)
	AddComment(ctx context.Context, actorID, documentID, comment string, isInternal bool) (*DocumentComment, error)
	GetComments(ctx context.Context, actorID, documentID string) ([]*DocumentComment, error)
	GetUserPendingTasks(ctx context.Context, userID string) ([]*DocumentTask, error)
	GetExpiringDocuments(ctx context.Context, days int) ([]*Document, error)
	GetMissingDocuments(ctx context.Context, clientID string) ([]*DocumentType, error)
	GetDocumentStats(ctx context.Context) (*DocumentStats, error)
	DownloadFile(ctx context.Context, actorID, documentID string) (string, error)
	DeleteDocument(ctx context.Context, actorID, documentID string) error
	GetDocumentActivities(ctx context.Context, actorID, documentID string) ([]*DocumentActivity, error)
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

func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.GetDocumentTypes(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"document_types": types})
}

// CreateDocument accepts a multipart form: metadata fields plus an
// optional "file" part.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.Logger.Error("CreateDocument: invalid multipart form", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	dto := CreateDocumentDTO{
		DocumentTypeID:    r.FormValue("document_type_id"),
		Title:             r.FormValue("title"),
		Description:       optional(r.FormValue("description")),
		ClientID:          optional(r.FormValue("client_id")),
		PropertyID:        optional(r.FormValue("property_id")),
		ContractID:        optional(r.FormValue("contract_id")),
		LeadID:            optional(r.FormValue("lead_id")),
		Visibility:        r.FormValue("visibility"),
		RequiresSignature: r.FormValue("requires_signature") == "true",
	}
	if expiry := r.FormValue("expiry_date"); expiry != "" {
		if t, err := time.Parse(time.RFC3339, expiry); err == nil {
			dto.ExpiryDate = &t
		}
	}

	file, err := h.readFilePart(r)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	dto.File = file

	doc, err := h.Service.CreateDocument(r.Context(), user.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	doc, err := h.Service.GetDocument(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	filters := ListFilters{
		ClientID:   q.Get("client_id"),
		PropertyID: q.Get("property_id"),
		LeadID:     q.Get("lead_id"),
		TypeID:     q.Get("type_id"),
		Status:     q.Get("status"),
		Search:     q.Get("search"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			filters.Limit = l
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			filters.Offset = o
		}
	}

	docs, total, err := h.Service.GetDocuments(r.Context(), user.ID, filters)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
	})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto UpdateStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.Service.UpdateDocumentStatus(r.Context(), user.ID, chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, doc)
}

// CreateVersion accepts a multipart form with a required "file" part.
func (h *Handler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, err := h.readFilePart(r)
	if err != nil || file == nil {
		h.WriteError(w, http.StatusBadRequest, "a file is required")
		return
	}

	doc, err := h.Service.CreateDocumentVersion(r.Context(), user.ID, chi.URLParam(r, "id"), file)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, doc)
}

type addCommentDTO struct {
	Comment    string `json:"comment"`
	IsInternal *bool  `json:"is_internal,omitempty"`
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto addCommentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	isInternal := true
	if dto.IsInternal != nil {
		isInternal = *dto.IsInternal
	}

	comment, err := h.Service.AddComment(r.Context(), user.ID, chi.URLParam(r, "id"), dto.Comment, isInternal)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, comment)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	comments, err := h.Service.GetComments(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"comments": comments})
}

func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	activities, err := h.Service.GetDocumentActivities(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"activities": activities})
}

func (h *Handler) MyTasks(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tasks, err := h.Service.GetUserPendingTasks(r.Context(), user.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	days := 30
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 {
			days = d
		}
	}

	docs, err := h.Service.GetExpiringDocuments(r.Context(), days)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *Handler) Missing(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	missing, err := h.Service.GetMissingDocuments(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"missing_documents": missing})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.Service.GetDocumentStats(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	url, err := h.Service.DownloadFile(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]string{"download_url": url})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.Service.DeleteDocument(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) readFilePart(r *http.Request) (*FileUpload, error) {
	f, header, err := r.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &FileUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
