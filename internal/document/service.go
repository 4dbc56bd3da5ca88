package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/core/events"
	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
	"github.com/ipeimoveis/crm-backend/internal/storage"
	"github.com/ipeimoveis/crm-backend/internal/task"
)

// signedURLTTL is how long a download link stays valid.
const signedURLTTL = time.Hour

// Repository defines the data access methods for documents, their
// versions, and their workflow records.
type Repository interface {
	GetType(ctx context.Context, id string) (*DocumentType, error)
	ListTypes(ctx context.Context, category string) ([]*DocumentType, error)
	ListRequiredTypes(ctx context.Context, category string) ([]*DocumentType, error)

	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, filters ListFilters) ([]*Document, int64, error)
	UpdateStatus(ctx context.Context, doc *Document) error
	CreateVersion(ctx context.Context, originalID string, next *Document) (*Document, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	ListExpiring(ctx context.Context, from, to time.Time) ([]*Document, error)
	ExistingTypeIDs(ctx context.Context, clientID string, statuses []string) (map[string]bool, error)

	AddComment(ctx context.Context, comment *DocumentComment) error
	ListComments(ctx context.Context, documentID string) ([]*DocumentComment, error)

	CreateTask(ctx context.Context, t *DocumentTask) error
	ListUserPendingTasks(ctx context.Context, userID string) ([]*DocumentTask, error)

	AddActivity(ctx context.Context, activity *DocumentActivity) error
	ListActivities(ctx context.Context, documentID string) ([]*DocumentActivity, error)

	Stats(ctx context.Context) (*DocumentStats, error)
}

// PermissionChecker gates document operations.
type PermissionChecker interface {
	HasPermission(ctx context.Context, actorID, resource, action string, permCtx map[string]any) bool
}

// Service handles the document workflow: intake, review, versioning,
// and completeness tracking.
type Service struct {
	repo        Repository
	store       storage.Backend
	permissions PermissionChecker
	bus         *events.EventBus
	logger      *slog.Logger
}

func NewService(repo Repository, store storage.Backend, permissions PermissionChecker, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		store:       store,
		permissions: permissions,
		bus:         bus,
		logger:      logger,
	}
}

// GetDocumentTypes lists the catalog, optionally by category.
func (s *Service) GetDocumentTypes(ctx context.Context, category string) ([]*DocumentType, error) {
	return s.repo.ListTypes(ctx, category)
}

// CreateDocument stores a new draft document, uploads its file with a
// content hash, and seeds the first workflow stage's review task.
func (s *Service) CreateDocument(ctx context.Context, actorID string, dto CreateDocumentDTO) (*Document, error) {
	if !s.permissions.HasPermission(ctx, actorID, "documents", "create", nil) {
		s.logger.Warn("create document denied", "actor_id", actorID)
		return nil, internal.ErrPermissionDenied
	}

	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	docType, err := s.repo.GetType(ctx, dto.DocumentTypeID)
	if err != nil {
		return nil, err
	}

	visibility := dto.Visibility
	if visibility == "" {
		visibility = "team"
	}

	now := time.Now().UTC()
	doc := &Document{
		ID:                uuid.NewString(),
		DocumentTypeID:    docType.ID,
		Title:             dto.Title,
		Description:       dto.Description,
		ClientID:          dto.ClientID,
		PropertyID:        dto.PropertyID,
		ContractID:        dto.ContractID,
		LeadID:            dto.LeadID,
		Version:           1,
		IsLatestVersion:   true,
		Status:            StatusDraft,
		WorkflowData:      jsonb.Map{},
		Visibility:        visibility,
		RequiresSignature: dto.RequiresSignature,
		SignatureData:     jsonb.Map{},
		ExpiryDate:        dto.ExpiryDate,
		CreatedBy:         actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
		DocumentType:      docType,
	}

	if dto.File != nil {
		if err := s.attachFile(ctx, doc, dto.File); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		s.logger.Error("failed to create document", "error", err, "actor_id", actorID)
		return nil, err
	}

	s.logActivity(ctx, doc.ID, actorID, "created", jsonb.Map{
		"document_title": doc.Title,
	}, nil)

	s.createWorkflowTask(ctx, doc, docType)

	s.logger.Info("document created",
		"document_id", doc.ID,
		"type", docType.Name,
		"created_by", actorID)

	s.bus.Publish(ctx, events.NewDocumentUploadedEvent(doc.ID, docType.Name, actorID, doc.Version))

	return doc, nil
}

// GetDocument loads one document and records the view.
func (s *Service) GetDocument(ctx context.Context, actorID, documentID string) (*Document, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !s.permissions.HasPermission(ctx, actorID, "documents", "read", map[string]any{
		"owner_id": doc.CreatedBy,
	}) {
		return nil, internal.ErrPermissionDenied
	}

	s.logActivity(ctx, documentID, actorID, "viewed", jsonb.Map{}, nil)
	return doc, nil
}

// GetDocuments lists latest-version documents matching the filters.
func (s *Service) GetDocuments(ctx context.Context, actorID string, filters ListFilters) ([]*Document, int64, error) {
	if !s.permissions.HasPermission(ctx, actorID, "documents", "read", nil) {
		return nil, 0, internal.ErrPermissionDenied
	}
	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}
	return s.repo.List(ctx, filters)
}

// UpdateDocumentStatus moves a document through review. Approval
// stamps who approved and when; the optional comment lands as an
// internal comment.
func (s *Service) UpdateDocumentStatus(ctx context.Context, actorID, documentID string, dto UpdateStatusDTO) (*Document, error) {
	if !s.permissions.HasPermission(ctx, actorID, "documents", "review", nil) {
		s.logger.Warn("document review denied", "actor_id", actorID, "document_id", documentID)
		return nil, internal.ErrPermissionDenied
	}

	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidStatus)
	}

	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc.Status = dto.Status
	doc.UpdatedBy = &actorID
	doc.UpdatedAt = now
	if dto.Status == StatusApproved {
		doc.ApprovedBy = &actorID
		doc.ApprovedAt = &now
	}

	if err := s.repo.UpdateStatus(ctx, doc); err != nil {
		s.logger.Error("failed to update document status", "document_id", documentID, "error", err)
		return nil, err
	}

	activityType := "updated"
	if dto.Status == StatusApproved {
		activityType = "approved"
	} else if dto.Status == StatusRejected {
		activityType = "rejected"
	}
	s.logActivity(ctx, documentID, actorID, activityType, jsonb.Map{
		"new_status": dto.Status,
		"comment":    dto.Comment,
	}, nil)

	if dto.Comment != "" {
		if _, err := s.AddComment(ctx, actorID, documentID, dto.Comment, true); err != nil {
			s.logger.Error("failed to store review comment", "document_id", documentID, "error", err)
		}
	}

	s.logger.Info("document status updated",
		"document_id", documentID,
		"status", dto.Status,
		"actor_id", actorID)

	s.bus.Publish(ctx, events.NewDocumentReviewedEvent(documentID, dto.Status, actorID))

	return doc, nil
}

// CreateDocumentVersion uploads a replacement file and flips the
// version chain atomically: the old head loses is_latest_version and
// the new row gains it in the same transaction, so readers never see
// zero or two heads.
func (s *Service) CreateDocumentVersion(ctx context.Context, actorID, originalID string, file *FileUpload) (*Document, error) {
	if !s.permissions.HasPermission(ctx, actorID, "documents", "update", nil) {
		return nil, internal.ErrPermissionDenied
	}
	if file == nil {
		return nil, internal.NewValidationError("a file is required to create a new version", internal.ErrCodeValidationFailed)
	}

	original, err := s.repo.GetByID(ctx, originalID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next := &Document{
		ID:                uuid.NewString(),
		DocumentTypeID:    original.DocumentTypeID,
		Title:             original.Title,
		Description:       original.Description,
		ClientID:          original.ClientID,
		PropertyID:        original.PropertyID,
		ContractID:        original.ContractID,
		LeadID:            original.LeadID,
		Status:            StatusDraft,
		WorkflowData:      jsonb.Map{},
		Visibility:        original.Visibility,
		RequiresSignature: original.RequiresSignature,
		SignatureData:     jsonb.Map{},
		ExpiryDate:        original.ExpiryDate,
		CreatedBy:         actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.attachFile(ctx, next, file); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateVersion(ctx, originalID, next)
	if err != nil {
		s.logger.Error("failed to create document version",
			"original_id", originalID,
			"error", err)
		return nil, err
	}

	s.logActivity(ctx, created.ID, actorID, "updated", jsonb.Map{
		"action":    "new_version",
		"version":   created.Version,
		"file_name": file.FileName,
	}, nil)

	s.logger.Info("document version created",
		"document_id", created.ID,
		"original_id", originalID,
		"version", created.Version)

	s.bus.Publish(ctx, events.NewDocumentUploadedEvent(created.ID, created.DocumentTypeID, actorID, created.Version))

	return created, nil
}

// AddComment attaches a comment to the document.
func (s *Service) AddComment(ctx context.Context, actorID, documentID, comment string, isInternal bool) (*DocumentComment, error) {
	if comment == "" {
		return nil, internal.NewValidationError("comment is required", internal.ErrCodeValidationFailed)
	}
	c := &DocumentComment{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		UserID:     actorID,
		Comment:    comment,
		IsInternal: isInternal,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.AddComment(ctx, c); err != nil {
		s.logger.Error("failed to add comment", "document_id", documentID, "error", err)
		return nil, err
	}
	return c, nil
}

// GetComments lists a document's comments.
func (s *Service) GetComments(ctx context.Context, actorID, documentID string) ([]*DocumentComment, error) {
	if !s.permissions.HasPermission(ctx, actorID, "documents", "read", nil) {
		return nil, internal.ErrPermissionDenied
	}
	return s.repo.ListComments(ctx, documentID)
}

// GetUserPendingTasks lists open document tasks assigned to the user.
func (s *Service) GetUserPendingTasks(ctx context.Context, userID string) ([]*DocumentTask, error) {
	return s.repo.ListUserPendingTasks(ctx, userID)
}

// GetExpiringDocuments returns latest-version documents expiring within
// the given number of days.
func (s *Service) GetExpiringDocuments(ctx context.Context, days int) ([]*Document, error) {
	if days <= 0 {
		days = 30
	}
	now := time.Now().UTC()
	return s.repo.ListExpiring(ctx, now, now.AddDate(0, 0, days))
}

// GetMissingDocuments returns the required client document types the
// client has no usable (approved or in-review) latest version for.
func (s *Service) GetMissingDocuments(ctx context.Context, clientID string) ([]*DocumentType, error) {
	required, err := s.repo.ListRequiredTypes(ctx, CategoryClient)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ExistingTypeIDs(ctx, clientID, []string{StatusApproved, StatusPendingReview})
	if err != nil {
		return nil, err
	}

	var missing []*DocumentType
	for _, t := range required {
		if !existing[t.ID] {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// GetDocumentStats summarizes the document workload.
func (s *Service) GetDocumentStats(ctx context.Context) (*DocumentStats, error) {
	return s.repo.Stats(ctx)
}

// DownloadFile returns a time-limited signed URL for the document's
// file and records the download.
func (s *Service) DownloadFile(ctx context.Context, actorID, documentID string) (string, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return "", err
	}
	if !s.permissions.HasPermission(ctx, actorID, "documents", "read", map[string]any{
		"owner_id": doc.CreatedBy,
	}) {
		return "", internal.ErrPermissionDenied
	}
	if doc.FilePath == nil {
		return "", internal.NewNotFoundError("document has no file attached", internal.ErrCodeDocumentNotFound)
	}

	url, err := s.store.SignedURL(*doc.FilePath, signedURLTTL)
	if err != nil {
		return "", err
	}

	fileName := ""
	if doc.FileName != nil {
		fileName = *doc.FileName
	}
	s.logActivity(ctx, documentID, actorID, "downloaded", jsonb.Map{
		"file_name": fileName,
	}, nil)

	return url, nil
}

// DeleteDocument soft deletes; the row and its file stay around for
// retention.
func (s *Service) DeleteDocument(ctx context.Context, actorID, documentID string) error {
	if !s.permissions.HasPermission(ctx, actorID, "documents", "delete", nil) {
		return internal.ErrPermissionDenied
	}
	if _, err := s.repo.GetByID(ctx, documentID); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, documentID, time.Now().UTC()); err != nil {
		s.logger.Error("failed to delete document", "document_id", documentID, "error", err)
		return err
	}
	s.logActivity(ctx, documentID, actorID, "deleted", jsonb.Map{}, nil)
	return nil
}

// GetDocumentActivities returns the document's trail, newest first.
func (s *Service) GetDocumentActivities(ctx context.Context, actorID, documentID string) ([]*DocumentActivity, error) {
	if !s.permissions.HasPermission(ctx, actorID, "documents", "read", nil) {
		return nil, internal.ErrPermissionDenied
	}
	return s.repo.ListActivities(ctx, documentID)
}

// attachFile uploads the content and fills the document's file columns,
// including the SHA-256 content hash.
func (s *Service) attachFile(ctx context.Context, doc *Document, file *FileUpload) error {
	folder := "general"
	if doc.ClientID != nil {
		folder = "clients/" + *doc.ClientID
	}
	key := fmt.Sprintf("documents/%s/%s/%s", folder, doc.ID, file.FileName)

	info, err := s.store.Upload(ctx, key, file.ContentType, bytes.NewReader(file.Content))
	if err != nil {
		s.logger.Error("document file upload failed", "document_id", doc.ID, "error", err)
		return err
	}

	sum := sha256.Sum256(file.Content)
	hash := hex.EncodeToString(sum[:])

	doc.FileName = &file.FileName
	doc.FileSize = &info.Size
	doc.FileType = &file.ContentType
	doc.FilePath = &key
	doc.FileHash = &hash
	return nil
}

// createWorkflowTask seeds the review task for the type's first
// workflow stage, if any.
func (s *Service) createWorkflowTask(ctx context.Context, doc *Document, docType *DocumentType) {
	if len(docType.WorkflowStages) == 0 {
		return
	}
	firstStage := docType.WorkflowStages[0]

	description := "Document must pass the stage: " + firstStage
	t := &DocumentTask{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		Title:       firstStage + " - " + doc.Title,
		Description: &description,
		TaskType:    TaskReview,
		Priority:    task.PriorityMedium,
		Status:      task.StatusPending,
		CreatedBy:   doc.CreatedBy,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateTask(ctx, t); err != nil {
		s.logger.Error("failed to create workflow task", "document_id", doc.ID, "error", err)
	}
}

// logActivity appends a trail entry; failures are logged, never
// surfaced.
func (s *Service) logActivity(ctx context.Context, documentID, userID, activityType string, data jsonb.Map, ip *string) {
	activity := &DocumentActivity{
		ID:           uuid.NewString(),
		DocumentID:   documentID,
		UserID:       userID,
		ActivityType: activityType,
		ActivityData: data,
		IPAddress:    ip,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.AddActivity(ctx, activity); err != nil {
		s.logger.Error("failed to log document activity",
			"document_id", documentID,
			"activity_type", activityType,
			"error", err)
	}
}
