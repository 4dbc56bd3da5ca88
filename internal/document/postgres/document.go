package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/document"
	"github.com/ipeimoveis/crm-backend/internal/task"
	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) document.Repository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) GetType(ctx context.Context, id string) (*document.DocumentType, error) {
	var t document.DocumentType
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.NewNotFoundError("Document type not found", internal.ErrCodeDocumentNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func (r *DocumentRepository) ListTypes(ctx context.Context, category string) ([]*document.DocumentType, error) {
	query := r.db.WithContext(ctx).Order("name")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var types []*document.DocumentType
	err := query.Find(&types).Error
	return types, err
}

func (r *DocumentRepository) ListRequiredTypes(ctx context.Context, category string) ([]*document.DocumentType, error) {
	var types []*document.DocumentType
	err := r.db.WithContext(ctx).
		Where("is_required = ? AND category = ?", true, category).
		Order("name").
		Find(&types).Error
	return types, err
}

func (r *DocumentRepository) Create(ctx context.Context, doc *document.Document) error {
	return r.db.WithContext(ctx).Omit("DocumentType").Create(doc).Error
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*document.Document, error) {
	var doc document.Document
	err := r.db.WithContext(ctx).
		Preload("DocumentType").
		Where("id = ? AND deleted_at IS NULL", id).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) List(ctx context.Context, filters document.ListFilters) ([]*document.Document, int64, error) {
	query := r.db.WithContext(ctx).Model(&document.Document{}).
		Where("is_latest_version = ? AND deleted_at IS NULL", true)

	if filters.ClientID != "" {
		query = query.Where("client_id = ?", filters.ClientID)
	}
	if filters.PropertyID != "" {
		query = query.Where("property_id = ?", filters.PropertyID)
	}
	if filters.LeadID != "" {
		query = query.Where("lead_id = ?", filters.LeadID)
	}
	if filters.TypeID != "" {
		query = query.Where("document_type_id = ?", filters.TypeID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.Search != "" {
		query = query.Where("title LIKE ?", "%"+filters.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var docs []*document.Document
	err := query.
		Preload("DocumentType").
		Order("created_at DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&docs).Error
	return docs, total, err
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, doc *document.Document) error {
	res := r.db.WithContext(ctx).Model(&document.Document{}).
		Where("id = ?", doc.ID).
		Updates(map[string]interface{}{
			"status":      doc.Status,
			"updated_by":  doc.UpdatedBy,
			"updated_at":  doc.UpdatedAt,
			"approved_by": doc.ApprovedBy,
			"approved_at": doc.ApprovedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrDocumentNotFound
	}
	return nil
}

// CreateVersion flips the version chain in a single transaction. The
// guarded update on is_latest_version doubles as the concurrency check:
// if another version landed first, zero rows flip and the whole
// transaction rolls back with a version conflict.
func (r *DocumentRepository) CreateVersion(ctx context.Context, originalID string, next *document.Document) (*document.Document, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var original document.Document
		if err := tx.Where("id = ? AND deleted_at IS NULL", originalID).First(&original).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return internal.ErrDocumentNotFound
			}
			return err
		}

		res := tx.Model(&document.Document{}).
			Where("id = ? AND is_latest_version = ?", originalID, true).
			Update("is_latest_version", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.ErrVersionConflict
		}

		parentID := originalID
		if original.ParentDocumentID != nil {
			parentID = *original.ParentDocumentID
		}
		next.Version = original.Version + 1
		next.ParentDocumentID = &parentID
		next.IsLatestVersion = true

		return tx.Omit("DocumentType").Create(next).Error
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (r *DocumentRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&document.Document{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"deleted_at": at,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]*document.Document, error) {
	var docs []*document.Document
	err := r.db.WithContext(ctx).
		Preload("DocumentType").
		Where("expiry_date IS NOT NULL").
		Where("expiry_date >= ? AND expiry_date <= ?", from, to).
		Where("is_latest_version = ? AND deleted_at IS NULL", true).
		Order("expiry_date").
		Find(&docs).Error
	return docs, err
}

func (r *DocumentRepository) ExistingTypeIDs(ctx context.Context, clientID string, statuses []string) (map[string]bool, error) {
	var typeIDs []string
	err := r.db.WithContext(ctx).Model(&document.Document{}).
		Where("client_id = ?", clientID).
		Where("is_latest_version = ? AND deleted_at IS NULL", true).
		Where("status IN ?", statuses).
		Pluck("document_type_id", &typeIDs).Error
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(typeIDs))
	for _, id := range typeIDs {
		existing[id] = true
	}
	return existing, nil
}

func (r *DocumentRepository) AddComment(ctx context.Context, comment *document.DocumentComment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *DocumentRepository) ListComments(ctx context.Context, documentID string) ([]*document.DocumentComment, error) {
	var comments []*document.DocumentComment
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}

func (r *DocumentRepository) CreateTask(ctx context.Context, t *document.DocumentTask) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *DocumentRepository) ListUserPendingTasks(ctx context.Context, userID string) ([]*document.DocumentTask, error) {
	var tasks []*document.DocumentTask
	err := r.db.WithContext(ctx).
		Where("assigned_to = ?", userID).
		Where("status IN ?", []string{task.StatusPending, task.StatusInProgress}).
		Order("due_date ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *DocumentRepository) AddActivity(ctx context.Context, activity *document.DocumentActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *DocumentRepository) ListActivities(ctx context.Context, documentID string) ([]*document.DocumentActivity, error) {
	var activities []*document.DocumentActivity
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Find(&activities).Error
	return activities, err
}

func (r *DocumentRepository) Stats(ctx context.Context) (*document.DocumentStats, error) {
	latest := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&document.Document{}).
			Where("is_latest_version = ? AND deleted_at IS NULL", true)
	}

	stats := &document.DocumentStats{
		ByStatus: make(map[string]int64),
		ByType:   make(map[string]int64),
	}

	if err := latest().Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var statusBuckets []bucket
	if err := latest().Select("status AS key, COUNT(*) AS count").Group("status").Scan(&statusBuckets).Error; err != nil {
		return nil, err
	}
	for _, b := range statusBuckets {
		stats.ByStatus[b.Key] = b.Count
	}

	var typeBuckets []bucket
	err := r.db.WithContext(ctx).Model(&document.Document{}).
		Select("document_types.name AS key, COUNT(*) AS count").
		Joins("JOIN document_types ON document_types.id = documents.document_type_id").
		Where("documents.is_latest_version = ? AND documents.deleted_at IS NULL", true).
		Group("document_types.name").
		Scan(&typeBuckets).Error
	if err != nil {
		return nil, err
	}
	for _, b := range typeBuckets {
		stats.ByType[b.Key] = b.Count
	}

	if err := r.db.WithContext(ctx).Model(&document.DocumentTask{}).
		Where("status IN ?", []string{task.StatusPending, task.StatusInProgress}).
		Count(&stats.PendingTasks).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := latest().
		Where("expiry_date IS NOT NULL").
		Where("expiry_date >= ? AND expiry_date <= ?", now, now.AddDate(0, 0, 30)).
		Count(&stats.ExpiringSoon).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
