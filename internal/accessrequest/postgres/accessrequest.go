package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/accessrequest"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type AccessRequestRepository struct {
	db *gorm.DB
}

func NewAccessRequestRepository(db *gorm.DB) accessrequest.Repository {
	return &AccessRequestRepository{db: db}
}

// Create inserts the request. The partial unique index on open
// statuses turns a concurrent duplicate into a constraint violation,
// which is mapped to the duplicate-request conflict here.
func (r *AccessRequestRepository) Create(ctx context.Context, request *accessrequest.AccessRequest) error {
	err := r.db.WithContext(ctx).Create(request).Error
	if err != nil && isUniqueViolation(err) {
		return internal.ErrDuplicateRequest
	}
	return err
}

func (r *AccessRequestRepository) AttachDocument(ctx context.Context, doc *accessrequest.RequestDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *AccessRequestRepository) GetByID(ctx context.Context, id string) (*accessrequest.AccessRequest, error) {
	var request accessrequest.AccessRequest
	err := r.db.WithContext(ctx).
		Preload("Documents").
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRequestNotFound
		}
		return nil, err
	}
	return &request, nil
}

func (r *AccessRequestRepository) ListOpen(ctx context.Context) ([]*accessrequest.AccessRequest, error) {
	var requests []*accessrequest.AccessRequest
	err := r.db.WithContext(ctx).
		Preload("Documents").
		Where("status IN ?", []string{accessrequest.StatusPending, accessrequest.StatusUnderReview}).
		Order("created_at ASC").
		Find(&requests).Error
	return requests, err
}

func (r *AccessRequestRepository) UpdateReview(ctx context.Context, request *accessrequest.AccessRequest) error {
	res := r.db.WithContext(ctx).Model(&accessrequest.AccessRequest{}).
		Where("id = ?", request.ID).
		Updates(map[string]interface{}{
			"status":       request.Status,
			"reviewed_by":  request.ReviewedBy,
			"reviewed_at":  request.ReviewedAt,
			"review_notes": request.ReviewNotes,
			"updated_at":   request.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrRequestNotFound
	}
	return nil
}

func (r *AccessRequestRepository) RecordAttempt(ctx context.Context, attempt *accessrequest.LoginAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *AccessRequestRepository) CountRecentFailures(ctx context.Context, email string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&accessrequest.LoginAttempt{}).
		Where("email = ? AND success = ? AND created_at > ?", email, false, since).
		Count(&count).Error
	return count, err
}

// isUniqueViolation covers both postgres (production) and sqlite
// (tests).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
