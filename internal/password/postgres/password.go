package postgres

import (
	"context"
	"errors"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/password"
	"gorm.io/gorm"
)

type ChangeRequestRepository struct {
	db *gorm.DB
}

func NewChangeRequestRepository(db *gorm.DB) password.Repository {
	return &ChangeRequestRepository{db: db}
}

func (r *ChangeRequestRepository) CreateChangeRequest(ctx context.Context, req *password.ChangeRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *ChangeRequestRepository) GetChangeRequest(ctx context.Context, id string) (*password.ChangeRequest, error) {
	var req password.ChangeRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *ChangeRequestRepository) UpdateChangeRequest(ctx context.Context, req *password.ChangeRequest) error {
	res := r.db.WithContext(ctx).Model(&password.ChangeRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]interface{}{
			"status":      req.Status,
			"approved_by": req.ApprovedBy,
			"approved_at": req.ApprovedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrRequestNotFound
	}
	return nil
}
