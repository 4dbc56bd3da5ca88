package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	"github.com/ipeimoveis/crm-backend/internal/user"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) List(ctx context.Context, filters user.ListFilters) ([]*rbac.Profile, int64, error) {
	query := r.db.WithContext(ctx).Model(&rbac.Profile{})

	if filters.RoleID != "" {
		query = query.Where("role_id = ?", filters.RoleID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.Department != "" {
		query = query.Where("department = ?", filters.Department)
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		query = query.Where("full_name LIKE ? OR email LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var profiles []*rbac.Profile
	err := query.
		Preload("Role").
		Order("full_name").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&profiles).Error
	return profiles, total, err
}

func (r *UserRepository) Get(ctx context.Context, userID string) (*rbac.Profile, error) {
	var profile rbac.Profile
	err := r.db.WithContext(ctx).
		Preload("Role").
		Where("id = ?", userID).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (r *UserRepository) ListRoles(ctx context.Context) ([]*rbac.Role, error) {
	var roles []*rbac.Role
	err := r.db.WithContext(ctx).Order("hierarchy_level DESC").Find(&roles).Error
	return roles, err
}

func (r *UserRepository) GetRole(ctx context.Context, roleID string) (*rbac.Role, error) {
	var role rbac.Role
	err := r.db.WithContext(ctx).Where("id = ?", roleID).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.NewNotFoundError("Role not found", internal.ErrCodeProfileNotFound)
		}
		return nil, err
	}
	return &role, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, userID, roleID string) error {
	res := r.db.WithContext(ctx).Model(&rbac.Profile{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"role_id":    roleID,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrProfileNotFound
	}
	return nil
}

func (r *UserRepository) UpdateStatus(ctx context.Context, userID, status string) error {
	res := r.db.WithContext(ctx).Model(&rbac.Profile{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrProfileNotFound
	}
	return nil
}
