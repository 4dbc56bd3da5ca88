package postgres

import (
	"context"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	"gorm.io/gorm"
)

// ProfileRepository implements rbac.Repository using GORM.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*rbac.Profile, error) {
	var profile rbac.Profile
	err := r.db.WithContext(ctx).
		Preload("Role").
		Where("id = ?", userID).
		First(&profile).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) GetRole(ctx context.Context, roleID string) (*rbac.Role, error) {
	var role rbac.Role
	err := r.db.WithContext(ctx).Where("id = ?", roleID).First(&role).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrProfileNotFound
		}
		return nil, err
	}
	return &role, nil
}

// CreateProfile inserts the user_profiles row for a newly approved
// user. Identity account creation happens elsewhere; this only stores
// the projection RBAC reads.
func (r *ProfileRepository) CreateProfile(ctx context.Context, profile *rbac.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// UpdateRole changes a user's role. Callers are responsible for the
// hierarchy check and for invalidating the resolver cache afterwards.
func (r *ProfileRepository) UpdateRole(ctx context.Context, userID, roleID string) error {
	res := r.db.WithContext(ctx).Model(&rbac.Profile{}).
		Where("id = ?", userID).
		Update("role_id", roleID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrProfileNotFound
	}
	return nil
}

// UpdateStatus changes a user's status (active/inactive/suspended).
func (r *ProfileRepository) UpdateStatus(ctx context.Context, userID, status string) error {
	res := r.db.WithContext(ctx).Model(&rbac.Profile{}).
		Where("id = ?", userID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrProfileNotFound
	}
	return nil
}
