package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ipeimoveis/crm-backend/internal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User is the local account row backing the provider when no hosted
// identity service is configured.
type User struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	FullName     string    `gorm:"column:full_name"`
	Phone        string    `gorm:"column:phone"`
	Department   string    `gorm:"column:department"`
	IsActive     bool      `gorm:"column:is_active;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

// GormProvider implements Provider on the local users table with
// bcrypt-hashed credentials.
type GormProvider struct {
	db         *gorm.DB
	bcryptCost int
}

func NewGormProvider(db *gorm.DB, bcryptCost int) *GormProvider {
	if bcryptCost < 12 {
		bcryptCost = 12
	}
	return &GormProvider{db: db, bcryptCost: bcryptCost}
}

func (p *GormProvider) CreateUser(ctx context.Context, email, password string, metadata map[string]string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return "", internal.NewInternalError("failed to hash password", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		FullName:     metadata["full_name"],
		Phone:        metadata["phone"],
		Department:   metadata["department"],
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := p.db.WithContext(ctx).Create(user).Error; err != nil {
		return "", internal.NewExternalError("identity provider rejected account creation", internal.ErrCodeIdentityProvider, err)
	}
	return user.ID, nil
}

func (p *GormProvider) DeleteUser(ctx context.Context, userID string) error {
	return p.db.WithContext(ctx).Where("id = ?", userID).Delete(&User{}).Error
}

func (p *GormProvider) GetByEmail(ctx context.Context, email string) (*Account, error) {
	var user User
	err := p.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrProfileNotFound
		}
		return nil, err
	}
	return &Account{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		Metadata: map[string]string{
			"full_name":  user.FullName,
			"phone":      user.Phone,
			"department": user.Department,
		},
	}, nil
}

// UpdatePassword replaces the stored hash. Used by the password change
// workflow after policy and authorization checks pass.
func (p *GormProvider) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.bcryptCost)
	if err != nil {
		return internal.NewInternalError("failed to hash password", err)
	}
	res := p.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password_hash": string(hash),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrProfileNotFound
	}
	return nil
}

// PasswordHash fetches the stored hash for verification.
func (p *GormProvider) PasswordHash(ctx context.Context, userID string) (string, error) {
	var user User
	err := p.db.WithContext(ctx).Select("password_hash").Where("id = ?", userID).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", internal.ErrProfileNotFound
		}
		return "", err
	}
	return user.PasswordHash, nil
}
