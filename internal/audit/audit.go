// Package audit appends the trail every privileged state change leaves
// behind. Entries are write-once; nothing in the system updates or
// deletes them.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
)

type Entry struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"column:user_id;index;not null"`
	Action     string    `json:"action" gorm:"column:action;not null"`
	Resource   string    `json:"resource" gorm:"column:resource;not null"`
	ResourceID *string   `json:"resource_id,omitempty" gorm:"column:resource_id"`
	Details    jsonb.Map `json:"details" gorm:"column:details"`
	IPAddress  string    `json:"ip_address" gorm:"column:ip_address"`
	UserAgent  string    `json:"user_agent" gorm:"column:user_agent"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Entry) TableName() string {
	return "audit_logs"
}

type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	ListByResource(ctx context.Context, resource, resourceID string) ([]*Entry, error)
}

// Service records audit events. Failures are logged and swallowed:
// audit logging is a best-effort side channel and must never fail the
// operation being audited.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Log appends one entry. Callers fire this after the primary mutation
// commits so readers never see an audit record for uncommitted state.
func (s *Service) Log(ctx context.Context, userID, action, resource string, resourceID *string, details map[string]any) {
	entry := &Entry{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if ip, ok := details["ip_address"].(string); ok {
		entry.IPAddress = ip
	}
	if ua, ok := details["user_agent"].(string); ok {
		entry.UserAgent = ua
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error("audit append failed",
			"action", action,
			"resource", resource,
			"user_id", userID,
			"error", err)
	}
}

func (s *Service) History(ctx context.Context, resource, resourceID string) ([]*Entry, error) {
	return s.repo.ListByResource(ctx, resource, resourceID)
}
