package user

import (
	"context"
	"log/slog"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
)

// Repository is the profile store surface user administration needs.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]*rbac.Profile, int64, error)
	Get(ctx context.Context, userID string) (*rbac.Profile, error)
	ListRoles(ctx context.Context) ([]*rbac.Role, error)
	GetRole(ctx context.Context, roleID string) (*rbac.Role, error)
	UpdateRole(ctx context.Context, userID, roleID string) error
	UpdateStatus(ctx context.Context, userID, status string) error
}

// Authorizer answers who may administer whom.
type Authorizer interface {
	Profile(ctx context.Context, userID string) (*rbac.Profile, error)
	HasPermission(ctx context.Context, actorID, resource, action string, permCtx map[string]any) bool
	CanManageUser(ctx context.Context, actorID, targetID string) bool
	Invalidate(userID string)
}

// Auditor records administrative actions.
type Auditor interface {
	Log(ctx context.Context, userID, action, resource string, resourceID *string, details map[string]any)
}

type Service struct {
	repo     Repository
	resolver Authorizer
	auditor  Auditor
	logger   *slog.Logger
}

func NewService(repo Repository, resolver Authorizer, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		auditor:  auditor,
		logger:   logger,
	}
}

// ListUsers returns profiles visible to the actor. Requires users:read.
func (s *Service) ListUsers(ctx context.Context, actorID string, filters ListFilters) ([]*rbac.Profile, int64, error) {
	if !s.resolver.HasPermission(ctx, actorID, "users", "read", nil) {
		return nil, 0, internal.ErrPermissionDenied
	}
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}
	return s.repo.List(ctx, filters)
}

// GetUser returns one profile. Users may always read their own.
func (s *Service) GetUser(ctx context.Context, actorID, targetID string) (*rbac.Profile, error) {
	if actorID != targetID && !s.resolver.HasPermission(ctx, actorID, "users", "read", nil) {
		return nil, internal.ErrPermissionDenied
	}
	return s.repo.Get(ctx, targetID)
}

// ListRoles returns the role catalog. Requires users:read.
func (s *Service) ListRoles(ctx context.Context, actorID string) ([]*rbac.Role, error) {
	if !s.resolver.HasPermission(ctx, actorID, "users", "read", nil) {
		return nil, internal.ErrPermissionDenied
	}
	return s.repo.ListRoles(ctx)
}

// ChangeRole moves the target onto a new role. The actor needs the
// users:update grant and must sit strictly above the target in the
// role hierarchy; role changes to peers or superiors are refused.
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID, roleID string) (*rbac.Profile, error) {
	if !s.resolver.HasPermission(ctx, actorID, "users", "update", nil) {
		return nil, internal.ErrPermissionDenied
	}
	if !s.resolver.CanManageUser(ctx, actorID, targetID) {
		return nil, internal.ErrHierarchyViolated
	}

	target, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}

	previousRole := target.RoleID
	if err := s.repo.UpdateRole(ctx, targetID, role.ID); err != nil {
		return nil, err
	}
	s.resolver.Invalidate(targetID)

	s.auditor.Log(ctx, actorID, "user_role_changed", "users", &targetID, map[string]any{
		"previous_role_id": previousRole,
		"new_role_id":      role.ID,
	})
	s.logger.Info("user role changed",
		"actor_id", actorID,
		"target_id", targetID,
		"role_id", role.ID)

	return s.repo.Get(ctx, targetID)
}

// ChangeStatus activates or deactivates the target account. Same
// hierarchy rules as ChangeRole; actors cannot deactivate themselves.
func (s *Service) ChangeStatus(ctx context.Context, actorID, targetID, status string) (*rbac.Profile, error) {
	if status != rbac.StatusActive && status != rbac.StatusInactive && status != rbac.StatusSuspended {
		return nil, internal.NewValidationError("unknown profile status: "+status, internal.ErrCodeValidationFailed)
	}
	if actorID == targetID {
		return nil, internal.NewConflictError("cannot change the status of your own account", internal.ErrCodeInvalidAction)
	}
	if !s.resolver.HasPermission(ctx, actorID, "users", "update", nil) {
		return nil, internal.ErrPermissionDenied
	}
	if !s.resolver.CanManageUser(ctx, actorID, targetID) {
		return nil, internal.ErrHierarchyViolated
	}

	target, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}

	previous := target.Status
	if err := s.repo.UpdateStatus(ctx, targetID, status); err != nil {
		return nil, err
	}
	s.resolver.Invalidate(targetID)

	s.auditor.Log(ctx, actorID, "user_status_changed", "users", &targetID, map[string]any{
		"previous_status": previous,
		"new_status":      status,
	})
	s.logger.Info("user status changed",
		"actor_id", actorID,
		"target_id", targetID,
		"status", status)

	return s.repo.Get(ctx, targetID)
}

// ListFilters narrows user listings.
type ListFilters struct {
	RoleID     string
	Status     string
	Department string
	Search     string
	Limit      int
	Offset     int
}
