package rbac

import (
	"context"
	"log/slog"
)

// Repository loads user profiles with their role and permissions.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	GetRole(ctx context.Context, roleID string) (*Role, error)
}

// Resolver answers permission questions. It is read-only: it never
// mutates roles or profiles, and a missing profile fails closed.
type Resolver struct {
	repo             Repository
	cache            *profileCache
	superAdminRoleID string
	logger           *slog.Logger
}

func NewResolver(repo Repository, superAdminRoleID string, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:             repo,
		cache:            newProfileCache(),
		superAdminRoleID: superAdminRoleID,
		logger:           logger,
	}
}

// Profile returns the cached profile for a user, loading it on miss.
func (r *Resolver) Profile(ctx context.Context, userID string) (*Profile, error) {
	if p, ok := r.cache.get(userID); ok {
		return p, nil
	}
	p, err := r.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.cache.put(userID, p)
	return p, nil
}

// Invalidate drops one user from the cache. Call after role or status
// changes so the next check sees fresh permissions.
func (r *Resolver) Invalidate(userID string) {
	r.cache.invalidate(userID)
}

// Clear empties the whole cache.
func (r *Resolver) Clear() {
	r.cache.clear()
}

// HasPermission reports whether the actor may perform action on
// resource given the request context. Super admins always pass;
// otherwise the first permission whose resource, action and conditions
// all match wins. No match, missing profile, or repository failure all
// yield false.
func (r *Resolver) HasPermission(ctx context.Context, actorID, resource, action string, permCtx map[string]any) bool {
	actor, err := r.Profile(ctx, actorID)
	if err != nil || actor == nil {
		r.logger.Warn("permission check failed closed: profile unavailable",
			"actor_id", actorID,
			"resource", resource,
			"action", action,
			"error", err)
		return false
	}

	if actor.Status != StatusActive {
		return false
	}

	if actor.RoleID == r.superAdminRoleID {
		return true
	}

	for _, perm := range actor.FlatPermissions() {
		if !perm.matchesResource(resource) {
			continue
		}
		if !perm.matchesAction(action) {
			continue
		}
		if perm.matchesConditions(actor, permCtx) {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the profile carries the configured
// super admin role.
func (r *Resolver) IsSuperAdmin(p *Profile) bool {
	return p != nil && p.RoleID == r.superAdminRoleID
}

// CanManageUser reports whether the actor may act on the target user.
// Super admins may manage anyone; everyone else needs strictly greater
// hierarchy. Equal levels never manage each other.
func (r *Resolver) CanManageUser(ctx context.Context, actorID, targetID string) bool {
	actor, err := r.Profile(ctx, actorID)
	if err != nil || actor == nil {
		return false
	}
	if actor.RoleID == r.superAdminRoleID {
		return true
	}
	target, err := r.Profile(ctx, targetID)
	if err != nil || target == nil {
		return false
	}
	return actor.HierarchyLevel() > target.HierarchyLevel()
}
