package rbac

import (
	"strings"
	"time"

	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
)

const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Wildcard matches any resource or action in a permission grant.
const Wildcard = "*"

// Permission grants one action (or comma-separated list of actions, or
// "*") on one resource (or "*"), optionally narrowed by conditions
// evaluated against the request context.
type Permission struct {
	Resource   string    `json:"resource"`
	Action     string    `json:"action"`
	Conditions jsonb.Map `json:"conditions,omitempty"`
}

// Role orders users by hierarchy level. A higher level manages lower
// ones, never the other way around.
type Role struct {
	ID             string       `json:"id" gorm:"primaryKey"`
	Name           string       `json:"name" gorm:"column:name;not null"`
	HierarchyLevel int          `json:"hierarchy_level" gorm:"column:hierarchy_level;not null"`
	Permissions    Permissions  `json:"permissions" gorm:"column:permissions"`
	CreatedAt      time.Time    `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"column:updated_at"`
}

func (Role) TableName() string {
	return "user_roles"
}

// Profile is the identity projection RBAC reads. Identity fields are
// owned by the identity provider; only role and status change here,
// through explicit operations elsewhere.
type Profile struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Email      string    `json:"email" gorm:"column:email;uniqueIndex;not null"`
	FullName   string    `json:"full_name" gorm:"column:full_name"`
	Phone      *string   `json:"phone,omitempty" gorm:"column:phone"`
	Department *string   `json:"department,omitempty" gorm:"column:department"`
	RoleID     string    `json:"role_id" gorm:"column:role_id;not null"`
	Role       *Role     `json:"role,omitempty" gorm:"foreignKey:RoleID"`
	Status     string    `json:"status" gorm:"column:status;default:active"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Profile) TableName() string {
	return "user_profiles"
}

// FlatPermissions returns the profile's effective permission list.
func (p *Profile) FlatPermissions() []Permission {
	if p.Role == nil {
		return nil
	}
	return p.Role.Permissions
}

func (p *Profile) HierarchyLevel() int {
	if p.Role == nil {
		return 0
	}
	return p.Role.HierarchyLevel
}

// matchesResource checks resource equality or wildcard.
func (perm Permission) matchesResource(resource string) bool {
	return perm.Resource == Wildcard || perm.Resource == resource
}

// matchesAction checks action equality, wildcard, or membership in a
// comma-separated allow-list ("read,update,review").
func (perm Permission) matchesAction(action string) bool {
	if perm.Action == Wildcard || perm.Action == action {
		return true
	}
	if strings.Contains(perm.Action, ",") {
		for _, a := range strings.Split(perm.Action, ",") {
			if strings.TrimSpace(a) == action {
				return true
			}
		}
	}
	return false
}

// matchesConditions evaluates every declared condition against the
// request context and the actor's own profile. All conditions must
// hold. An unknown key falls back to exact equality against the
// context value.
func (perm Permission) matchesConditions(actor *Profile, permCtx map[string]any) bool {
	if len(perm.Conditions) == 0 {
		return true
	}
	for key, want := range perm.Conditions {
		switch key {
		case "owner":
			if want == "self" {
				if stringValue(permCtx["owner_id"]) != actor.ID {
					return false
				}
				continue
			}
			if stringValue(permCtx["owner_id"]) != stringValue(want) {
				return false
			}
		case "assigned_to":
			if want == "self" {
				if stringValue(permCtx["assigned_to"]) != actor.ID {
					return false
				}
				continue
			}
			if stringValue(permCtx["assigned_to"]) != stringValue(want) {
				return false
			}
		case "role":
			userRole := stringValue(permCtx["user_role"])
			if !valueInSet(userRole, want) {
				return false
			}
		case "department":
			dept := ""
			if actor.Department != nil {
				dept = *actor.Department
			}
			if dept != stringValue(want) {
				return false
			}
		default:
			if stringValue(permCtx[key]) != stringValue(want) {
				return false
			}
		}
	}
	return true
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// valueInSet matches a scalar against either a scalar or a set
// condition value.
func valueInSet(got string, want any) bool {
	switch w := want.(type) {
	case string:
		return got == w
	case []string:
		for _, v := range w {
			if got == v {
				return true
			}
		}
	case []any:
		for _, v := range w {
			if got == stringValue(v) {
				return true
			}
		}
	}
	return false
}
