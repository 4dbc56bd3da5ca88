package password

import "time"

// Authorization is the outcome of the password change policy check.
// RequiredAction tells the caller what else must happen before the
// change applies.
type Authorization struct {
	Authorized     bool   `json:"authorized"`
	Reason         string `json:"reason,omitempty"`
	RequiredAction string `json:"required_action,omitempty"`
}

// Required actions
const (
	ActionRequireCurrentPassword = "require_current_password"
	ActionRequireAdminApproval   = "require_admin_approval"
)

// ChangeRequest is a pending password change awaiting admin approval.
type ChangeRequest struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	TargetID    string     `json:"target_id" gorm:"column:target_id;index;not null"`
	RequestedBy string     `json:"requested_by" gorm:"column:requested_by;not null"`
	Status      string     `json:"status" gorm:"column:status;default:pending"`
	ApprovedBy  *string    `json:"approved_by,omitempty" gorm:"column:approved_by"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty" gorm:"column:approved_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (ChangeRequest) TableName() string {
	return "password_change_requests"
}

// Change request statuses
const (
	ChangeStatusPending  = "pending"
	ChangeStatusApproved = "approved"
	ChangeStatusRejected = "rejected"
)

// ChangePasswordDTO is the password change payload. The confirmation
// must repeat the new password exactly.
type ChangePasswordDTO struct {
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangeResult reports how the change concluded.
type ChangeResult struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// Change result statuses
const (
	ResultChanged         = "changed"
	ResultPendingApproval = "pending_approval"
)
