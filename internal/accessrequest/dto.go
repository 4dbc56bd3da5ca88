package accessrequest

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// AccessRequest is a prospective user's application for platform
// access. At most one open request may exist per email; the database
// enforces that with a partial unique index over open statuses.
type AccessRequest struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	Email         string     `json:"email" gorm:"column:email;not null"`
	FullName      string     `json:"full_name" gorm:"column:full_name;not null"`
	Phone         string     `json:"phone" gorm:"column:phone"`
	Department    string     `json:"department" gorm:"column:department"`
	DesiredRoleID *string    `json:"desired_role_id,omitempty" gorm:"column:desired_role_id"`
	Message       string     `json:"message" gorm:"column:message"`
	Status        string     `json:"status" gorm:"column:status;default:pending"`
	ReviewedBy    *string    `json:"reviewed_by,omitempty" gorm:"column:reviewed_by"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty" gorm:"column:reviewed_at"`
	ReviewNotes   string     `json:"review_notes" gorm:"column:review_notes"`
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`

	Documents []RequestDocument `json:"documents" gorm:"foreignKey:RequestID"`
}

func (AccessRequest) TableName() string {
	return "access_requests"
}

// RequestDocument is an identity or credential file attached to an
// access request.
type RequestDocument struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	RequestID    string    `json:"request_id" gorm:"column:request_id;index;not null"`
	DocumentType string    `json:"document_type" gorm:"column:document_type;not null"`
	FileName     string    `json:"file_name" gorm:"column:file_name;not null"`
	StorageKey   string    `json:"storage_key" gorm:"column:storage_key;not null"`
	SizeBytes    int64     `json:"size_bytes" gorm:"column:size_bytes"`
	UploadedAt   time.Time `json:"uploaded_at" gorm:"column:uploaded_at;default:now()"`
}

func (RequestDocument) TableName() string {
	return "access_request_documents"
}

// LoginAttempt records one login outcome for lockout accounting.
// FailureReason is empty on success.
type LoginAttempt struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	Email         string    `json:"email" gorm:"column:email;index;not null"`
	Success       bool      `json:"success" gorm:"column:success;not null"`
	FailureReason string    `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	IPAddress     string    `json:"ip_address" gorm:"column:ip_address"`
	UserAgent     string    `json:"user_agent" gorm:"column:user_agent"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at;index;default:now()"`
}

func (LoginAttempt) TableName() string {
	return "login_attempts"
}

// Access request status constants
const (
	StatusPending     = "pending"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

// IsOpen reports whether the request is still awaiting a decision.
func IsOpen(status string) bool {
	return status == StatusPending || status == StatusUnderReview
}

// DocumentUpload carries one uploaded file within a submission.
type DocumentUpload struct {
	DocumentType string `json:"document_type"`
	FileName     string `json:"file_name"`
	ContentType  string `json:"content_type"`
	Content      []byte `json:"-"`
}

// SubmitRequestDTO is the public submission payload.
type SubmitRequestDTO struct {
	Email         string           `json:"email"`
	FullName      string           `json:"full_name"`
	Phone         string           `json:"phone"`
	Department    string           `json:"department"`
	DesiredRoleID *string          `json:"desired_role_id,omitempty"`
	Message       string           `json:"message,omitempty"`
	Documents     []DocumentUpload `json:"documents,omitempty"`
}

func (dto SubmitRequestDTO) Validate() error {
	if strings.TrimSpace(dto.Email) == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(dto.Email); err != nil {
		return errors.New("email is not a valid address")
	}
	if strings.TrimSpace(dto.FullName) == "" {
		return errors.New("full name is required")
	}
	for _, doc := range dto.Documents {
		if doc.DocumentType == "" {
			return errors.New("document type is required for each uploaded file")
		}
		if doc.FileName == "" {
			return errors.New("file name is required for each uploaded file")
		}
	}
	return nil
}

// SubmitRequestResult reports the stored request plus any documents
// that could not be uploaded. A partial upload failure does not fail
// the submission.
type SubmitRequestResult struct {
	Request         *AccessRequest `json:"request"`
	FailedDocuments []string       `json:"failed_documents,omitempty"`
}

// Review actions
const (
	ReviewActionApprove         = "approve"
	ReviewActionReject          = "reject"
	ReviewActionRequestMoreInfo = "request_more_info"
)

// ReviewRequestDTO is the reviewer's decision payload. TempPassword
// lets the reviewer hand the new user a chosen credential; left empty,
// one is generated.
type ReviewRequestDTO struct {
	Action       string `json:"action"`
	RoleID       string `json:"role_id,omitempty"`
	Notes        string `json:"notes,omitempty"`
	TempPassword string `json:"temp_password,omitempty"`
}

func (dto ReviewRequestDTO) Validate() error {
	switch dto.Action {
	case ReviewActionApprove:
		if dto.RoleID == "" {
			return errors.New("role_id is required when approving a request")
		}
	case ReviewActionReject, ReviewActionRequestMoreInfo:
	default:
		return errors.New("action must be 'approve', 'reject' or 'request_more_info'")
	}
	return nil
}

// ReviewResult reports the decision outcome. TempPassword is set only
// on approval and is returned exactly once; it is never persisted in
// plaintext.
type ReviewResult struct {
	Request      *AccessRequest `json:"request"`
	UserCreated  bool           `json:"user_created"`
	UserID       string         `json:"user_id,omitempty"`
	TempPassword string         `json:"temp_password,omitempty"`
}
