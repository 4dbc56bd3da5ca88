package document

import (
	"errors"
	"strings"
	"time"

	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
)

// DocumentType is the catalog entry a document instantiates. Its
// workflow stages drive the review tasks created on upload.
type DocumentType struct {
	ID             string           `json:"id" gorm:"primaryKey"`
	Name           string           `json:"name" gorm:"column:name;not null"`
	Category       string           `json:"category" gorm:"column:category;not null"`
	RequiredFields jsonb.StringList `json:"required_fields" gorm:"column:required_fields"`
	WorkflowStages jsonb.StringList `json:"workflow_stages" gorm:"column:workflow_stages"`
	RetentionDays  int              `json:"retention_days" gorm:"column:retention_days"`
	IsRequired     bool             `json:"is_required" gorm:"column:is_required;default:false"`
	CreatedAt      time.Time        `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt      time.Time        `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (DocumentType) TableName() string {
	return "document_types"
}

// Document type categories
const (
	CategoryClient    = "client"
	CategoryProperty  = "property"
	CategoryContract  = "contract"
	CategoryLegal     = "legal"
	CategoryFinancial = "financial"
)

// Document is one versioned file in the workflow. Version rows form a
// chain through ParentDocumentID; exactly one row per chain carries
// IsLatestVersion.
type Document struct {
	ID             string  `json:"id" gorm:"primaryKey"`
	DocumentTypeID string  `json:"document_type_id" gorm:"column:document_type_id;not null"`
	Title          string  `json:"title" gorm:"column:title;not null"`
	Description    *string `json:"description,omitempty" gorm:"column:description"`

	ClientID   *string `json:"client_id,omitempty" gorm:"column:client_id;index"`
	PropertyID *string `json:"property_id,omitempty" gorm:"column:property_id;index"`
	ContractID *string `json:"contract_id,omitempty" gorm:"column:contract_id"`
	LeadID     *string `json:"lead_id,omitempty" gorm:"column:lead_id;index"`

	FileName *string `json:"file_name,omitempty" gorm:"column:file_name"`
	FileSize *int64  `json:"file_size,omitempty" gorm:"column:file_size"`
	FileType *string `json:"file_type,omitempty" gorm:"column:file_type"`
	FilePath *string `json:"file_path,omitempty" gorm:"column:file_path"`
	FileHash *string `json:"file_hash,omitempty" gorm:"column:file_hash"`

	Version          int     `json:"version" gorm:"column:version;default:1"`
	ParentDocumentID *string `json:"parent_document_id,omitempty" gorm:"column:parent_document_id;index"`
	IsLatestVersion  bool    `json:"is_latest_version" gorm:"column:is_latest_version;default:true"`

	Status       string    `json:"status" gorm:"column:status;default:draft"`
	CurrentStage *string   `json:"current_stage,omitempty" gorm:"column:current_stage"`
	WorkflowData jsonb.Map `json:"workflow_data" gorm:"column:workflow_data"`

	Visibility string `json:"visibility" gorm:"column:visibility;default:team"`

	RequiresSignature bool       `json:"requires_signature" gorm:"column:requires_signature;default:false"`
	SignatureData     jsonb.Map  `json:"signature_data" gorm:"column:signature_data"`
	ApprovedBy        *string    `json:"approved_by,omitempty" gorm:"column:approved_by"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty" gorm:"column:approved_at"`

	ExpiryDate   *time.Time `json:"expiry_date,omitempty" gorm:"column:expiry_date"`
	ReminderDate *time.Time `json:"reminder_date,omitempty" gorm:"column:reminder_date"`

	CreatedBy string     `json:"created_by" gorm:"column:created_by"`
	UpdatedBy *string    `json:"updated_by,omitempty" gorm:"column:updated_by"`
	CreatedAt time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`

	DocumentType *DocumentType `json:"document_type,omitempty" gorm:"foreignKey:DocumentTypeID"`
}

func (Document) TableName() string {
	return "documents"
}

// Document statuses
const (
	StatusDraft         = "draft"
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"
	StatusRejected      = "rejected"
	StatusExpired       = "expired"
	StatusArchived      = "archived"
)

// ValidStatus reports whether s is a known document status.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusApproved, StatusRejected, StatusExpired, StatusArchived:
		return true
	}
	return false
}

// DocumentTask is review or collection work attached to a document.
type DocumentTask struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	DocumentID  string     `json:"document_id" gorm:"column:document_id;index;not null"`
	Title       string     `json:"title" gorm:"column:title;not null"`
	Description *string    `json:"description,omitempty" gorm:"column:description"`
	TaskType    string     `json:"task_type" gorm:"column:task_type"`
	AssignedTo  *string    `json:"assigned_to,omitempty" gorm:"column:assigned_to;index"`
	Priority    string     `json:"priority" gorm:"column:priority;default:medium"`
	Status      string     `json:"status" gorm:"column:status;default:pending"`
	DueDate     *time.Time `json:"due_date,omitempty" gorm:"column:due_date"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedBy   string     `json:"created_by" gorm:"column:created_by"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (DocumentTask) TableName() string {
	return "document_tasks"
}

// Document task types
const (
	TaskReview  = "review"
	TaskApprove = "approve"
	TaskSign    = "sign"
	TaskCollect = "collect"
	TaskSend    = "send"
)

// DocumentComment is reviewer commentary; internal comments stay off
// any client-facing surface.
type DocumentComment struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	DocumentID string    `json:"document_id" gorm:"column:document_id;index;not null"`
	UserID     string    `json:"user_id" gorm:"column:user_id;not null"`
	Comment    string    `json:"comment" gorm:"column:comment;not null"`
	IsInternal bool      `json:"is_internal" gorm:"column:is_internal;default:true"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (DocumentComment) TableName() string {
	return "document_comments"
}

// DocumentActivity is the document's append-only audit trail.
type DocumentActivity struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	DocumentID   string    `json:"document_id" gorm:"column:document_id;index;not null"`
	UserID       string    `json:"user_id" gorm:"column:user_id"`
	ActivityType string    `json:"activity_type" gorm:"column:activity_type;not null"`
	ActivityData jsonb.Map `json:"activity_data" gorm:"column:activity_data"`
	IPAddress    *string   `json:"ip_address,omitempty" gorm:"column:ip_address"`
	UserAgent    *string   `json:"user_agent,omitempty" gorm:"column:user_agent"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (DocumentActivity) TableName() string {
	return "document_activities"
}

// FileUpload carries the uploaded file content alongside its metadata.
type FileUpload struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// CreateDocumentDTO is the document intake payload.
type CreateDocumentDTO struct {
	DocumentTypeID    string      `json:"document_type_id"`
	Title             string      `json:"title"`
	Description       *string     `json:"description,omitempty"`
	ClientID          *string     `json:"client_id,omitempty"`
	PropertyID        *string     `json:"property_id,omitempty"`
	ContractID        *string     `json:"contract_id,omitempty"`
	LeadID            *string     `json:"lead_id,omitempty"`
	Visibility        string      `json:"visibility,omitempty"`
	RequiresSignature bool        `json:"requires_signature,omitempty"`
	ExpiryDate        *time.Time  `json:"expiry_date,omitempty"`
	File              *FileUpload `json:"-"`
}

func (dto CreateDocumentDTO) Validate() error {
	if dto.DocumentTypeID == "" {
		return errors.New("document type is required")
	}
	if strings.TrimSpace(dto.Title) == "" {
		return errors.New("title is required")
	}
	return nil
}

// UpdateStatusDTO moves a document through review, optionally with an
// internal comment.
type UpdateStatusDTO struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

func (dto UpdateStatusDTO) Validate() error {
	if !ValidStatus(dto.Status) {
		return errors.New("unknown document status: " + dto.Status)
	}
	return nil
}

// ListFilters narrows document listings. Latest-only is implied; soft
// deleted rows never surface.
type ListFilters struct {
	ClientID   string
	PropertyID string
	LeadID     string
	TypeID     string
	Status     string
	Search     string
	Limit      int
	Offset     int
}

// DocumentStats summarizes the document workload.
type DocumentStats struct {
	Total        int64            `json:"total"`
	ByStatus     map[string]int64 `json:"by_status"`
	ByType       map[string]int64 `json:"by_type"`
	PendingTasks int64            `json:"pending_tasks"`
	ExpiringSoon int64            `json:"expiring_soon"`
}
