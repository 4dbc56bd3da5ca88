package lead

import (
	"errors"
	"strings"
	"time"

	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
)

// Lead is a prospective buyer or seller moving through the sales
// pipeline. Score and Priority are derived at creation and never edited
// directly.
type Lead struct {
	ID                  string     `json:"id" gorm:"primaryKey"`
	FullName            string     `json:"full_name" gorm:"column:full_name;not null"`
	Email               *string    `json:"email,omitempty" gorm:"column:email"`
	Phone               *string    `json:"phone,omitempty" gorm:"column:phone"`
	Source              string     `json:"source" gorm:"column:source;not null"`
	InterestType        string     `json:"interest_type" gorm:"column:interest_type"`
	BudgetMin           *float64   `json:"budget_min,omitempty" gorm:"column:budget_min"`
	BudgetMax           *float64   `json:"budget_max,omitempty" gorm:"column:budget_max"`
	PropertyPreferences jsonb.Map  `json:"property_preferences,omitempty" gorm:"column:property_preferences"`
	Status              string     `json:"status" gorm:"column:status;default:new"`
	Score               int        `json:"score" gorm:"column:score"`
	Priority            string     `json:"priority" gorm:"column:priority"`
	AssignedTo          string     `json:"assigned_to" gorm:"column:assigned_to;index"`
	LastContactAt       *time.Time `json:"last_contact_at,omitempty" gorm:"column:last_contact_at"`
	CreatedBy           string     `json:"created_by" gorm:"column:created_by"`
	CreatedAt           time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt           time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Lead) TableName() string {
	return "leads"
}

// LeadActivity is one append-only timeline entry on a lead.
type LeadActivity struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	LeadID       string    `json:"lead_id" gorm:"column:lead_id;index;not null"`
	ActivityType string    `json:"activity_type" gorm:"column:activity_type;not null"`
	Description  string    `json:"description" gorm:"column:description"`
	Metadata     jsonb.Map `json:"metadata,omitempty" gorm:"column:metadata"`
	CreatedBy    string    `json:"created_by" gorm:"column:created_by"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (LeadActivity) TableName() string {
	return "lead_activities"
}

// LeadNote is free-form commentary on a lead.
type LeadNote struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	LeadID      string    `json:"lead_id" gorm:"column:lead_id;index;not null"`
	Content     string    `json:"content" gorm:"column:content;not null"`
	IsImportant bool      `json:"is_important" gorm:"column:is_important;default:false"`
	CreatedBy   string    `json:"created_by" gorm:"column:created_by"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (LeadNote) TableName() string {
	return "lead_notes"
}

// Task is a piece of follow-up work attached to a lead and assigned to
// an agent.
type Task struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	LeadID      *string    `json:"lead_id,omitempty" gorm:"column:lead_id;index"`
	Title       string     `json:"title" gorm:"column:title;not null"`
	Description string     `json:"description" gorm:"column:description"`
	TaskType    string     `json:"task_type" gorm:"column:task_type"`
	Priority    string     `json:"priority" gorm:"column:priority;default:medium"`
	Status      string     `json:"status" gorm:"column:status;default:pending"`
	AssignedTo  string     `json:"assigned_to" gorm:"column:assigned_to;index"`
	DueDate     time.Time  `json:"due_date" gorm:"column:due_date"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedBy   string     `json:"created_by" gorm:"column:created_by"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Task) TableName() string {
	return "lead_tasks"
}

// Pipeline statuses
const (
	StatusNew         = "new"
	StatusContacted   = "contacted"
	StatusQualified   = "qualified"
	StatusViewing     = "viewing"
	StatusProposal    = "proposal"
	StatusNegotiation = "negotiation"
	StatusClosed      = "closed"
	StatusLost        = "lost"
)

// ValidStatus reports whether s is a known pipeline status.
func ValidStatus(s string) bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusViewing,
		StatusProposal, StatusNegotiation, StatusClosed, StatusLost:
		return true
	}
	return false
}

// IsActive reports whether a lead still needs working. Closed and lost
// leads leave the follow-up radar.
func IsActive(status string) bool {
	return status != StatusClosed && status != StatusLost
}

// Lead sources
const (
	SourceReferral = "referral"
	SourceWebsite  = "website"
	SourceWalkIn   = "walk-in"
	SourceGoogle   = "google"
	SourcePhone    = "phone"
	SourceFacebook = "facebook"
)

// Interest types
const (
	InterestBuy  = "buy"
	InterestSell = "sell"
	InterestRent = "rent"
)

// CreateLeadDTO is the lead intake payload.
type CreateLeadDTO struct {
	FullName            string    `json:"full_name"`
	Email               *string   `json:"email,omitempty"`
	Phone               *string   `json:"phone,omitempty"`
	Source              string    `json:"source"`
	InterestType        string    `json:"interest_type"`
	BudgetMin           *float64  `json:"budget_min,omitempty"`
	BudgetMax           *float64  `json:"budget_max,omitempty"`
	PropertyPreferences jsonb.Map `json:"property_preferences,omitempty"`
	AssignedTo          string    `json:"assigned_to,omitempty"`
}

func (dto CreateLeadDTO) Validate() error {
	if strings.TrimSpace(dto.FullName) == "" {
		return errors.New("full name is required")
	}
	if dto.Source == "" {
		return errors.New("source is required")
	}
	if dto.Email == nil && dto.Phone == nil {
		return errors.New("at least one contact channel (email or phone) is required")
	}
	if dto.BudgetMin != nil && dto.BudgetMax != nil && *dto.BudgetMin > *dto.BudgetMax {
		return errors.New("budget_min cannot exceed budget_max")
	}
	return nil
}

// UpdateStatusDTO moves a lead through the pipeline, optionally with a
// note explaining the move.
type UpdateStatusDTO struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

func (dto UpdateStatusDTO) Validate() error {
	if !ValidStatus(dto.Status) {
		return errors.New("unknown pipeline status: " + dto.Status)
	}
	return nil
}

// ListFilters narrows GetLeads results.
type ListFilters struct {
	Status     string
	AssignedTo string
	Source     string
	Priority   string
	Search     string
	Limit      int
	Offset     int
}

// ScheduleFollowUpDTO creates a manual follow-up task on a lead.
type ScheduleFollowUpDTO struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	TaskType    string    `json:"task_type,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	DueDate     time.Time `json:"due_date"`
}

func (dto ScheduleFollowUpDTO) Validate() error {
	if strings.TrimSpace(dto.Title) == "" {
		return errors.New("title is required")
	}
	if dto.DueDate.IsZero() {
		return errors.New("due date is required")
	}
	return nil
}

// PipelineStats summarizes the pipeline for the dashboard. Conversion
// is closed over total; hot leads are those scoring 80 or better.
type PipelineStats struct {
	TotalLeads     int64            `json:"total_leads"`
	ByStatus       map[string]int64 `json:"by_status"`
	ByPriority     map[string]int64 `json:"by_priority"`
	BySource       map[string]int64 `json:"by_source"`
	AverageScore   float64          `json:"average_score"`
	ConversionRate float64          `json:"conversion_rate"`
	HotLeads       int64            `json:"hot_leads"`
	NeedsFollowUp  int64            `json:"needs_follow_up"`
	ConvertedCount int64            `json:"converted_count"`
}
