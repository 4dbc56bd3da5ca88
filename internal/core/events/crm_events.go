package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeAccessRequestSubmitted = "access_request.submitted"
	EventTypeAccessRequestReviewed  = "access_request.reviewed"
	EventTypeLeadCreated            = "lead.created"
	EventTypeLeadStatusChanged      = "lead.status_changed"
	EventTypeDocumentUploaded       = "document.uploaded"
	EventTypeDocumentReviewed       = "document.reviewed"
	EventTypeTaskAssigned           = "task.assigned"
)

type AccessRequestSubmittedEvent struct {
	BaseEvent
	RequestID string `json:"request_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
}

func NewAccessRequestSubmittedEvent(requestID, email, fullName string) *AccessRequestSubmittedEvent {
	return &AccessRequestSubmittedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeAccessRequestSubmitted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"request_id": requestID,
				"email":      email,
				"full_name":  fullName,
			},
		},
		RequestID: requestID,
		Email:     email,
		FullName:  fullName,
	}
}

type AccessRequestReviewedEvent struct {
	BaseEvent
	RequestID  string `json:"request_id"`
	Email      string `json:"email"`
	Approved   bool   `json:"approved"`
	ReviewerID string `json:"reviewer_id"`
}

func NewAccessRequestReviewedEvent(requestID, email string, approved bool, reviewerID string) *AccessRequestReviewedEvent {
	return &AccessRequestReviewedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeAccessRequestReviewed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"request_id":  requestID,
				"email":       email,
				"approved":    approved,
				"reviewer_id": reviewerID,
			},
		},
		RequestID:  requestID,
		Email:      email,
		Approved:   approved,
		ReviewerID: reviewerID,
	}
}

type LeadCreatedEvent struct {
	BaseEvent
	LeadID     string `json:"lead_id"`
	AssignedTo string `json:"assigned_to"`
	Score      int    `json:"score"`
	Priority   string `json:"priority"`
}

func NewLeadCreatedEvent(leadID, assignedTo string, score int, priority string) *LeadCreatedEvent {
	return &LeadCreatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeLeadCreated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"lead_id":     leadID,
				"assigned_to": assignedTo,
				"score":       score,
				"priority":    priority,
			},
		},
		LeadID:     leadID,
		AssignedTo: assignedTo,
		Score:      score,
		Priority:   priority,
	}
}

type LeadStatusChangedEvent struct {
	BaseEvent
	LeadID    string `json:"lead_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	ChangedBy string `json:"changed_by"`
}

func NewLeadStatusChangedEvent(leadID, oldStatus, newStatus, changedBy string) *LeadStatusChangedEvent {
	return &LeadStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeLeadStatusChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"lead_id":    leadID,
				"old_status": oldStatus,
				"new_status": newStatus,
				"changed_by": changedBy,
			},
		},
		LeadID:    leadID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		ChangedBy: changedBy,
	}
}

type DocumentUploadedEvent struct {
	BaseEvent
	DocumentID   string `json:"document_id"`
	DocumentType string `json:"document_type"`
	UploadedBy   string `json:"uploaded_by"`
	Version      int    `json:"version"`
}

func NewDocumentUploadedEvent(documentID, documentType, uploadedBy string, version int) *DocumentUploadedEvent {
	return &DocumentUploadedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeDocumentUploaded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"document_id":   documentID,
				"document_type": documentType,
				"uploaded_by":   uploadedBy,
				"version":       version,
			},
		},
		DocumentID:   documentID,
		DocumentType: documentType,
		UploadedBy:   uploadedBy,
		Version:      version,
	}
}

type DocumentReviewedEvent struct {
	BaseEvent
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewed_by"`
}

func NewDocumentReviewedEvent(documentID, status, reviewedBy string) *DocumentReviewedEvent {
	return &DocumentReviewedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeDocumentReviewed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"document_id": documentID,
				"status":      status,
				"reviewed_by": reviewedBy,
			},
		},
		DocumentID: documentID,
		Status:     status,
		ReviewedBy: reviewedBy,
	}
}

type TaskAssignedEvent struct {
	BaseEvent
	TaskID     string    `json:"task_id"`
	AssignedTo string    `json:"assigned_to"`
	Title      string    `json:"title"`
	Priority   string    `json:"priority"`
	DueDate    time.Time `json:"due_date"`
}

func NewTaskAssignedEvent(taskID, assignedTo, title, priority string, dueDate time.Time) *TaskAssignedEvent {
	return &TaskAssignedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeTaskAssigned,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"task_id":     taskID,
				"assigned_to": assignedTo,
				"title":       title,
				"priority":    priority,
				"due_date":    dueDate,
			},
		},
		TaskID:     taskID,
		AssignedTo: assignedTo,
		Title:      title,
		Priority:   priority,
		DueDate:    dueDate,
	}
}
