package notification

import (
	"context"
	"fmt"

	"github.com/ipeimoveis/crm-backend/internal/core/events"
)

// RegisterEventHandlers wires domain events to outbound notifications.
// adminChannel receives back-office alerts; user-facing messages go to
// the channel named after the recipient's user ID.
func RegisterEventHandlers(bus *events.EventBus, notifier Notifier, adminChannel string) {
	bus.Subscribe(events.EventTypeAccessRequestSubmitted, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.AccessRequestSubmittedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", event.EventType())
		}
		return notifier.Notify(&Message{
			Channel: adminChannel,
			Kind:    "access_request_submitted",
			Subject: "New access request",
			Body:    fmt.Sprintf("%s (%s) requested platform access", e.FullName, e.Email),
			Metadata: map[string]any{
				"request_id": e.RequestID,
			},
		})
	})

	bus.Subscribe(events.EventTypeAccessRequestReviewed, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.AccessRequestReviewedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", event.EventType())
		}
		outcome := "rejected"
		if e.Approved {
			outcome = "approved"
		}
		return notifier.Notify(&Message{
			Channel: adminChannel,
			Kind:    "access_request_reviewed",
			Subject: "Access request " + outcome,
			Body:    fmt.Sprintf("Request from %s was %s", e.Email, outcome),
			Metadata: map[string]any{
				"request_id":  e.RequestID,
				"reviewer_id": e.ReviewerID,
			},
		})
	})

	bus.Subscribe(events.EventTypeLeadCreated, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.LeadCreatedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", event.EventType())
		}
		return notifier.Notify(&Message{
			Channel: e.AssignedTo,
			Kind:    "lead_assigned",
			Subject: "New lead assigned to you",
			Body:    fmt.Sprintf("A new %s priority lead (score %d) needs first contact within 24 hours", e.Priority, e.Score),
			Metadata: map[string]any{
				"lead_id": e.LeadID,
			},
		})
	})

	bus.Subscribe(events.EventTypeLeadStatusChanged, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.LeadStatusChangedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", event.EventType())
		}
		return notifier.Notify(&Message{
			Channel: adminChannel,
			Kind:    "lead_status_changed",
			Subject: "Lead moved in pipeline",
			Body:    fmt.Sprintf("Lead moved from %s to %s", e.OldStatus, e.NewStatus),
			Metadata: map[string]any{
				"lead_id":    e.LeadID,
				"changed_by": e.ChangedBy,
			},
		})
	})

	bus.Subscribe(events.EventTypeDocumentUploaded, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.DocumentUploadedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", event.EventType())
		}
		return notifier.Notify(&Message{
			Channel: adminChannel,
			Kind:    "document_uploaded",
			Subject: "Document awaiting review",
			Body:    fmt.Sprintf("A %s document (version %d) was uploaded", e.DocumentType, e.Version),
			Metadata: map[string]any{
				"document_id": e.DocumentID,
				"uploaded_by": e.UploadedBy,
			},
		})
	})

	bus.Subscribe(events.EventTypeDocumentReviewed, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.DocumentReviewedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", event.EventType())
		}
		return notifier.Notify(&Message{
			Channel: adminChannel,
			Kind:    "document_reviewed",
			Subject: "Document review outcome",
			Body:    fmt.Sprintf("Document was marked %s", e.Status),
			Metadata: map[string]any{
				"document_id": e.DocumentID,
				"reviewed_by": e.ReviewedBy,
			},
		})
	})

	bus.Subscribe(events.EventTypeTaskAssigned, func(ctx context.Context, event events.Event) error {
		e, ok := event.(*events.TaskAssignedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload for %s", event.EventType())
		}
		return notifier.Notify(&Message{
			Channel: e.AssignedTo,
			Kind:    "task_assigned",
			Subject: e.Title,
			Body:    fmt.Sprintf("Task due %s (%s priority)", e.DueDate.Format("2006-01-02 15:04"), e.Priority),
			Metadata: map[string]any{
				"task_id": e.TaskID,
			},
		})
	})
}
