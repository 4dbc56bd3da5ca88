// Package task holds the status rules shared by lead tasks and document
// tasks. Both pipelines create their own task rows but follow the same
// lifecycle: pending -> in_progress -> completed | cancelled.
package task

import "time"

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const (
	TypeCall     = "call"
	TypeFollowUp = "follow-up"
	TypeReview   = "review"
	TypeMeeting  = "meeting"
	TypeOther    = "other"
)

// CanTransition reports whether a task may move from one status to
// another. Transitions are monotonic: a completed or cancelled task
// never changes status again except through an explicit Reopen.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusCompleted || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// IsOpen reports whether a task still needs attention.
func IsOpen(status string) bool {
	return status == StatusPending || status == StatusInProgress
}

// IsTerminal reports whether a status ends the task lifecycle.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// ValidStatus reports whether s is one of the known task statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CompletionStamp returns the completed_at value for a transition into
// the given status: now for completed, nil otherwise.
func CompletionStamp(to string, now time.Time) *time.Time {
	if to == StatusCompleted {
		return &now
	}
	return nil
}
