package lead

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/core/events"
	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
	"github.com/ipeimoveis/crm-backend/internal/task"
)

// followUpThreshold is how long a lead may sit without contact before
// it shows up in the follow-up queue.
const followUpThreshold = 3 * 24 * time.Hour

// Repository defines the data access methods for leads, their
// timeline, and their tasks.
type Repository interface {
	Create(ctx context.Context, lead *Lead) error
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filters ListFilters) ([]*Lead, int64, error)
	UpdateStatus(ctx context.Context, id, status string, at time.Time) error
	TouchLastContact(ctx context.Context, id string, at time.Time) error
	ListNeedingFollowUp(ctx context.Context, lastContactBefore time.Time) ([]*Lead, error)

	AddActivity(ctx context.Context, activity *LeadActivity) error
	ListActivities(ctx context.Context, leadID string) ([]*LeadActivity, error)

	AddNote(ctx context.Context, note *LeadNote) error
	ListNotes(ctx context.Context, leadID string) ([]*LeadNote, error)

	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListUserTasks(ctx context.Context, userID string, openOnly bool) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task) error

	Stats(ctx context.Context, assignedTo string) (*PipelineStats, error)
}

// PermissionChecker gates lead operations.
type PermissionChecker interface {
	HasPermission(ctx context.Context, actorID, resource, action string, permCtx map[string]any) bool
}

// Service handles lead pipeline business logic.
type Service struct {
	repo        Repository
	permissions PermissionChecker
	bus         *events.EventBus
	logger      *slog.Logger
}

func NewService(repo Repository, permissions PermissionChecker, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		permissions: permissions,
		bus:         bus,
		logger:      logger,
	}
}

// CreateLead scores and stores a new lead, seeds its initial tasks, and
// records the creation on the timeline.
func (s *Service) CreateLead(ctx context.Context, actorID string, dto CreateLeadDTO) (*Lead, error) {
	if !s.permissions.HasPermission(ctx, actorID, "leads", "create", nil) {
		s.logger.Warn("create lead denied: insufficient permissions", "actor_id", actorID)
		return nil, internal.ErrPermissionDenied
	}

	if err := dto.Validate(); err != nil {
		s.logger.Error("lead validation failed", "error", err, "actor_id", actorID)
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	assignedTo := dto.AssignedTo
	if assignedTo == "" {
		assignedTo = actorID
	}

	score := Score(dto)
	now := time.Now().UTC()
	lead := &Lead{
		ID:                  uuid.NewString(),
		FullName:            dto.FullName,
		Email:               dto.Email,
		Phone:               dto.Phone,
		Source:              dto.Source,
		InterestType:        dto.InterestType,
		BudgetMin:           dto.BudgetMin,
		BudgetMax:           dto.BudgetMax,
		PropertyPreferences: dto.PropertyPreferences,
		Status:              StatusNew,
		Score:               score,
		Priority:            PriorityFor(score, dto.Source),
		AssignedTo:          assignedTo,
		CreatedBy:           actorID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Create(ctx, lead); err != nil {
		s.logger.Error("failed to create lead", "error", err, "actor_id", actorID)
		return nil, err
	}

	s.createInitialTasks(ctx, lead)

	s.recordActivity(ctx, lead.ID, actorID, "lead_created", "Lead created", jsonb.Map{
		"source":   lead.Source,
		"interest": lead.InterestType,
	})

	s.logger.Info("lead created",
		"lead_id", lead.ID,
		"score", lead.Score,
		"priority", lead.Priority,
		"assigned_to", lead.AssignedTo)

	s.bus.Publish(ctx, events.NewLeadCreatedEvent(lead.ID, lead.AssignedTo, lead.Score, lead.Priority))

	return lead, nil
}

// GetLead loads one lead with access control.
func (s *Service) GetLead(ctx context.Context, actorID, leadID string) (*Lead, error) {
	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !s.permissions.HasPermission(ctx, actorID, "leads", "read", map[string]any{
		"assigned_to": lead.AssignedTo,
		"owner_id":    lead.CreatedBy,
	}) {
		s.logger.Warn("get lead denied", "actor_id", actorID, "lead_id", leadID)
		return nil, internal.ErrPermissionDenied
	}
	return lead, nil
}

// GetLeads lists leads matching the filters.
func (s *Service) GetLeads(ctx context.Context, actorID string, filters ListFilters) ([]*Lead, int64, error) {
	if !s.permissions.HasPermission(ctx, actorID, "leads", "read", nil) {
		// Without a broad grant, restrict the listing to the actor's
		// own leads instead of failing.
		filters.AssignedTo = actorID
	}
	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.List(ctx, filters)
}

// UpdateLeadStatus moves a lead through the pipeline. The move stamps
// last contact, lands on the timeline with the real previous status,
// seeds the status's follow-up tasks, and stores the optional note.
func (s *Service) UpdateLeadStatus(ctx context.Context, actorID, leadID string, dto UpdateStatusDTO) (*Lead, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidStatus)
	}

	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if !s.permissions.HasPermission(ctx, actorID, "leads", "update", map[string]any{
		"assigned_to": lead.AssignedTo,
		"owner_id":    lead.CreatedBy,
	}) {
		s.logger.Warn("update lead status denied", "actor_id", actorID, "lead_id", leadID)
		return nil, internal.ErrPermissionDenied
	}

	previousStatus := lead.Status
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, leadID, dto.Status, now); err != nil {
		s.logger.Error("failed to update lead status", "error", err, "lead_id", leadID)
		return nil, err
	}
	lead.Status = dto.Status
	lead.LastContactAt = &now
	lead.UpdatedAt = now

	s.recordActivity(ctx, leadID, actorID, "status_change", "Status changed to "+dto.Status, jsonb.Map{
		"previous_status": previousStatus,
		"new_status":      dto.Status,
		"note":            dto.Note,
	})

	s.createStatusTasks(ctx, lead, actorID)

	if dto.Note != "" {
		if _, err := s.AddNote(ctx, actorID, leadID, dto.Note, false); err != nil {
			s.logger.Error("failed to store status note", "lead_id", leadID, "error", err)
		}
	}

	s.logger.Info("lead status updated",
		"lead_id", leadID,
		"previous_status", previousStatus,
		"new_status", dto.Status,
		"actor_id", actorID)

	s.bus.Publish(ctx, events.NewLeadStatusChangedEvent(leadID, previousStatus, dto.Status, actorID))

	return lead, nil
}

// AddNote attaches a note to the lead and refreshes last contact.
func (s *Service) AddNote(ctx context.Context, actorID, leadID, content string, important bool) (*LeadNote, error) {
	if content == "" {
		return nil, internal.NewValidationError("note content is required", internal.ErrCodeValidationFailed)
	}

	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !s.permissions.HasPermission(ctx, actorID, "leads", "update", map[string]any{
		"assigned_to": lead.AssignedTo,
		"owner_id":    lead.CreatedBy,
	}) {
		return nil, internal.ErrPermissionDenied
	}

	note := &LeadNote{
		ID:          uuid.NewString(),
		LeadID:      leadID,
		Content:     content,
		IsImportant: important,
		CreatedBy:   actorID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.AddNote(ctx, note); err != nil {
		s.logger.Error("failed to add note", "lead_id", leadID, "error", err)
		return nil, err
	}

	if err := s.repo.TouchLastContact(ctx, leadID, note.CreatedAt); err != nil {
		s.logger.Error("failed to touch last contact", "lead_id", leadID, "error", err)
	}

	return note, nil
}

// GetLeadActivities returns the lead's timeline, newest first.
func (s *Service) GetLeadActivities(ctx context.Context, actorID, leadID string) ([]*LeadActivity, error) {
	if _, err := s.GetLead(ctx, actorID, leadID); err != nil {
		return nil, err
	}
	return s.repo.ListActivities(ctx, leadID)
}

// GetLeadNotes returns the lead's notes, newest first.
func (s *Service) GetLeadNotes(ctx context.Context, actorID, leadID string) ([]*LeadNote, error) {
	if _, err := s.GetLead(ctx, actorID, leadID); err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, leadID)
}

// GetLeadsNeedingFollowUp returns active leads whose last contact is
// missing or older than three days, best scores first.
func (s *Service) GetLeadsNeedingFollowUp(ctx context.Context, actorID string) ([]*Lead, error) {
	cutoff := time.Now().UTC().Add(-followUpThreshold)
	leads, err := s.repo.ListNeedingFollowUp(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if s.permissions.HasPermission(ctx, actorID, "leads", "read", nil) {
		return leads, nil
	}
	own := make([]*Lead, 0, len(leads))
	for _, l := range leads {
		if l.AssignedTo == actorID {
			own = append(own, l)
		}
	}
	return own, nil
}

// GetPipelineStats summarizes the pipeline, scoped to the actor's own
// leads unless they hold a broad read grant.
func (s *Service) GetPipelineStats(ctx context.Context, actorID string) (*PipelineStats, error) {
	scope := ""
	if !s.permissions.HasPermission(ctx, actorID, "leads", "read", nil) {
		scope = actorID
	}
	return s.repo.Stats(ctx, scope)
}

// GetUserTasks lists a user's open tasks ordered by due date.
func (s *Service) GetUserTasks(ctx context.Context, userID string, includeClosed bool) ([]*Task, error) {
	return s.repo.ListUserTasks(ctx, userID, !includeClosed)
}

// ScheduleFollowUp creates a manual follow-up task on a lead.
func (s *Service) ScheduleFollowUp(ctx context.Context, actorID, leadID string, dto ScheduleFollowUpDTO) (*Task, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !s.permissions.HasPermission(ctx, actorID, "leads", "update", map[string]any{
		"assigned_to": lead.AssignedTo,
		"owner_id":    lead.CreatedBy,
	}) {
		return nil, internal.ErrPermissionDenied
	}

	taskType := dto.TaskType
	if taskType == "" {
		taskType = task.TypeFollowUp
	}
	priority := dto.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}

	t := s.newTask(lead, actorID, dto.Title, dto.Description, taskType, priority, dto.DueDate)
	if err := s.repo.CreateTask(ctx, t); err != nil {
		s.logger.Error("failed to schedule follow-up", "lead_id", leadID, "error", err)
		return nil, err
	}

	s.recordActivity(ctx, leadID, actorID, "task_created", "Follow-up scheduled: "+dto.Title, jsonb.Map{
		"task_id":  t.ID,
		"due_date": dto.DueDate,
	})

	s.bus.Publish(ctx, events.NewTaskAssignedEvent(t.ID, t.AssignedTo, t.Title, t.Priority, t.DueDate))

	return t, nil
}

// UpdateTaskStatus moves a task through its lifecycle. Invalid
// transitions are rejected; completing a task stamps completed_at.
func (s *Service) UpdateTaskStatus(ctx context.Context, actorID, taskID, newStatus string) (*Task, error) {
	if !task.ValidStatus(newStatus) {
		return nil, internal.NewValidationError("unknown task status: "+newStatus, internal.ErrCodeInvalidStatus)
	}

	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if t.AssignedTo != actorID &&
		!s.permissions.HasPermission(ctx, actorID, "tasks", "update", map[string]any{"assigned_to": t.AssignedTo}) {
		return nil, internal.ErrPermissionDenied
	}

	if !task.CanTransition(t.Status, newStatus) {
		s.logger.Warn("invalid task transition",
			"task_id", taskID,
			"from", t.Status,
			"to", newStatus)
		return nil, internal.NewConflictError("cannot move task from "+t.Status+" to "+newStatus, internal.ErrCodeTaskTransition)
	}

	now := time.Now().UTC()
	t.Status = newStatus
	t.CompletedAt = task.CompletionStamp(newStatus, now)
	t.UpdatedAt = now
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		s.logger.Error("failed to update task", "task_id", taskID, "error", err)
		return nil, err
	}

	if t.LeadID != nil && newStatus == task.StatusCompleted {
		s.recordActivity(ctx, *t.LeadID, actorID, "task_completed", "Task completed: "+t.Title, jsonb.Map{
			"task_id": t.ID,
		})
	}

	return t, nil
}

func (s *Service) createInitialTasks(ctx context.Context, lead *Lead) {
	now := time.Now()
	initial := []*Task{
		s.newTask(lead, lead.CreatedBy, "First contact",
			"Make initial contact with the lead",
			task.TypeCall, task.PriorityHigh, now.Add(24*time.Hour)),
		s.newTask(lead, lead.CreatedBy, "Qualify interest",
			"Understand the client's needs and budget",
			task.TypeFollowUp, task.PriorityMedium, now.Add(48*time.Hour)),
	}
	for _, t := range initial {
		if err := s.repo.CreateTask(ctx, t); err != nil {
			s.logger.Error("failed to create initial task",
				"lead_id", lead.ID,
				"title", t.Title,
				"error", err)
		}
	}
}

// createStatusTasks seeds the follow-up work each pipeline stage
// requires. Stages without templates create nothing.
func (s *Service) createStatusTasks(ctx context.Context, lead *Lead, actorID string) {
	now := time.Now()
	var templates []*Task
	switch lead.Status {
	case StatusQualified:
		templates = append(templates, s.newTask(lead, actorID, "Send property options",
			"Select and send matching properties",
			task.TypeFollowUp, task.PriorityHigh, now.Add(48*time.Hour)))
	case StatusViewing:
		templates = append(templates, s.newTask(lead, actorID, "Post-visit follow-up",
			"Contact the client after the visit for feedback",
			task.TypeCall, task.PriorityHigh, now.Add(24*time.Hour)))
	case StatusProposal:
		templates = append(templates, s.newTask(lead, actorID, "Track proposal",
			"Check the proposal status with the client",
			task.TypeFollowUp, task.PriorityHigh, now.Add(72*time.Hour)))
	}

	for _, t := range templates {
		if err := s.repo.CreateTask(ctx, t); err != nil {
			s.logger.Error("failed to create status task",
				"lead_id", lead.ID,
				"title", t.Title,
				"error", err)
			continue
		}
		s.bus.Publish(ctx, events.NewTaskAssignedEvent(t.ID, t.AssignedTo, t.Title, t.Priority, t.DueDate))
	}
}

func (s *Service) newTask(lead *Lead, createdBy, title, description, taskType, priority string, due time.Time) *Task {
	leadID := lead.ID
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.NewString(),
		LeadID:      &leadID,
		Title:       title,
		Description: description,
		TaskType:    taskType,
		Priority:    priority,
		Status:      task.StatusPending,
		AssignedTo:  lead.AssignedTo,
		DueDate:     due.UTC(),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// recordActivity appends a timeline entry and refreshes last contact.
// Activity failures are logged, not surfaced: the primary mutation has
// already committed.
func (s *Service) recordActivity(ctx context.Context, leadID, actorID, activityType, description string, metadata jsonb.Map) {
	activity := &LeadActivity{
		ID:           uuid.NewString(),
		LeadID:       leadID,
		ActivityType: activityType,
		Description:  description,
		Metadata:     metadata,
		CreatedBy:    actorID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.AddActivity(ctx, activity); err != nil {
		s.logger.Error("failed to record lead activity",
			"lead_id", leadID,
			"activity_type", activityType,
			"error", err)
		return
	}
	if err := s.repo.TouchLastContact(ctx, leadID, activity.CreatedAt); err != nil {
		s.logger.Error("failed to touch last contact", "lead_id", leadID, "error", err)
	}
}
