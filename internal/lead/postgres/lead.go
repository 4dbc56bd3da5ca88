package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/lead"
	"github.com/ipeimoveis/crm-backend/internal/task"
	"gorm.io/gorm"
)

type LeadRepository struct {
	db *gorm.DB
}

func NewLeadRepository(db *gorm.DB) lead.Repository {
	return &LeadRepository{db: db}
}

func (r *LeadRepository) Create(ctx context.Context, l *lead.Lead) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LeadRepository) GetByID(ctx context.Context, id string) (*lead.Lead, error) {
	var l lead.Lead
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrLeadNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *LeadRepository) List(ctx context.Context, filters lead.ListFilters) ([]*lead.Lead, int64, error) {
	query := r.db.WithContext(ctx).Model(&lead.Lead{})

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.AssignedTo != "" {
		query = query.Where("assigned_to = ?", filters.AssignedTo)
	}
	if filters.Source != "" {
		query = query.Where("source = ?", filters.Source)
	}
	if filters.Priority != "" {
		query = query.Where("priority = ?", filters.Priority)
	}
	if filters.Search != "" {
		pattern := "%" + filters.Search + "%"
		query = query.Where("full_name LIKE ? OR email LIKE ? OR phone LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var leads []*lead.Lead
	err := query.
		Order("score DESC, created_at DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&leads).Error
	return leads, total, err
}

func (r *LeadRepository) UpdateStatus(ctx context.Context, id, status string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&lead.Lead{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          status,
			"last_contact_at": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrLeadNotFound
	}
	return nil
}

func (r *LeadRepository) TouchLastContact(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&lead.Lead{}).
		Where("id = ?", id).
		Update("last_contact_at", at).Error
}

func (r *LeadRepository) ListNeedingFollowUp(ctx context.Context, lastContactBefore time.Time) ([]*lead.Lead, error) {
	var leads []*lead.Lead
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []string{lead.StatusClosed, lead.StatusLost}).
		Where("last_contact_at IS NULL OR last_contact_at < ?", lastContactBefore).
		Order("score DESC").
		Find(&leads).Error
	return leads, err
}

func (r *LeadRepository) AddActivity(ctx context.Context, activity *lead.LeadActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *LeadRepository) ListActivities(ctx context.Context, leadID string) ([]*lead.LeadActivity, error) {
	var activities []*lead.LeadActivity
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at DESC").
		Find(&activities).Error
	return activities, err
}

func (r *LeadRepository) AddNote(ctx context.Context, note *lead.LeadNote) error {
	return r.db.WithContext(ctx).Create(note).Error
}

func (r *LeadRepository) ListNotes(ctx context.Context, leadID string) ([]*lead.LeadNote, error) {
	var notes []*lead.LeadNote
	err := r.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("created_at DESC").
		Find(&notes).Error
	return notes, err
}

func (r *LeadRepository) CreateTask(ctx context.Context, t *lead.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *LeadRepository) GetTask(ctx context.Context, id string) (*lead.Task, error) {
	var t lead.Task
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *LeadRepository) ListUserTasks(ctx context.Context, userID string, openOnly bool) ([]*lead.Task, error) {
	query := r.db.WithContext(ctx).Where("assigned_to = ?", userID)
	if openOnly {
		query = query.Where("status IN ?", []string{task.StatusPending, task.StatusInProgress})
	}
	var tasks []*lead.Task
	err := query.Order("due_date ASC").Find(&tasks).Error
	return tasks, err
}

func (r *LeadRepository) UpdateTask(ctx context.Context, t *lead.Task) error {
	res := r.db.WithContext(ctx).Model(&lead.Task{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"status":       t.Status,
			"completed_at": t.CompletedAt,
			"updated_at":   t.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrTaskNotFound
	}
	return nil
}

// Stats aggregates the pipeline. An empty assignedTo means the whole
// pipeline; otherwise only that agent's leads count.
func (r *LeadRepository) Stats(ctx context.Context, assignedTo string) (*lead.PipelineStats, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&lead.Lead{})
		if assignedTo != "" {
			q = q.Where("assigned_to = ?", assignedTo)
		}
		return q
	}

	stats := &lead.PipelineStats{
		ByStatus:   make(map[string]int64),
		ByPriority: make(map[string]int64),
		BySource:   make(map[string]int64),
	}

	if err := base().Count(&stats.TotalLeads).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var statusBuckets []bucket
	if err := base().Select("status AS key, COUNT(*) AS count").Group("status").Scan(&statusBuckets).Error; err != nil {
		return nil, err
	}
	for _, b := range statusBuckets {
		stats.ByStatus[b.Key] = b.Count
	}

	var priorityBuckets []bucket
	if err := base().Select("priority AS key, COUNT(*) AS count").Group("priority").Scan(&priorityBuckets).Error; err != nil {
		return nil, err
	}
	for _, b := range priorityBuckets {
		stats.ByPriority[b.Key] = b.Count
	}

	var sourceBuckets []bucket
	if err := base().Select("source AS key, COUNT(*) AS count").Group("source").Scan(&sourceBuckets).Error; err != nil {
		return nil, err
	}
	for _, b := range sourceBuckets {
		stats.BySource[b.Key] = b.Count
	}

	var avg *float64
	if err := base().Select("AVG(score)").Scan(&avg).Error; err != nil {
		return nil, err
	}
	if avg != nil {
		stats.AverageScore = *avg
	}

	if err := base().Where("score >= ?", 80).Count(&stats.HotLeads).Error; err != nil {
		return nil, err
	}

	stats.ConvertedCount = stats.ByStatus[lead.StatusClosed]
	if stats.TotalLeads > 0 {
		stats.ConversionRate = float64(stats.ConvertedCount) / float64(stats.TotalLeads)
	}

	cutoff := time.Now().UTC().Add(-3 * 24 * time.Hour)
	if err := base().
		Where("status NOT IN ?", []string{lead.StatusClosed, lead.StatusLost}).
		Where("last_contact_at IS NULL OR last_contact_at < ?", cutoff).
		Count(&stats.NeedsFollowUp).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
