package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// ScheduleVersionConstraint is the unique key guarding (scope, version).
const ScheduleVersionConstraint = "schedules_scope_version_key"

const scheduleColumns = `id, scope, version, status, state, seed, rule_set_version, total_penalty, meta, created_at, updated_at`

// ScheduleRepository persists append-only schedule versions.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// LatestVersion returns the highest stored version for scope, or 0.
func (r *ScheduleRepository) LatestVersion(ctx context.Context, exec sqlx.ExtContext, scope string) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM schedules WHERE scope = $1`
	var version int
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &version, query, scope); err != nil {
		return 0, fmt.Errorf("latest schedule version: %w", err)
	}
	return version, nil
}

// Create inserts a schedule row at the version chosen by the caller. A concurrent writer that
// took the same version fails on ScheduleVersionConstraint.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if schedule == nil {
		return fmt.Errorf("schedule payload is nil")
	}
	if schedule.Scope == "" || schedule.Version <= 0 {
		return fmt.Errorf("scope and a positive version are required")
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.State == "" {
		schedule.State = models.PublicationStateDraft
	}
	if len(schedule.Meta) == 0 {
		schedule.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	const query = `
INSERT INTO schedules (id, scope, version, status, state, seed, rule_set_version, total_penalty, meta, created_at, updated_at)
VALUES (:id, :scope, :version, :status, :state, :seed, :rule_set_version, :total_penalty, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, schedule); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// List returns schedule versions newest first with the total count for pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	var total int
	const countQuery = `SELECT COUNT(*) FROM schedules WHERE ($1 = '' OR scope = $1)`
	if err := r.db.GetContext(ctx, &total, countQuery, filter.Scope); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE ($1 = '' OR scope = $1) ORDER BY created_at DESC, version DESC LIMIT $2 OFFSET $3`
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, filter.Scope, size, (page-1)*size); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, total, nil
}

// FindByID loads a schedule by its identifier.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// TransitionState moves a schedule from one publication state to another. It returns
// sql.ErrNoRows when the schedule is missing or not in the expected state.
func (r *ScheduleRepository) TransitionState(ctx context.Context, id string, from, to models.PublicationState) error {
	const query = `UPDATE schedules SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4`
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("update schedule state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule state rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDraft removes a draft schedule version; assignments cascade.
func (r *ScheduleRepository) DeleteDraft(ctx context.Context, id string) error {
	const query = `DELETE FROM schedules WHERE id = $1 AND state = $2`
	result, err := r.db.ExecContext(ctx, query, id, models.PublicationStateDraft)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
