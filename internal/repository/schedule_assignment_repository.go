package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// assignmentBatchSize keeps a single INSERT under the Postgres bind parameter limit.
const assignmentBatchSize = 500

// ScheduleAssignmentRepository persists the tuples of a schedule version.
type ScheduleAssignmentRepository struct {
	db *sqlx.DB
}

// NewScheduleAssignmentRepository constructs the repository.
func NewScheduleAssignmentRepository(db *sqlx.DB) *ScheduleAssignmentRepository {
	return &ScheduleAssignmentRepository{db: db}
}

// InsertBatch writes assignments in multi-row inserts. Run it inside the transaction that
// created the schedule row so the version is written whole or not at all.
func (r *ScheduleAssignmentRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.ScheduleAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	target := pick(r.db, exec)
	now := time.Now().UTC()
	for i := range assignments {
		a := &assignments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.SoftViolations == nil {
			a.SoftViolations = pq.StringArray{}
		}
	}

	const query = `
INSERT INTO schedule_assignments (id, schedule_id, section_id, timeslot_id, room_id, instructor_id, penalty, soft_violations, valid, created_at)
VALUES (:id, :schedule_id, :section_id, :timeslot_id, :room_id, :instructor_id, :penalty, :soft_violations, :valid, :created_at)`
	for start := 0; start < len(assignments); start += assignmentBatchSize {
		end := start + assignmentBatchSize
		if end > len(assignments) {
			end = len(assignments)
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, assignments[start:end]); err != nil {
			return fmt.Errorf("insert schedule assignments: %w", err)
		}
	}
	return nil
}

// ListBySchedule returns the assignments of one schedule ordered by section.
func (r *ScheduleAssignmentRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleAssignment, error) {
	const query = `SELECT id, schedule_id, section_id, timeslot_id, room_id, instructor_id, penalty, soft_violations, valid, created_at
FROM schedule_assignments WHERE schedule_id = $1 ORDER BY section_id`
	var assignments []models.ScheduleAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule assignments: %w", err)
	}
	return assignments, nil
}
