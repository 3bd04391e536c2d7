package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// InstructorRepository reads instructors with their availability and qualifications.
type InstructorRepository struct {
	db *sqlx.DB
}

// NewInstructorRepository constructs the repository.
func NewInstructorRepository(db *sqlx.DB) *InstructorRepository {
	return &InstructorRepository{db: db}
}

// List returns every instructor ordered by id.
func (r *InstructorRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Instructor, error) {
	const query = `
SELECT i.id, i.name, i.max_weekly_load,
       COALESCE((SELECT array_agg(u.timeslot_id ORDER BY u.timeslot_id) FROM instructor_unavailability u WHERE u.instructor_id = i.id), '{}') AS unavailable,
       COALESCE((SELECT array_agg(q.course_id ORDER BY q.course_id) FROM instructor_courses q WHERE q.instructor_id = i.id), '{}') AS course_ids
FROM instructors i
ORDER BY i.id`
	var instructors []models.Instructor
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &instructors, query); err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	return instructors, nil
}
