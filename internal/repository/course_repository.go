package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// CourseRepository reads the course catalogue.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses with their prerequisites, optionally limited to one level.
func (r *CourseRepository) List(ctx context.Context, exec sqlx.ExtContext, levelID string) ([]models.Course, error) {
	const query = `
SELECT c.id, c.code, c.credits, c.elective, c.level_id,
       COALESCE(array_agg(p.prerequisite_id ORDER BY p.prerequisite_id) FILTER (WHERE p.prerequisite_id IS NOT NULL), '{}') AS prerequisites
FROM courses c
LEFT JOIN course_prerequisites p ON p.course_id = c.id
WHERE ($1 = '' OR c.level_id = $1)
GROUP BY c.id
ORDER BY c.id`
	var courses []models.Course
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &courses, query, levelID); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}
