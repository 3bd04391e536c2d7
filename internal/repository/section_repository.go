package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// SectionRepository reads offered sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns sections ordered by id, optionally limited to one level.
func (r *SectionRepository) List(ctx context.Context, exec sqlx.ExtContext, levelID string) ([]models.Section, error) {
	const query = `SELECT id, course_id, section_number, capacity, level_id, room_type, timeslot_id, room_id, instructor_id
FROM sections WHERE ($1 = '' OR level_id = $1) ORDER BY id`
	var sections []models.Section
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &sections, query, levelID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}
