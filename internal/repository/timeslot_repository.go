package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// TimeSlotRepository reads the shared weekly grid.
type TimeSlotRepository struct {
	db *sqlx.DB
}

// NewTimeSlotRepository constructs the repository.
func NewTimeSlotRepository(db *sqlx.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

// List returns the grid ordered by day and start time.
func (r *TimeSlotRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.TimeSlot, error) {
	const query = `SELECT id, day_of_week, start_minute, end_minute, is_midterm, is_break FROM timeslots ORDER BY day_of_week, start_minute, end_minute, id`
	var slots []models.TimeSlot
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &slots, query); err != nil {
		return nil, fmt.Errorf("list timeslots: %w", err)
	}
	return slots, nil
}
