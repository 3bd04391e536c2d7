package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// RoomRepository reads bookable rooms.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// List returns every room ordered by id.
func (r *RoomRepository) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Room, error) {
	const query = `SELECT id, name, capacity, room_type FROM rooms ORDER BY id`
	var rooms []models.Room
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &rooms, query); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
