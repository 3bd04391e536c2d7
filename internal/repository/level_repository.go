package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// LevelRepository reads cohort levels.
type LevelRepository struct {
	db *sqlx.DB
}

// NewLevelRepository constructs the repository.
func NewLevelRepository(db *sqlx.DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// List returns levels ordered by id. An empty levelID returns every level.
func (r *LevelRepository) List(ctx context.Context, exec sqlx.ExtContext, levelID string) ([]models.Level, error) {
	const query = `SELECT id, name, target_students FROM levels WHERE ($1 = '' OR id = $1) ORDER BY id`
	var levels []models.Level
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &levels, query, levelID); err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return levels, nil
}
