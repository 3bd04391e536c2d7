package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-scheduler/internal/models"
)

// RuleRepository reads versioned rule sets.
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository constructs the repository.
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListByVersion returns every rule of a rule set, active or not.
func (r *RuleRepository) ListByVersion(ctx context.Context, exec sqlx.ExtContext, version int) ([]models.Rule, error) {
	const query = `SELECT id, rule_set_version, key, value, active, updated_at FROM rules WHERE rule_set_version = $1 ORDER BY key, id`
	var rules []models.Rule
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &rules, query, version); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// VersionExists reports whether a rule set version has been defined.
func (r *RuleRepository) VersionExists(ctx context.Context, version int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM rule_sets WHERE version = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, version); err != nil {
		return false, fmt.Errorf("check rule set version: %w", err)
	}
	return exists, nil
}

// LatestVersion returns the newest rule set version, or 0 when none exists.
func (r *RuleRepository) LatestVersion(ctx context.Context) (int, error) {
	const query = `SELECT COALESCE(MAX(version), 0) FROM rule_sets`
	var version int
	if err := r.db.GetContext(ctx, &version, query); err != nil {
		return 0, fmt.Errorf("latest rule set version: %w", err)
	}
	return version, nil
}
