package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Known rule keys. Unknown keys are tolerated and ignored by the engine.
const (
	RuleKeyMidtermBlock  = "midtermBlock"
	RuleKeyBreakWindow   = "breakWindow"
	RuleKeyCapacityLimit = "capacityLimit"
	RuleKeySoftWeights   = "softWeights"
)

// Rule is a data-driven constraint toggled without code changes.
type Rule struct {
	ID             string         `db:"id" json:"id"`
	RuleSetVersion int            `db:"rule_set_version" json:"rule_set_version"`
	Key            string         `db:"key" json:"key"`
	Value          types.JSONText `db:"value" json:"value"`
	Active         bool           `db:"active" json:"active"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}
