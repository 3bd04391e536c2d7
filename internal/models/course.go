package models

import "github.com/lib/pq"

// Course is immutable catalogue data owned by a level.
type Course struct {
	ID            string         `db:"id" json:"id"`
	Code          string         `db:"code" json:"code"`
	Credits       int            `db:"credits" json:"credits"`
	Elective      bool           `db:"elective" json:"elective"`
	Prerequisites pq.StringArray `db:"prerequisites" json:"prerequisites"`
	LevelID       string         `db:"level_id" json:"level_id"`
}

// Validate rejects malformed course reference data.
func (c Course) Validate() error {
	if c.ID == "" {
		return invalidEntity("course", c.ID, "id", "is required")
	}
	if c.Credits < 0 {
		return invalidEntity("course", c.ID, "credits", "must be >= 0")
	}
	for _, prereq := range c.Prerequisites {
		if prereq == c.ID {
			return invalidEntity("course", c.ID, "prerequisites", "must not reference the course itself")
		}
	}
	return nil
}
