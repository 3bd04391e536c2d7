package models

import "github.com/lib/pq"

// Instructor teaches sections. Unavailable holds timeslot ids derived from preferences;
// CourseIDs lists the courses the instructor is qualified for (empty means any).
type Instructor struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Unavailable   pq.StringArray `db:"unavailable" json:"unavailable"`
	CourseIDs     pq.StringArray `db:"course_ids" json:"course_ids"`
	MaxWeeklyLoad int            `db:"max_weekly_load" json:"max_weekly_load"`
}

// Validate rejects malformed instructor reference data.
func (i Instructor) Validate() error {
	if i.ID == "" {
		return invalidEntity("instructor", i.ID, "id", "is required")
	}
	if i.MaxWeeklyLoad < 0 {
		return invalidEntity("instructor", i.ID, "max_weekly_load", "must be >= 0")
	}
	return nil
}
