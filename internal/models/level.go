package models

// Level groups courses and sections of one cohort (e.g. "Year 2 Computer Science").
type Level struct {
	ID             string `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	TargetStudents int    `db:"target_students" json:"target_students"`
}

// Validate rejects malformed level reference data.
func (l Level) Validate() error {
	if l.ID == "" {
		return invalidEntity("level", l.ID, "id", "is required")
	}
	if l.TargetStudents < 0 {
		return invalidEntity("level", l.ID, "target_students", "must be >= 0")
	}
	return nil
}
