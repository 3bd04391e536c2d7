package models

// TimeSlot is one interval of the shared weekly grid. Times are minutes since midnight.
type TimeSlot struct {
	ID          string `db:"id" json:"id"`
	DayOfWeek   int    `db:"day_of_week" json:"day_of_week"`
	StartMinute int    `db:"start_minute" json:"start_minute"`
	EndMinute   int    `db:"end_minute" json:"end_minute"`
	IsMidterm   bool   `db:"is_midterm" json:"is_midterm"`
	IsBreak     bool   `db:"is_break" json:"is_break"`
}

// Validate rejects malformed timeslot reference data.
func (t TimeSlot) Validate() error {
	if t.ID == "" {
		return invalidEntity("timeslot", t.ID, "id", "is required")
	}
	if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
		return invalidEntity("timeslot", t.ID, "day_of_week", "must be between 0 and 6")
	}
	if t.StartMinute < 0 || t.EndMinute > 24*60 {
		return invalidEntity("timeslot", t.ID, "start_minute", "must fall within the day")
	}
	if t.EndMinute <= t.StartMinute {
		return invalidEntity("timeslot", t.ID, "end_minute", "must be after start_minute")
	}
	return nil
}

// Overlaps reports whether both slots share any instant on the same day.
func (t TimeSlot) Overlaps(other TimeSlot) bool {
	return t.DayOfWeek == other.DayOfWeek && t.StartMinute < other.EndMinute && other.StartMinute < t.EndMinute
}
