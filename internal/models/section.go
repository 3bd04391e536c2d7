package models

// Section is one offered instance of a course. TimeSlotID, RoomID and InstructorID stay nil
// until a generated schedule is published.
type Section struct {
	ID           string   `db:"id" json:"id"`
	CourseID     string   `db:"course_id" json:"course_id"`
	Number       int      `db:"section_number" json:"section_number"`
	Capacity     int      `db:"capacity" json:"capacity"`
	LevelID      string   `db:"level_id" json:"level_id"`
	RoomType     RoomType `db:"room_type" json:"room_type,omitempty"`
	TimeSlotID   *string  `db:"timeslot_id" json:"timeslot_id,omitempty"`
	RoomID       *string  `db:"room_id" json:"room_id,omitempty"`
	InstructorID *string  `db:"instructor_id" json:"instructor_id,omitempty"`
}

// Validate rejects malformed section data created by the CRUD layer.
func (s Section) Validate() error {
	if s.ID == "" {
		return invalidEntity("section", s.ID, "id", "is required")
	}
	if s.CourseID == "" {
		return invalidEntity("section", s.ID, "course_id", "is required")
	}
	if s.LevelID == "" {
		return invalidEntity("section", s.ID, "level_id", "is required")
	}
	if s.Capacity <= 0 {
		return invalidEntity("section", s.ID, "capacity", "must be > 0")
	}
	switch s.RoomType {
	case "", RoomTypeLecture, RoomTypeLab:
	default:
		return invalidEntity("section", s.ID, "room_type", "must be empty, LECTURE or LAB")
	}
	return nil
}
