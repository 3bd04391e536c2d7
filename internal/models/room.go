package models

// RoomType distinguishes lecture halls from laboratories.
type RoomType string

const (
	RoomTypeLecture RoomType = "LECTURE"
	RoomTypeLab     RoomType = "LAB"
)

// Room is a bookable teaching space.
type Room struct {
	ID       string   `db:"id" json:"id"`
	Name     string   `db:"name" json:"name"`
	Capacity int      `db:"capacity" json:"capacity"`
	Type     RoomType `db:"room_type" json:"room_type"`
}

// Validate rejects malformed room reference data.
func (r Room) Validate() error {
	if r.ID == "" {
		return invalidEntity("room", r.ID, "id", "is required")
	}
	if r.Capacity <= 0 {
		return invalidEntity("room", r.ID, "capacity", "must be > 0")
	}
	switch r.Type {
	case RoomTypeLecture, RoomTypeLab:
	default:
		return invalidEntity("room", r.ID, "room_type", "must be LECTURE or LAB")
	}
	return nil
}
