package models

import "time"

// PlanningInputs is the immutable snapshot a generation run works on. It is loaded once
// at the start of a run so concurrent writes to the store never reach an in-flight search.
type PlanningInputs struct {
	Scope          string       `json:"scope"`
	Levels         []Level      `json:"levels"`
	Courses        []Course     `json:"courses"`
	Sections       []Section    `json:"sections"`
	Rooms          []Room       `json:"rooms"`
	TimeSlots      []TimeSlot   `json:"timeslots"`
	Instructors    []Instructor `json:"instructors"`
	Rules          []Rule       `json:"rules"`
	RuleSetVersion int          `json:"rule_set_version"`
	CurrentVersion int          `json:"current_version"`
	LoadedAt       time.Time    `json:"loaded_at"`
}
