package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// ScheduleScopeAll is the scope of schedules generated without a level filter.
const ScheduleScopeAll = "ALL"

// ScheduleStatus tells whether every in-scope section received an assignment.
type ScheduleStatus string

const (
	ScheduleStatusComplete ScheduleStatus = "COMPLETE"
	ScheduleStatusPartial  ScheduleStatus = "PARTIAL"
)

// PublicationState represents the committee lifecycle of a generated schedule.
type PublicationState string

const (
	PublicationStateDraft     PublicationState = "DRAFT"
	PublicationStatePublished PublicationState = "PUBLISHED"
)

// Schedule is one append-only version of a generated assignment set.
type Schedule struct {
	ID             string           `db:"id" json:"id"`
	Scope          string           `db:"scope" json:"scope"`
	Version        int              `db:"version" json:"version"`
	Status         ScheduleStatus   `db:"status" json:"status"`
	State          PublicationState `db:"state" json:"state"`
	Seed           int64            `db:"seed" json:"seed"`
	RuleSetVersion int              `db:"rule_set_version" json:"rule_set_version"`
	TotalPenalty   int              `db:"total_penalty" json:"total_penalty"`
	Meta           types.JSONText   `db:"meta" json:"meta"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// ScheduleAssignment is a persisted section -> (timeslot, room, instructor) tuple.
type ScheduleAssignment struct {
	ID             string         `db:"id" json:"id"`
	ScheduleID     string         `db:"schedule_id" json:"schedule_id"`
	SectionID      string         `db:"section_id" json:"section_id"`
	TimeSlotID     string         `db:"timeslot_id" json:"timeslot_id"`
	RoomID         string         `db:"room_id" json:"room_id"`
	InstructorID   string         `db:"instructor_id" json:"instructor_id"`
	Penalty        int            `db:"penalty" json:"penalty"`
	SoftViolations pq.StringArray `db:"soft_violations" json:"soft_violations"`
	Valid          bool           `db:"valid" json:"valid"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// ScheduleRef identifies a persisted schedule version.
type ScheduleRef struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	Scope    string
	Page     int
	PageSize int
}

// Pagination describes a paged list response.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
