package dto

import (
	"time"

	"github.com/noah-isme/course-scheduler/internal/engine"
	"github.com/noah-isme/course-scheduler/internal/models"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

// GenerateRequest instructs the generator to build a new schedule version. RuleSetVersion
// defaults to the latest stored rule set.
type GenerateRequest struct {
	Seed           *int64 `json:"seed" validate:"required,gte=0"`
	LevelID        string `json:"levelId" validate:"omitempty,max=64"`
	RuleSetVersion *int   `json:"ruleSetVersion" validate:"omitempty,gte=1"`
}

// Diagnostic codes reported alongside a generation result.
const (
	DiagnosticInfeasible      = "INFEASIBLE"
	DiagnosticSoftViolation   = "SOFT_VIOLATION"
	DiagnosticRuleIgnored     = "RULE_IGNORED"
	DiagnosticBudgetExhausted = "BACKTRACK_BUDGET_EXHAUSTED"
)

// Diagnostic is one human-readable finding about a generation run.
type Diagnostic struct {
	Code       string `json:"code"`
	SectionID  string `json:"sectionId,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Count      int    `json:"count,omitempty"`
	Message    string `json:"message"`
}

// GenerateResponse describes the persisted schedule version.
type GenerateResponse struct {
	ScheduleID         string                     `json:"scheduleId"`
	Version            int                        `json:"version"`
	Scope              string                     `json:"scope"`
	Status             models.ScheduleStatus      `json:"status"`
	Seed               int64                      `json:"seed"`
	RuleSetVersion     int                        `json:"ruleSetVersion"`
	TotalPenalty       int                        `json:"totalPenalty"`
	UnassignedSections []engine.UnassignedSection `json:"unassignedSections"`
	Diagnostics        []Diagnostic               `json:"diagnostics"`
	Stats              engine.Stats               `json:"stats"`
}

// RunState tracks an asynchronous generation run.
type RunState string

const (
	RunStateQueued    RunState = "QUEUED"
	RunStateRunning   RunState = "RUNNING"
	RunStateSucceeded RunState = "SUCCEEDED"
	RunStateFailed    RunState = "FAILED"
	RunStateCancelled RunState = "CANCELLED"
)

// Finished reports whether the run reached a terminal state.
func (s RunState) Finished() bool {
	return s == RunStateSucceeded || s == RunStateFailed || s == RunStateCancelled
}

// GenerationRun is the pollable view of an asynchronous generation.
type GenerationRun struct {
	ID         string            `json:"id"`
	State      RunState          `json:"state"`
	Request    GenerateRequest   `json:"request"`
	Result     *GenerateResponse `json:"result,omitempty"`
	Error      *appErrors.Error  `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

// ScheduleQuery filters schedule versions.
type ScheduleQuery struct {
	LevelID  string `form:"levelId" validate:"omitempty,max=64"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// ExportQuery selects the export encoding.
type ExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}

// ScheduleAssignmentsResponse lists the assignments of one schedule version.
type ScheduleAssignmentsResponse struct {
	ScheduleID  string                      `json:"scheduleId"`
	Version     int                         `json:"version"`
	Assignments []models.ScheduleAssignment `json:"assignments"`
}
