package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/course-scheduler/internal/engine"
	"github.com/noah-isme/course-scheduler/internal/models"
	"github.com/noah-isme/course-scheduler/internal/repository"
	"github.com/noah-isme/course-scheduler/pkg/database"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type levelLister interface {
	List(ctx context.Context, exec sqlx.ExtContext, levelID string) ([]models.Level, error)
}

type courseLister interface {
	List(ctx context.Context, exec sqlx.ExtContext, levelID string) ([]models.Course, error)
}

type sectionLister interface {
	List(ctx context.Context, exec sqlx.ExtContext, levelID string) ([]models.Section, error)
}

type roomLister interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.Room, error)
}

type timeSlotLister interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.TimeSlot, error)
}

type instructorLister interface {
	List(ctx context.Context, exec sqlx.ExtContext) ([]models.Instructor, error)
}

type ruleLister interface {
	ListByVersion(ctx context.Context, exec sqlx.ExtContext, version int) ([]models.Rule, error)
}

type scheduleWriter interface {
	LatestVersion(ctx context.Context, exec sqlx.ExtContext, scope string) (int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
}

type assignmentWriter interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, assignments []models.ScheduleAssignment) error
}

// ScheduleStoreRepos groups the repositories read and written by the store.
type ScheduleStoreRepos struct {
	Levels      levelLister
	Courses     courseLister
	Sections    sectionLister
	Rooms       roomLister
	TimeSlots   timeSlotLister
	Instructors instructorLister
	Rules       ruleLister
	Schedules   scheduleWriter
	Assignments assignmentWriter
}

// ScheduleSet is a finished generation result ready to be stored.
type ScheduleSet struct {
	Scope          string
	Seed           int64
	RuleSetVersion int
	Status         models.ScheduleStatus
	TotalPenalty   int
	Meta           interface{}
	Assignments    []engine.Assignment
}

// ScheduleStore loads planning snapshots and persists generated schedules.
type ScheduleStore struct {
	repos  ScheduleStoreRepos
	tx     txProvider
	logger *zap.Logger
}

// NewScheduleStore wires the store.
func NewScheduleStore(repos ScheduleStoreRepos, tx txProvider, logger *zap.Logger) *ScheduleStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleStore{repos: repos, tx: tx, logger: logger}
}

// LoadPlanningInputs reads one consistent snapshot of the reference data for levelFilter
// (empty for every level) and the rules of ruleSetVersion.
func (s *ScheduleStore) LoadPlanningInputs(ctx context.Context, levelFilter string, ruleSetVersion int) (_ *models.PlanningInputs, err error) {
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDataUnavailable.Code, appErrors.ErrDataUnavailable.Status, "failed to begin snapshot")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	scope := levelFilter
	if scope == "" {
		scope = models.ScheduleScopeAll
	}
	in := &models.PlanningInputs{Scope: scope, RuleSetVersion: ruleSetVersion, LoadedAt: time.Now().UTC()}

	if in.Levels, err = s.repos.Levels.List(ctx, tx, levelFilter); err != nil {
		return nil, loadFailure(err)
	}
	if levelFilter != "" && len(in.Levels) == 0 {
		err = appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrInvalidRequest, fmt.Sprintf("level %q not found", levelFilter)),
			map[string]string{"levelId": levelFilter},
		)
		return nil, err
	}
	if in.Courses, err = s.repos.Courses.List(ctx, tx, levelFilter); err != nil {
		return nil, loadFailure(err)
	}
	if in.Sections, err = s.repos.Sections.List(ctx, tx, levelFilter); err != nil {
		return nil, loadFailure(err)
	}
	if in.Rooms, err = s.repos.Rooms.List(ctx, tx); err != nil {
		return nil, loadFailure(err)
	}
	if in.TimeSlots, err = s.repos.TimeSlots.List(ctx, tx); err != nil {
		return nil, loadFailure(err)
	}
	if in.Instructors, err = s.repos.Instructors.List(ctx, tx); err != nil {
		return nil, loadFailure(err)
	}
	if in.Rules, err = s.repos.Rules.ListByVersion(ctx, tx, ruleSetVersion); err != nil {
		return nil, loadFailure(err)
	}
	if in.CurrentVersion, err = s.repos.Schedules.LatestVersion(ctx, tx, scope); err != nil {
		return nil, loadFailure(err)
	}
	if err = checkReferences(in); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, loadFailure(err)
	}

	s.logger.Debug("planning inputs loaded",
		zap.String("scope", scope),
		zap.Int("sections", len(in.Sections)),
		zap.Int("rooms", len(in.Rooms)),
		zap.Int("timeslots", len(in.TimeSlots)),
		zap.Int("instructors", len(in.Instructors)),
		zap.Int("current_version", in.CurrentVersion),
	)
	return in, nil
}

// PersistSchedule writes the schedule row and every assignment in one transaction. Either all
// rows become visible or none do.
func (s *ScheduleStore) PersistSchedule(ctx context.Context, set ScheduleSet, version int) (_ *models.ScheduleRef, err error) {
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	meta, err := json.Marshal(set.Meta)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode schedule meta")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistFailure(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	schedule := &models.Schedule{
		Scope:          set.Scope,
		Version:        version,
		Status:         set.Status,
		State:          models.PublicationStateDraft,
		Seed:           set.Seed,
		RuleSetVersion: set.RuleSetVersion,
		TotalPenalty:   set.TotalPenalty,
		Meta:           types.JSONText(meta),
	}
	if err = s.repos.Schedules.Create(ctx, tx, schedule); err != nil {
		return nil, persistFailure(err, "failed to create schedule")
	}

	rows := AssignmentRows(schedule.ID, set.Assignments)
	if err = s.repos.Assignments.InsertBatch(ctx, tx, rows); err != nil {
		return nil, persistFailure(err, "failed to store assignments")
	}

	if err = tx.Commit(); err != nil {
		return nil, persistFailure(err, "failed to commit schedule")
	}
	return &models.ScheduleRef{ID: schedule.ID, Version: schedule.Version}, nil
}

// LatestVersion returns the highest persisted version for scope.
func (s *ScheduleStore) LatestVersion(ctx context.Context, scope string) (int, error) {
	version, err := s.repos.Schedules.LatestVersion(ctx, nil, scope)
	if err != nil {
		return 0, persistFailure(err, "failed to read latest version")
	}
	return version, nil
}

// isTransientPersistence reports whether a failed persist may succeed on retry.
func isTransientPersistence(err error) bool {
	return database.IsTransient(err, repository.ScheduleVersionConstraint)
}

func checkReferences(in *models.PlanningInputs) error {
	levels := make(map[string]struct{}, len(in.Levels))
	for _, level := range in.Levels {
		levels[level.ID] = struct{}{}
	}
	courses := make(map[string]struct{}, len(in.Courses))
	for _, course := range in.Courses {
		courses[course.ID] = struct{}{}
	}
	slots := make(map[string]struct{}, len(in.TimeSlots))
	for _, slot := range in.TimeSlots {
		slots[slot.ID] = struct{}{}
	}

	var missing []engine.ReferenceViolation
	for _, course := range in.Courses {
		if _, ok := levels[course.LevelID]; !ok {
			missing = append(missing, engine.ReferenceViolation{Entity: "course", ID: course.ID, Field: "level_id", Ref: course.LevelID})
		}
	}
	for _, section := range in.Sections {
		if _, ok := levels[section.LevelID]; !ok {
			missing = append(missing, engine.ReferenceViolation{Entity: "section", ID: section.ID, Field: "level_id", Ref: section.LevelID})
		}
		if _, ok := courses[section.CourseID]; !ok {
			missing = append(missing, engine.ReferenceViolation{Entity: "section", ID: section.ID, Field: "course_id", Ref: section.CourseID})
		}
	}
	for _, instructor := range in.Instructors {
		for _, slotID := range instructor.Unavailable {
			if _, ok := slots[slotID]; !ok {
				missing = append(missing, engine.ReferenceViolation{Entity: "instructor", ID: instructor.ID, Field: "unavailable", Ref: slotID})
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrDataUnavailable, fmt.Sprintf("%d unresolved references in planning data", len(missing))),
		missing,
	)
}

func loadFailure(err error) error {
	return appErrors.Wrap(err, appErrors.ErrDataUnavailable.Code, appErrors.ErrDataUnavailable.Status, "failed to load planning inputs")
}

func persistFailure(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrPersistenceFailure.Code, appErrors.ErrPersistenceFailure.Status, message)
}

// AssignmentRows converts engine assignments into storage rows of scheduleID.
func AssignmentRows(scheduleID string, assignments []engine.Assignment) []models.ScheduleAssignment {
	rows := make([]models.ScheduleAssignment, 0, len(assignments))
	for _, a := range assignments {
		soft := make(pq.StringArray, 0, len(a.SoftViolations))
		for _, kind := range a.SoftViolations {
			soft = append(soft, string(kind))
		}
		rows = append(rows, models.ScheduleAssignment{
			ScheduleID:     scheduleID,
			SectionID:      a.SectionID,
			TimeSlotID:     a.TimeSlotID,
			RoomID:         a.RoomID,
			InstructorID:   a.InstructorID,
			Penalty:        a.Penalty,
			SoftViolations: soft,
			Valid:          true,
		})
	}
	return rows
}
