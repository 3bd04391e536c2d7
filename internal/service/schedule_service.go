package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-scheduler/internal/dto"
	"github.com/noah-isme/course-scheduler/internal/models"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
	"github.com/noah-isme/course-scheduler/pkg/export"
)

type scheduleReader interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	TransitionState(ctx context.Context, id string, from, to models.PublicationState) error
	DeleteDraft(ctx context.Context, id string) error
}

type assignmentReader interface {
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ScheduleAssignment, error)
}

// ExportFile is a rendered schedule export.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ScheduleService serves persisted schedule versions and their publication lifecycle.
type ScheduleService struct {
	schedules   scheduleReader
	assignments assignmentReader
	timeslots   timeSlotLister
	cache       *CacheService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewScheduleService constructs the service. cache may be nil.
func NewScheduleService(schedules scheduleReader, assignments assignmentReader, timeslots timeSlotLister, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		schedules:   schedules,
		assignments: assignments,
		timeslots:   timeslots,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
	}
}

// List returns schedule versions, newest first.
func (s *ScheduleService) List(ctx context.Context, query dto.ScheduleQuery) ([]models.Schedule, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "invalid filter")
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = 20
	}
	items, total, err := s.schedules.List(ctx, models.ScheduleFilter{Scope: query.LevelID, Page: query.Page, PageSize: query.PageSize})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	if items == nil {
		items = []models.Schedule{}
	}
	return items, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}, nil
}

// Get loads one schedule version.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return schedule, nil
}

// Assignments returns the assignment rows of a schedule version. Persisted versions never
// change, so results are served from cache when available.
func (s *ScheduleService) Assignments(ctx context.Context, id string) (*dto.ScheduleAssignmentsResponse, error) {
	key := s.cache.Key(id, "assignments")
	var cached dto.ScheduleAssignmentsResponse
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.assignments.ListBySchedule(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	if rows == nil {
		rows = []models.ScheduleAssignment{}
	}
	resp := &dto.ScheduleAssignmentsResponse{ScheduleID: schedule.ID, Version: schedule.Version, Assignments: rows}
	_ = s.cache.Set(ctx, key, resp, 0)
	return resp, nil
}

// Publish moves a draft version to PUBLISHED. Published versions are immutable.
func (s *ScheduleService) Publish(ctx context.Context, id string) (*models.Schedule, error) {
	if err := s.schedules.TransitionState(ctx, id, models.PublicationStateDraft, models.PublicationStatePublished); err != nil {
		return nil, s.lifecycleError(ctx, id, err, "publish")
	}
	s.logger.Info("schedule published", zap.String("schedule_id", id))
	return s.Get(ctx, id)
}

// Delete removes a draft version together with its assignments.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.schedules.DeleteDraft(ctx, id); err != nil {
		return s.lifecycleError(ctx, id, err, "delete")
	}
	_ = s.cache.Invalidate(ctx, s.cache.Key(id, "assignments"))
	s.logger.Info("draft schedule deleted", zap.String("schedule_id", id))
	return nil
}

// Export renders the assignments of a schedule version as CSV or PDF.
func (s *ScheduleService) Export(ctx context.Context, id string, query dto.ExportQuery) (*ExportFile, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "invalid export format")
	}
	format := query.Format
	if format == "" {
		format = "csv"
	}

	set, err := s.Assignments(ctx, id)
	if err != nil {
		return nil, err
	}
	slots, err := s.timeslots.List(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timeslots")
	}
	rows := ExportRows(set.Assignments, slots)

	base := fmt.Sprintf("schedule-%s-v%d", id, set.Version)
	switch format {
	case "pdf":
		data, err := s.pdf.Render(rows, fmt.Sprintf("Schedule %s v%d", id, set.Version))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		data, err := s.csv.Render(rows)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv", Data: data}, nil
	}
}

// lifecycleError tells a missing schedule apart from one in the wrong state.
func (s *ScheduleService) lifecycleError(ctx context.Context, id string, err error, action string) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to %s schedule", action))
	}
	schedule, getErr := s.Get(ctx, id)
	if getErr != nil {
		return getErr
	}
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("cannot %s schedule in state %s", action, schedule.State)),
		map[string]string{"scheduleId": id, "state": string(schedule.State)},
	)
}

// ExportRows flattens assignments into export lines, resolving day and clock times from slots.
func ExportRows(assignments []models.ScheduleAssignment, slots []models.TimeSlot) []export.Row {
	byID := make(map[string]models.TimeSlot, len(slots))
	for _, slot := range slots {
		byID[slot.ID] = slot
	}

	rows := make([]export.Row, 0, len(assignments))
	for _, a := range assignments {
		row := export.Row{
			SectionID:      a.SectionID,
			TimeSlotID:     a.TimeSlotID,
			RoomID:         a.RoomID,
			InstructorID:   a.InstructorID,
			Penalty:        a.Penalty,
			SoftViolations: strings.Join(a.SoftViolations, "|"),
		}
		if slot, ok := byID[a.TimeSlotID]; ok {
			row.Day = strings.ToUpper(time.Weekday(slot.DayOfWeek).String()[:3])
			row.Start = clock(slot.StartMinute)
			row.End = clock(slot.EndMinute)
		}
		rows = append(rows, row)
	}
	return rows
}

func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
