package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-scheduler/internal/engine"
	"github.com/noah-isme/course-scheduler/internal/models"
	"github.com/noah-isme/course-scheduler/internal/repository"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

func TestScheduleStoreLoadPlanningInputs(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	store := NewScheduleStore(planningRepos(sampleReferenceData(), &scheduleWriterStub{latest: 4}, nil), tx, nil)
	in, err := store.LoadPlanningInputs(context.Background(), "", 2)
	require.NoError(t, err)

	assert.Equal(t, models.ScheduleScopeAll, in.Scope)
	assert.Equal(t, 2, in.RuleSetVersion)
	assert.Equal(t, 4, in.CurrentVersion)
	assert.Len(t, in.Sections, 3)
	assert.Len(t, in.Levels, 2)
	assert.Len(t, in.Rules, 1)
	assert.False(t, in.LoadedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStoreLoadFiltersByLevel(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	store := NewScheduleStore(planningRepos(sampleReferenceData(), &scheduleWriterStub{}, nil), tx, nil)
	in, err := store.LoadPlanningInputs(context.Background(), "l2", 2)
	require.NoError(t, err)

	assert.Equal(t, "l2", in.Scope)
	require.Len(t, in.Sections, 1)
	assert.Equal(t, "s3", in.Sections[0].ID)
	assert.Len(t, in.Courses, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStoreLoadUnknownLevel(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	store := NewScheduleStore(planningRepos(sampleReferenceData(), &scheduleWriterStub{}, nil), tx, nil)
	_, err := store.LoadPlanningInputs(context.Background(), "nope", 2)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRequest.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStoreLoadUnresolvedReferences(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	data := sampleReferenceData()
	data.sections = append(data.sections, models.Section{ID: "s9", CourseID: "ghost", LevelID: "l1", Capacity: 10})
	data.instructors[0].Unavailable = pq.StringArray{"t404"}
	data.courses = append(data.courses, models.Course{ID: "c9", LevelID: "ghost-level"})

	store := NewScheduleStore(planningRepos(data, &scheduleWriterStub{}, nil), tx, nil)
	_, err := store.LoadPlanningInputs(context.Background(), "", 2)
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDataUnavailable.Code, appErr.Code)
	violations, ok := appErr.Details.([]engine.ReferenceViolation)
	require.True(t, ok)
	assert.ElementsMatch(t, []engine.ReferenceViolation{
		{Entity: "course", ID: "c9", Field: "level_id", Ref: "ghost-level"},
		{Entity: "section", ID: "s9", Field: "course_id", Ref: "ghost"},
		{Entity: "instructor", ID: "i1", Field: "unavailable", Ref: "t404"},
	}, violations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStoreLoadRepositoryFailure(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	repos := planningRepos(sampleReferenceData(), &scheduleWriterStub{}, nil)
	repos.Rooms = roomsStub{err: errors.New("connection reset")}
	_, err := NewScheduleStore(repos, tx, nil).LoadPlanningInputs(context.Background(), "", 2)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDataUnavailable.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStorePersistScheduleCommits(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_assignments")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	store := NewScheduleStore(sqlRepos(db), db, nil)
	ref, err := store.PersistSchedule(context.Background(), sampleScheduleSet(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, ref.Version)
	assert.NotEmpty(t, ref.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStorePersistScheduleIsAtomic(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_assignments")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	store := NewScheduleStore(sqlRepos(db), db, nil)
	_, err := store.PersistSchedule(context.Background(), sampleScheduleSet(), 3)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPersistenceFailure.Code, appErrors.FromError(err).Code)
	assert.False(t, isTransientPersistence(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStorePersistVersionConflictIsTransient(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: repository.ScheduleVersionConstraint})
	mock.ExpectRollback()

	store := NewScheduleStore(sqlRepos(db), db, nil)
	_, err := store.PersistSchedule(context.Background(), sampleScheduleSet(), 3)
	require.Error(t, err)
	assert.True(t, isTransientPersistence(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleStoreLatestVersion(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schedules WHERE scope = $1")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(7))

	version, err := NewScheduleStore(sqlRepos(db), db, nil).LatestVersion(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, 7, version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Fixtures ---

type referenceData struct {
	levels      []models.Level
	courses     []models.Course
	sections    []models.Section
	rooms       []models.Room
	timeslots   []models.TimeSlot
	instructors []models.Instructor
	rules       map[int][]models.Rule
}

func sampleReferenceData() referenceData {
	return referenceData{
		levels: []models.Level{{ID: "l1", Name: "Year 1"}, {ID: "l2", Name: "Year 2"}},
		courses: []models.Course{
			{ID: "c1", Code: "CS101", Credits: 3, LevelID: "l1"},
			{ID: "c2", Code: "CS201", Credits: 3, LevelID: "l2", Prerequisites: pq.StringArray{"c1"}},
		},
		sections: []models.Section{
			{ID: "s1", CourseID: "c1", Number: 1, Capacity: 30, LevelID: "l1"},
			{ID: "s2", CourseID: "c1", Number: 2, Capacity: 30, LevelID: "l1"},
			{ID: "s3", CourseID: "c2", Number: 1, Capacity: 30, LevelID: "l2"},
		},
		rooms: []models.Room{
			{ID: "r1", Name: "Hall A", Capacity: 40, Type: models.RoomTypeLecture},
			{ID: "r2", Name: "Hall B", Capacity: 40, Type: models.RoomTypeLecture},
		},
		timeslots: []models.TimeSlot{
			{ID: "t1", DayOfWeek: 1, StartMinute: 480, EndMinute: 540},
			{ID: "t2", DayOfWeek: 1, StartMinute: 600, EndMinute: 660},
		},
		instructors: []models.Instructor{
			{ID: "i1", Name: "Ada"},
			{ID: "i2", Name: "Grace"},
			{ID: "i3", Name: "Barbara"},
		},
		rules: map[int][]models.Rule{
			2: {{ID: "rule-1", RuleSetVersion: 2, Key: models.RuleKeyCapacityLimit, Value: []byte(`{"overflowPercent":10}`), Active: true}},
		},
	}
}

func planningRepos(data referenceData, schedules scheduleWriter, assignments assignmentWriter) ScheduleStoreRepos {
	if assignments == nil {
		assignments = &assignmentWriterStub{}
	}
	return ScheduleStoreRepos{
		Levels:      levelsStub{items: data.levels},
		Courses:     coursesStub{items: data.courses},
		Sections:    sectionsStub{items: data.sections},
		Rooms:       roomsStub{items: data.rooms},
		TimeSlots:   timeSlotsStub{items: data.timeslots},
		Instructors: instructorsStub{items: data.instructors},
		Rules:       rulesStub{items: data.rules},
		Schedules:   schedules,
		Assignments: assignments,
	}
}

func sqlRepos(db *sqlx.DB) ScheduleStoreRepos {
	return ScheduleStoreRepos{
		Schedules:   repository.NewScheduleRepository(db),
		Assignments: repository.NewScheduleAssignmentRepository(db),
	}
}

func sampleScheduleSet() ScheduleSet {
	return ScheduleSet{
		Scope:          models.ScheduleScopeAll,
		Seed:           42,
		RuleSetVersion: 2,
		Status:         models.ScheduleStatusComplete,
		TotalPenalty:   1,
		Meta:           map[string]int{"backtracks": 0},
		Assignments: []engine.Assignment{
			{SectionID: "s1", TimeSlotID: "t1", RoomID: "r1", InstructorID: "i1"},
			{SectionID: "s2", TimeSlotID: "t1", RoomID: "r2", InstructorID: "i2", Penalty: 1, SoftViolations: []engine.ConstraintKind{engine.ConstraintLoadImbalance}},
		},
	}
}

type levelsStub struct {
	items []models.Level
}

func (s levelsStub) List(ctx context.Context, exec sqlx.ExtContext, levelID string) ([]models.Level, error) {
	var out []models.Level
	for _, level := range s.items {
		if levelID == "" || level.ID == levelID {
			out = append(out, level)
		}
	}
	return out, nil
}

type coursesStub struct {
	items []models.Course
}

func (s coursesStub) List(ctx context.Context, exec sqlx.ExtContext, levelID string) ([]models.Course, error) {
	var out []models.Course
	for _, course := range s.items {
		if levelID == "" || course.LevelID == levelID {
			out = append(out, course)
		}
	}
	return out, nil
}

type sectionsStub struct {
	items []models.Section
}

func (s sectionsStub) List(ctx context.Context, exec sqlx.ExtContext, levelID string) ([]models.Section, error) {
	var out []models.Section
	for _, section := range s.items {
		if levelID == "" || section.LevelID == levelID {
			out = append(out, section)
		}
	}
	return out, nil
}

type roomsStub struct {
	items []models.Room
	err   error
}

func (s roomsStub) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Room, error) {
	return s.items, s.err
}

type timeSlotsStub struct {
	items []models.TimeSlot
}

func (s timeSlotsStub) List(ctx context.Context, exec sqlx.ExtContext) ([]models.TimeSlot, error) {
	return s.items, nil
}

type instructorsStub struct {
	items []models.Instructor
}

func (s instructorsStub) List(ctx context.Context, exec sqlx.ExtContext) ([]models.Instructor, error) {
	return s.items, nil
}

type rulesStub struct {
	items map[int][]models.Rule
}

func (s rulesStub) ListByVersion(ctx context.Context, exec sqlx.ExtContext, version int) ([]models.Rule, error) {
	return s.items[version], nil
}

type scheduleWriterStub struct {
	latest  int
	created []models.Schedule
}

func (s *scheduleWriterStub) LatestVersion(ctx context.Context, exec sqlx.ExtContext, scope string) (int, error) {
	return s.latest, nil
}

func (s *scheduleWriterStub) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	schedule.ID = fmt.Sprintf("sch-%d", schedule.Version)
	s.created = append(s.created, *schedule)
	return nil
}

type assignmentWriterStub struct {
	rows []models.ScheduleAssignment
}

func (s *assignmentWriterStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.ScheduleAssignment) error {
	s.rows = append(s.rows, rows...)
	return nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock := newSQLMock(t)
	return &txProviderMock{db: db}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func newSQLMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}
