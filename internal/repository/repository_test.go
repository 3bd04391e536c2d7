package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-scheduler/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLevelRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, target_students FROM levels WHERE ($1 = '' OR id = $1) ORDER BY id")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "target_students"}).AddRow("l1", "Year 1", 120))

	levels, err := NewLevelRepository(db).List(context.Background(), nil, "l1")
	require.NoError(t, err)
	assert.Equal(t, []models.Level{{ID: "l1", Name: "Year 1", TargetStudents: 120}}, levels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListScansPrerequisites(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "code", "credits", "elective", "level_id", "prerequisites"}).
		AddRow("c2", "CS201", 3, true, "l1", "{c0,c1}").
		AddRow("c3", "CS301", 4, false, "l1", "{}")
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses c")).WithArgs("").WillReturnRows(rows)

	courses, err := NewCourseRepository(db).List(context.Background(), nil, "")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, []string{"c0", "c1"}, []string(courses[0].Prerequisites))
	assert.True(t, courses[0].Elective)
	assert.Empty(t, courses[1].Prerequisites)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "max_weekly_load", "unavailable", "course_ids"}).
		AddRow("i1", "Dr. Ada", 4, "{t1}", "{c1,c2}")
	mock.ExpectQuery(regexp.QuoteMeta("FROM instructors i")).WillReturnRows(rows)

	instructors, err := NewInstructorRepository(db).List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, instructors, 1)
	assert.Equal(t, []string{"t1"}, []string(instructors[0].Unavailable))
	assert.Equal(t, []string{"c1", "c2"}, []string(instructors[0].CourseIDs))
	assert.Equal(t, 4, instructors[0].MaxWeeklyLoad)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRoomTimeslotRepositories(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM sections WHERE ($1 = '' OR level_id = $1) ORDER BY id")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "section_number", "capacity", "level_id", "room_type", "timeslot_id", "room_id", "instructor_id"}).
			AddRow("s1", "c1", 1, 30, "l1", "LAB", nil, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, capacity, room_type FROM rooms ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "room_type"}).AddRow("r1", "Lab A", 24, "LAB"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM timeslots ORDER BY day_of_week, start_minute, end_minute, id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "day_of_week", "start_minute", "end_minute", "is_midterm", "is_break"}).AddRow("t1", 1, 480, 540, false, true))

	ctx := context.Background()
	sections, err := NewSectionRepository(db).List(ctx, nil, "l1")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, models.RoomTypeLab, sections[0].RoomType)
	assert.Nil(t, sections[0].TimeSlotID)

	rooms, err := NewRoomRepository(db).List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RoomTypeLab, rooms[0].Type)

	slots, err := NewTimeSlotRepository(db).List(ctx, nil)
	require.NoError(t, err)
	assert.True(t, slots[0].IsBreak)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepository(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRuleRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM rule_sets WHERE version = $1)")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM rule_sets")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM rules WHERE rule_set_version = $1 ORDER BY key, id")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "rule_set_version", "key", "value", "active", "updated_at"}).
			AddRow("rule-1", 2, models.RuleKeyMidtermBlock, []byte(`{"exclusive":true}`), true, time.Now()))

	exists, err := repo.VersionExists(ctx, 3)
	require.NoError(t, err)
	assert.False(t, exists)

	latest, err := repo.LatestVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	rules, err := repo.ListByVersion(ctx, nil, latest)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.JSONEq(t, `{"exclusive":true}`, rules[0].Value.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedules")).
		WithArgs(sqlmock.AnyArg(), "ALL", 4, "PARTIAL", "DRAFT", int64(9), 2, 7, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	schedule := &models.Schedule{Scope: "ALL", Version: 4, Status: models.ScheduleStatusPartial, Seed: 9, RuleSetVersion: 2, TotalPenalty: 7}
	require.NoError(t, NewScheduleRepository(db).Create(context.Background(), nil, schedule))
	assert.NotEmpty(t, schedule.ID)
	assert.Equal(t, models.PublicationStateDraft, schedule.State)
	assert.Equal(t, types.JSONText(`{}`), schedule.Meta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryCreateRejectsMissingVersion(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()

	err := NewScheduleRepository(db).Create(context.Background(), nil, &models.Schedule{Scope: "ALL"})
	assert.Error(t, err)
}

func TestScheduleRepositoryLatestVersionAndList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schedules WHERE scope = $1")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schedules WHERE ($1 = '' OR scope = $1)")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, version DESC LIMIT $2 OFFSET $3")).
		WithArgs("l1", 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "scope", "version", "status", "state", "seed", "rule_set_version", "total_penalty", "meta", "created_at", "updated_at"}).
			AddRow("sch-1", "l1", 1, "COMPLETE", "PUBLISHED", 1, 1, 0, []byte(`{}`), time.Now(), time.Now()))

	version, err := repo.LatestVersion(ctx, nil, "l1")
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	list, total, err := repo.List(ctx, models.ScheduleFilter{Scope: "l1", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 1)
	assert.Equal(t, models.PublicationStatePublished, list[0].State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryTransitionAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4")).
		WithArgs("PUBLISHED", sqlmock.AnyArg(), "sch-1", "DRAFT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schedules SET state")).
		WithArgs("PUBLISHED", sqlmock.AnyArg(), "sch-1", "DRAFT").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedules WHERE id = $1 AND state = $2")).
		WithArgs("sch-2", "DRAFT").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.TransitionState(ctx, "sch-1", models.PublicationStateDraft, models.PublicationStatePublished))
	assert.ErrorIs(t, repo.TransitionState(ctx, "sch-1", models.PublicationStateDraft, models.PublicationStatePublished), sql.ErrNoRows)
	assert.ErrorIs(t, repo.DeleteDraft(ctx, "sch-2"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleAssignmentRepositoryInsertBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	args := make([]driver.Value, 0, 20)
	for _, sectionID := range []string{"s1", "s2"} {
		args = append(args, sqlmock.AnyArg(), "sch-1", sectionID, "t1", "r1", "i1", 0, sqlmock.AnyArg(), true, sqlmock.AnyArg())
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_assignments")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 2))

	batch := []models.ScheduleAssignment{
		{ScheduleID: "sch-1", SectionID: "s1", TimeSlotID: "t1", RoomID: "r1", InstructorID: "i1", Valid: true},
		{ScheduleID: "sch-1", SectionID: "s2", TimeSlotID: "t1", RoomID: "r1", InstructorID: "i1", Valid: true},
	}
	require.NoError(t, NewScheduleAssignmentRepository(db).InsertBatch(context.Background(), nil, batch))
	assert.NotEmpty(t, batch[0].ID)
	assert.NotNil(t, batch[1].SoftViolations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleAssignmentRepositoryInsertBatchPropagatesError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schedule_assignments")).WillReturnError(errors.New("disk full"))

	err := NewScheduleAssignmentRepository(db).InsertBatch(context.Background(), nil, []models.ScheduleAssignment{{ScheduleID: "sch-1", SectionID: "s1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleAssignmentRepositoryListBySchedule(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM schedule_assignments WHERE schedule_id = $1 ORDER BY section_id")).
		WithArgs("sch-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "section_id", "timeslot_id", "room_id", "instructor_id", "penalty", "soft_violations", "valid", "created_at"}).
			AddRow("a1", "sch-1", "s1", "t1", "r1", "i1", 3, "{SESSION_GAP}", true, time.Now()))

	list, err := NewScheduleAssignmentRepository(db).ListBySchedule(context.Background(), "sch-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"SESSION_GAP"}, []string(list[0].SoftViolations))
	assert.NoError(t, mock.ExpectationsWereMet())
}
