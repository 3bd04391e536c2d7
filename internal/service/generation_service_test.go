package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/course-scheduler/internal/dto"
	"github.com/noah-isme/course-scheduler/internal/engine"
	"github.com/noah-isme/course-scheduler/internal/models"
	"github.com/noah-isme/course-scheduler/internal/repository"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

func TestGenerationServiceGenerateComplete(t *testing.T) {
	store := newPlanningStoreFake(gridInputs(3, 2, 2, 3), 4)
	metrics := NewMetricsService()
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewGenerationService(store, ruleVersionsStub{latest: 1}, metrics, nil, zap.New(core), GenerationConfig{Options: engine.Options{BacktrackBudget: 100}})

	resp, err := svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(7)})
	require.NoError(t, err)

	assert.Equal(t, models.ScheduleStatusComplete, resp.Status)
	assert.Equal(t, 5, resp.Version)
	assert.Equal(t, "sch-5", resp.ScheduleID)
	assert.Equal(t, models.ScheduleScopeAll, resp.Scope)
	assert.Equal(t, 1, resp.RuleSetVersion)
	assert.Empty(t, resp.UnassignedSections)
	assert.NotNil(t, resp.UnassignedSections)

	require.Len(t, store.persisted, 1)
	assert.Len(t, store.persisted[0].set.Assignments, 3)
	assert.Equal(t, int64(7), store.persisted[0].set.Seed)

	assert.EqualValues(t, 1, metrics.Snapshot().GenerationRuns)
	entries := logs.FilterMessage("schedule generated").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].ContextMap()["seed"])
}

func TestGenerationServiceGeneratePartialIsPersisted(t *testing.T) {
	store := newPlanningStoreFake(gridInputs(3, 1, 1, 3), 0)
	svc := NewGenerationService(store, ruleVersionsStub{latest: 1}, nil, nil, nil, GenerationConfig{Options: engine.Options{BacktrackBudget: 100}})

	resp, err := svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(1)})
	require.NoError(t, err)

	assert.Equal(t, models.ScheduleStatusPartial, resp.Status)
	assert.Equal(t, 1, resp.Version)
	require.Len(t, resp.UnassignedSections, 2)
	require.Len(t, store.persisted, 1)
	assert.Equal(t, models.ScheduleStatusPartial, store.persisted[0].set.Status)
	assert.Len(t, store.persisted[0].set.Assignments, 1)

	var infeasible []dto.Diagnostic
	for _, d := range resp.Diagnostics {
		if d.Code == dto.DiagnosticInfeasible {
			infeasible = append(infeasible, d)
		}
	}
	require.Len(t, infeasible, 2)
	for _, d := range infeasible {
		assert.Equal(t, string(engine.ConstraintRoomDoubleBooked), d.Constraint)
		assert.NotEmpty(t, d.SectionID)
	}
}

func TestGenerationServiceRejectsInvalidRequests(t *testing.T) {
	cases := map[string]dto.GenerateRequest{
		"missing seed":         {},
		"negative seed":        {Seed: seed(-1)},
		"zero rule set":        {Seed: seed(1), RuleSetVersion: intPtr(0)},
		"unknown rule set":     {Seed: seed(1), RuleSetVersion: intPtr(9)},
		"level id is too long": {Seed: seed(1), LevelID: string(make([]byte, 65))},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			store := newPlanningStoreFake(gridInputs(1, 1, 1, 1), 0)
			svc := NewGenerationService(store, ruleVersionsStub{latest: 1, known: map[int]bool{1: true}}, nil, nil, nil, GenerationConfig{})

			_, err := svc.Generate(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrInvalidRequest.Code, appErrors.FromError(err).Code)
			assert.Zero(t, store.persistCalls)
		})
	}
}

func TestGenerationServiceRequiresRuleSet(t *testing.T) {
	store := newPlanningStoreFake(gridInputs(1, 1, 1, 1), 0)
	svc := NewGenerationService(store, ruleVersionsStub{}, nil, nil, nil, GenerationConfig{})

	_, err := svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(1)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRequest.Code, appErrors.FromError(err).Code)
}

func TestGenerationServicePropagatesDataUnavailable(t *testing.T) {
	store := newPlanningStoreFake(gridInputs(1, 1, 1, 1), 0)
	store.loadErr = appErrors.Clone(appErrors.ErrDataUnavailable, "section s1 references unknown course")
	svc := NewGenerationService(store, ruleVersionsStub{latest: 1}, nil, nil, nil, GenerationConfig{})

	_, err := svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(1)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDataUnavailable.Code, appErrors.FromError(err).Code)
	assert.Zero(t, store.persistCalls)
}

func TestGenerationServiceRetriesVersionConflict(t *testing.T) {
	store := newPlanningStoreFake(gridInputs(2, 2, 1, 2), 4)
	store.persistErrs = []error{versionConflict()}
	store.latest = 5
	svc := NewGenerationService(store, ruleVersionsStub{latest: 1}, nil, nil, nil, GenerationConfig{PersistRetries: 2, PersistDelay: time.Millisecond})

	resp, err := svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(3)})
	require.NoError(t, err)
	assert.Equal(t, 2, store.persistCalls)
	assert.Equal(t, []int{5, 6}, store.versions)
	assert.Equal(t, 6, resp.Version)
}

func TestGenerationServiceStopsAfterRetryBudget(t *testing.T) {
	store := newPlanningStoreFake(gridInputs(1, 1, 1, 1), 0)
	store.persistErrs = []error{versionConflict(), versionConflict(), versionConflict()}
	svc := NewGenerationService(store, ruleVersionsStub{latest: 1}, nil, nil, nil, GenerationConfig{PersistRetries: 2, PersistDelay: time.Millisecond})

	_, err := svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(3)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPersistenceFailure.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 3, store.persistCalls)
	assert.Empty(t, store.persisted)
}

func TestGenerationServiceDoesNotRetryPermanentFailure(t *testing.T) {
	store := newPlanningStoreFake(gridInputs(1, 1, 1, 1), 0)
	store.persistErrs = []error{persistFailure(errors.New("disk full"), "failed to store assignments")}
	svc := NewGenerationService(store, ruleVersionsStub{latest: 1}, nil, nil, nil, GenerationConfig{PersistRetries: 3, PersistDelay: time.Millisecond})

	_, err := svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(3)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPersistenceFailure.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, store.persistCalls)
}

func TestGenerationServiceCancelledRunPersistsNothing(t *testing.T) {
	store := newPlanningStoreFake(gridInputs(3, 2, 2, 3), 0)
	metrics := NewMetricsService()
	svc := NewGenerationService(store, ruleVersionsStub{latest: 1}, metrics, nil, nil, GenerationConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Generate(ctx, dto.GenerateRequest{Seed: seed(1)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCancelled.Code, appErrors.FromError(err).Code)
	assert.Zero(t, store.persistCalls)
	assert.EqualValues(t, 1, metrics.Snapshot().GenerationFailures)
}

func TestGenerationServiceReportsIgnoredRules(t *testing.T) {
	in := gridInputs(1, 1, 1, 1)
	in.Rules = []models.Rule{{ID: "rule-x", Key: "lunchPreference", Value: []byte(`{}`), Active: true}}
	store := newPlanningStoreFake(in, 0)
	svc := NewGenerationService(store, ruleVersionsStub{latest: 1}, nil, nil, nil, GenerationConfig{})

	resp, err := svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(1)})
	require.NoError(t, err)

	var ignored []dto.Diagnostic
	for _, d := range resp.Diagnostics {
		if d.Code == dto.DiagnosticRuleIgnored {
			ignored = append(ignored, d)
		}
	}
	require.Len(t, ignored, 1)
	assert.Equal(t, "lunchPreference", ignored[0].Constraint)
}

func TestGenerationServiceRejectsMissingMidtermRule(t *testing.T) {
	in := gridInputs(1, 1, 2, 1)
	in.TimeSlots[1].IsMidterm = true
	store := newPlanningStoreFake(in, 0)
	svc := NewGenerationService(store, ruleVersionsStub{latest: 1}, nil, nil, nil, GenerationConfig{})

	_, err := svc.Generate(context.Background(), dto.GenerateRequest{Seed: seed(1)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRequest.Code, appErrors.FromError(err).Code)
	assert.Zero(t, store.persistCalls)
}

func TestBuildDiagnosticsAggregatesSoftViolations(t *testing.T) {
	diagnostics := buildDiagnostics(&engine.Result{
		Assignments: []engine.Assignment{
			{SectionID: "s1", SoftViolations: []engine.ConstraintKind{engine.ConstraintSessionGap}},
			{SectionID: "s2", SoftViolations: []engine.ConstraintKind{engine.ConstraintSessionGap, engine.ConstraintLoadImbalance}},
		},
		Stats: engine.Stats{BudgetExhausted: true, Backtracks: 10},
	})

	require.Len(t, diagnostics, 3)
	assert.Equal(t, dto.DiagnosticBudgetExhausted, diagnostics[0].Code)
	assert.Equal(t, dto.Diagnostic{
		Code:       dto.DiagnosticSoftViolation,
		Constraint: string(engine.ConstraintLoadImbalance),
		Count:      1,
		Message:    "1 assignments incur LOAD_IMBALANCE",
	}, diagnostics[1])
	assert.Equal(t, 2, diagnostics[2].Count)
}

// --- Fixtures ---

func seed(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func gridInputs(sections, rooms, slots, instructors int) *models.PlanningInputs {
	in := &models.PlanningInputs{
		Scope:   models.ScheduleScopeAll,
		Levels:  []models.Level{{ID: "l1", Name: "Year 1"}},
		Courses: []models.Course{{ID: "c1", Code: "CS101", Credits: 3, LevelID: "l1"}},
	}
	for i := 1; i <= sections; i++ {
		in.Sections = append(in.Sections, models.Section{ID: fmt.Sprintf("s%d", i), CourseID: "c1", Number: i, Capacity: 30, LevelID: "l1"})
	}
	for i := 1; i <= rooms; i++ {
		in.Rooms = append(in.Rooms, models.Room{ID: fmt.Sprintf("r%d", i), Name: fmt.Sprintf("Room %d", i), Capacity: 40, Type: models.RoomTypeLecture})
	}
	for i := 1; i <= slots; i++ {
		start := 480 + (i-1)*120
		in.TimeSlots = append(in.TimeSlots, models.TimeSlot{ID: fmt.Sprintf("t%d", i), DayOfWeek: 1, StartMinute: start, EndMinute: start + 60})
	}
	for i := 1; i <= instructors; i++ {
		in.Instructors = append(in.Instructors, models.Instructor{ID: fmt.Sprintf("i%d", i), Name: fmt.Sprintf("Instructor %d", i)})
	}
	return in
}

func versionConflict() error {
	return persistFailure(&pq.Error{Code: "23505", Constraint: repository.ScheduleVersionConstraint}, "failed to create schedule")
}

type persistCall struct {
	set     ScheduleSet
	version int
}

type planningStoreFake struct {
	mu           sync.Mutex
	inputs       *models.PlanningInputs
	loadErr      error
	persistErrs  []error
	latest       int
	persistCalls int
	versions     []int
	persisted    []persistCall
}

func newPlanningStoreFake(in *models.PlanningInputs, current int) *planningStoreFake {
	in.CurrentVersion = current
	return &planningStoreFake{inputs: in, latest: current}
}

func (f *planningStoreFake) LoadPlanningInputs(ctx context.Context, levelFilter string, ruleSetVersion int) (*models.PlanningInputs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	in := *f.inputs
	in.RuleSetVersion = ruleSetVersion
	return &in, nil
}

func (f *planningStoreFake) PersistSchedule(ctx context.Context, set ScheduleSet, version int) (*models.ScheduleRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persistCalls++
	f.versions = append(f.versions, version)
	if len(f.persistErrs) > 0 {
		err := f.persistErrs[0]
		f.persistErrs = f.persistErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.persisted = append(f.persisted, persistCall{set: set, version: version})
	return &models.ScheduleRef{ID: fmt.Sprintf("sch-%d", version), Version: version}, nil
}

func (f *planningStoreFake) LatestVersion(ctx context.Context, scope string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

type ruleVersionsStub struct {
	latest int
	known  map[int]bool
}

func (s ruleVersionsStub) VersionExists(ctx context.Context, version int) (bool, error) {
	return s.known[version], nil
}

func (s ruleVersionsStub) LatestVersion(ctx context.Context) (int, error) {
	return s.latest, nil
}
