package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-scheduler/internal/dto"
	"github.com/noah-isme/course-scheduler/internal/engine"
	"github.com/noah-isme/course-scheduler/internal/models"
	"github.com/noah-isme/course-scheduler/pkg/config"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
	"github.com/noah-isme/course-scheduler/pkg/logger"
)

type planningStore interface {
	LoadPlanningInputs(ctx context.Context, levelFilter string, ruleSetVersion int) (*models.PlanningInputs, error)
	PersistSchedule(ctx context.Context, set ScheduleSet, version int) (*models.ScheduleRef, error)
	LatestVersion(ctx context.Context, scope string) (int, error)
}

type ruleVersionReader interface {
	VersionExists(ctx context.Context, version int) (bool, error)
	LatestVersion(ctx context.Context) (int, error)
}

// GenerationConfig tunes the search and the persistence retry loop.
type GenerationConfig struct {
	Options        engine.Options
	Weights        engine.Weights
	MaxRunDuration time.Duration
	PersistRetries int
	PersistDelay   time.Duration
}

// GenerationConfigFrom maps scheduler settings onto a GenerationConfig.
func GenerationConfigFrom(cfg config.SchedulerConfig) GenerationConfig {
	return GenerationConfig{
		Options: engine.Options{
			BacktrackBudget: cfg.BacktrackBudget,
			CheckInterval:   cfg.CheckInterval,
			CandidateLimit:  cfg.CandidateLimit,
			Policy:          engine.InfeasiblePolicy(cfg.InfeasiblePolicy),
		},
		Weights: engine.Weights{
			LoadImbalance: cfg.SoftWeights.LoadImbalance,
			SessionGap:    cfg.SoftWeights.SessionGap,
			CrossLevel:    cfg.SoftWeights.CrossLevel,
			ElectiveClash: cfg.SoftWeights.ElectiveClash,
		},
		MaxRunDuration: cfg.MaxRunDuration,
		PersistRetries: cfg.PersistRetries,
		PersistDelay:   cfg.PersistDelay,
	}
}

// GenerationService runs one generation end to end: snapshot, search, audit, persist.
type GenerationService struct {
	store     planningStore
	rules     ruleVersionReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       GenerationConfig
}

// NewGenerationService wires the orchestrator.
func NewGenerationService(store planningStore, rules ruleVersionReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg GenerationConfig) *GenerationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PersistRetries < 0 {
		cfg.PersistRetries = 0
	}
	if cfg.PersistDelay <= 0 {
		cfg.PersistDelay = 100 * time.Millisecond
	}
	return &GenerationService{store: store, rules: rules, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// Validate checks a request without running it.
func (s *GenerationService) Validate(req dto.GenerateRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "invalid payload")
	}
	return nil
}

// Generate builds and persists a new schedule version. Partial results are persisted and
// reported; cancelled runs persist nothing.
func (s *GenerationService) Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResponse, error) {
	return s.generate(ctx, uuid.NewString(), req)
}

func (s *GenerationService) generate(ctx context.Context, runID string, req dto.GenerateRequest) (*dto.GenerateResponse, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}
	if s.cfg.MaxRunDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxRunDuration)
		defer cancel()
	}

	seed := *req.Seed
	scope := req.LevelID
	if scope == "" {
		scope = models.ScheduleScopeAll
	}
	log := logger.ForRun(s.logger, runID, seed, scope)
	start := time.Now()

	resp, stats, err := s.execute(ctx, log, req, seed)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil && !appErrors.HasCode(err, appErrors.ErrCancelled.Code) {
			err = cancelled(ctx.Err())
		}
		appErr := appErrors.FromError(err)
		s.metrics.ObserveGeneration(scope, appErr.Code, duration, stats.Backtracks, 0, false)
		log.Warn("schedule generation failed", zap.String("code", appErr.Code), zap.Duration("duration", duration), zap.Error(err))
		return nil, err
	}

	s.metrics.ObserveGeneration(scope, string(resp.Status), duration, resp.Stats.Backtracks, len(resp.UnassignedSections), true)
	log.Info("schedule generated",
		zap.String("schedule_id", resp.ScheduleID),
		zap.Int("version", resp.Version),
		zap.String("status", string(resp.Status)),
		zap.Int("unassigned", len(resp.UnassignedSections)),
		zap.Int("backtracks", resp.Stats.Backtracks),
		zap.Int("total_penalty", resp.TotalPenalty),
		zap.Duration("duration", duration),
	)
	return resp, nil
}

func (s *GenerationService) execute(ctx context.Context, log *zap.Logger, req dto.GenerateRequest, seed int64) (*dto.GenerateResponse, engine.Stats, error) {
	var stats engine.Stats

	ruleSetVersion, err := s.resolveRuleSet(ctx, req.RuleSetVersion)
	if err != nil {
		return nil, stats, err
	}

	inputs, err := s.store.LoadPlanningInputs(ctx, req.LevelID, ruleSetVersion)
	if err != nil {
		return nil, stats, err
	}

	rules, err := engine.CompileRules(inputs.Rules, inputs.TimeSlots, s.cfg.Weights)
	if err != nil {
		return nil, stats, err
	}
	problem, err := engine.NewProblem(inputs, rules)
	if err != nil {
		return nil, stats, err
	}

	opts := s.cfg.Options
	opts.Seed = seed
	result, err := engine.Solve(ctx, problem, opts)
	if err != nil {
		return nil, stats, err
	}
	stats = result.Stats
	log.Debug("search finished",
		zap.Int("sections", problem.SectionCount()),
		zap.Int("iterations", result.Stats.Iterations),
		zap.Int("backtracks", result.Stats.Backtracks),
		zap.Bool("budget_exhausted", result.Stats.BudgetExhausted),
	)

	if violations := engine.Audit(problem, result.Assignments); len(violations) > 0 {
		return nil, stats, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrInternal, "generated assignment set violates hard constraints"),
			violations,
		)
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, cancelled(err)
	}

	diagnostics := buildDiagnostics(result)
	set := ScheduleSet{
		Scope:          inputs.Scope,
		Seed:           seed,
		RuleSetVersion: ruleSetVersion,
		Status:         result.Status,
		TotalPenalty:   result.TotalPenalty,
		Assignments:    result.Assignments,
		Meta: map[string]interface{}{
			"stats":              result.Stats,
			"unassignedSections": result.Unassigned,
			"diagnostics":        diagnostics,
			"rules":              rules,
		},
	}
	ref, err := s.persist(ctx, log, set, inputs.CurrentVersion+1)
	if err != nil {
		return nil, stats, err
	}

	unassigned := result.Unassigned
	if unassigned == nil {
		unassigned = []engine.UnassignedSection{}
	}
	return &dto.GenerateResponse{
		ScheduleID:         ref.ID,
		Version:            ref.Version,
		Scope:              inputs.Scope,
		Status:             result.Status,
		Seed:               seed,
		RuleSetVersion:     ruleSetVersion,
		TotalPenalty:       result.TotalPenalty,
		UnassignedSections: unassigned,
		Diagnostics:        diagnostics,
		Stats:              result.Stats,
	}, stats, nil
}

func (s *GenerationService) resolveRuleSet(ctx context.Context, requested *int) (int, error) {
	if s.rules == nil {
		return 0, appErrors.Clone(appErrors.ErrInternal, "rule repository missing")
	}
	if requested == nil {
		latest, err := s.rules.LatestVersion(ctx)
		if err != nil {
			return 0, loadFailure(err)
		}
		if latest == 0 {
			return 0, appErrors.Clone(appErrors.ErrInvalidRequest, "no rule set defined")
		}
		return latest, nil
	}
	exists, err := s.rules.VersionExists(ctx, *requested)
	if err != nil {
		return 0, loadFailure(err)
	}
	if !exists {
		return 0, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrInvalidRequest, fmt.Sprintf("rule set version %d not found", *requested)),
			map[string]int{"ruleSetVersion": *requested},
		)
	}
	return *requested, nil
}

// persist retries transient failures, re-reading the version counter after each conflict.
func (s *GenerationService) persist(ctx context.Context, log *zap.Logger, set ScheduleSet, version int) (*models.ScheduleRef, error) {
	for attempt := 0; ; attempt++ {
		ref, err := s.store.PersistSchedule(ctx, set, version)
		if err == nil {
			return ref, nil
		}
		if !isTransientPersistence(err) || attempt >= s.cfg.PersistRetries {
			return nil, err
		}
		log.Warn("transient persistence failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("version", version),
			zap.Error(err),
		)

		timer := time.NewTimer(s.cfg.PersistDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, cancelled(ctx.Err())
		case <-timer.C:
		}

		latest, err := s.store.LatestVersion(ctx, set.Scope)
		if err != nil {
			return nil, err
		}
		version = latest + 1
	}
}

func buildDiagnostics(result *engine.Result) []dto.Diagnostic {
	diagnostics := make([]dto.Diagnostic, 0, len(result.Unassigned)+len(result.Notices))
	for _, section := range result.Unassigned {
		d := dto.Diagnostic{
			Code:      dto.DiagnosticInfeasible,
			SectionID: section.SectionID,
			Message:   fmt.Sprintf("section %s left unassigned: %s", section.SectionID, section.Cause),
		}
		if len(section.Reasons) > 0 {
			top := section.Reasons[0]
			d.Constraint = string(top.Kind)
			d.Count = top.Count
			d.Message = fmt.Sprintf("%s, most candidates blocked by %s", d.Message, top.Kind)
		}
		diagnostics = append(diagnostics, d)
	}

	if result.Stats.BudgetExhausted {
		diagnostics = append(diagnostics, dto.Diagnostic{
			Code:    dto.DiagnosticBudgetExhausted,
			Count:   result.Stats.Backtracks,
			Message: "backtrack budget exhausted before every section was placed",
		})
	}

	soft := make(map[engine.ConstraintKind]int)
	for _, a := range result.Assignments {
		for _, kind := range a.SoftViolations {
			soft[kind]++
		}
	}
	kinds := make([]engine.ConstraintKind, 0, len(soft))
	for kind := range soft {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		diagnostics = append(diagnostics, dto.Diagnostic{
			Code:       dto.DiagnosticSoftViolation,
			Constraint: string(kind),
			Count:      soft[kind],
			Message:    fmt.Sprintf("%d assignments incur %s", soft[kind], kind),
		})
	}

	for _, notice := range result.Notices {
		message := fmt.Sprintf("rule %s: %s", notice.Key, notice.Reason)
		if notice.RuleID != "" {
			message = fmt.Sprintf("rule %s (%s): %s", notice.Key, notice.RuleID, notice.Reason)
		}
		diagnostics = append(diagnostics, dto.Diagnostic{
			Code:       dto.DiagnosticRuleIgnored,
			Constraint: notice.Key,
			Message:    message,
		})
	}
	return diagnostics
}

func cancelled(err error) error {
	if err == nil {
		err = context.Canceled
	}
	message := appErrors.ErrCancelled.Message
	if errors.Is(err, context.DeadlineExceeded) {
		message = "generation exceeded its run deadline"
	}
	return appErrors.Wrap(err, appErrors.ErrCancelled.Code, appErrors.ErrCancelled.Status, message)
}
