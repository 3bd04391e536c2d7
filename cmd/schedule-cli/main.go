package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/course-scheduler/internal/csvio"
	"github.com/noah-isme/course-scheduler/internal/dto"
	"github.com/noah-isme/course-scheduler/internal/engine"
	"github.com/noah-isme/course-scheduler/internal/service"
	"github.com/noah-isme/course-scheduler/pkg/config"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
	"github.com/noah-isme/course-scheduler/pkg/export"
	"github.com/noah-isme/course-scheduler/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "schedule-cli:", err)
		os.Exit(1)
	}
}

type output struct {
	Result      *dto.GenerateResponse `json:"result"`
	Assignments []engine.Assignment   `json:"assignments"`
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("schedule-cli", pflag.ContinueOnError)
	dataDir := flags.String("data", ".", "directory holding the catalogue CSV files")
	seed := flags.Int64("seed", 0, "search seed (required)")
	level := flags.String("level", "", "schedule a single level")
	ruleSet := flags.Int("rule-set-version", 0, "rule set version, latest when omitted")
	format := flags.String("format", "csv", "output format: csv or json")
	outPath := flags.String("output", "", "write to file instead of stdout")
	flags.Int("scheduler-backtrack-budget", 10000, "backtracks allowed before falling back to greedy placement")
	flags.String("scheduler-infeasible-policy", "continue", "continue or halt at the first unplaceable section")
	flags.String("scheduler-max-run-duration", "", "abort the search after this duration")
	flags.String("log-level", "warn", "log level")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if !flags.Changed("seed") {
		return errors.New("--seed is required")
	}
	if *format != "csv" && *format != "json" {
		return fmt.Errorf("unsupported format %q", *format)
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Format = "console"
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	ds, err := csvio.Load(*dataDir)
	if err != nil {
		return err
	}
	store := csvio.NewStore(ds)
	genCfg := service.GenerationConfigFrom(cfg.Scheduler)
	genCfg.PersistRetries = 0
	generator := service.NewGenerationService(store, csvio.NewRuleVersions(ds), nil, nil, logr, genCfg)

	req := dto.GenerateRequest{Seed: seed, LevelID: *level}
	if *ruleSet > 0 {
		req.RuleSetVersion = ruleSet
	}
	resp, err := generator.Generate(ctx, req)
	if err != nil {
		appErr := appErrors.FromError(err)
		logr.Error("generation failed", zap.String("code", appErr.Code), zap.Any("details", appErr.Details))
		return fmt.Errorf("%s: %s", appErr.Code, appErr.Message)
	}
	for _, diag := range resp.Diagnostics {
		logr.Warn(diag.Message, zap.String("code", diag.Code), zap.String("section", diag.SectionID))
	}

	var assignments []engine.Assignment
	if set, ok := store.Last(); ok {
		assignments = set.Assignments
	}

	w := stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if *format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(output{Result: resp, Assignments: assignments})
	}
	rows := service.ExportRows(service.AssignmentRows(resp.ScheduleID, assignments), ds.TimeSlots)
	data, err := export.NewCSVExporter().Render(rows)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
