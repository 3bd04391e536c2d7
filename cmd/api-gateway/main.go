package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-scheduler/api/swagger"
	"github.com/noah-isme/course-scheduler/internal/handler"
	internalmiddleware "github.com/noah-isme/course-scheduler/internal/middleware"
	"github.com/noah-isme/course-scheduler/internal/repository"
	"github.com/noah-isme/course-scheduler/internal/service"
	"github.com/noah-isme/course-scheduler/pkg/cache"
	"github.com/noah-isme/course-scheduler/pkg/config"
	"github.com/noah-isme/course-scheduler/pkg/database"
	"github.com/noah-isme/course-scheduler/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-scheduler/pkg/middleware/requestid"
)

// @title Course Scheduler API
// @version 1.0.0
// @description Generates conflict-free section timetables and manages versioned schedules
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, schedule cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, cfg.Cache.Prefix, logr, cfg.Cache.Enabled)

	schedules := repository.NewScheduleRepository(db)
	assignments := repository.NewScheduleAssignmentRepository(db)
	timeslots := repository.NewTimeSlotRepository(db)
	rules := repository.NewRuleRepository(db)

	store := service.NewScheduleStore(service.ScheduleStoreRepos{
		Levels:      repository.NewLevelRepository(db),
		Courses:     repository.NewCourseRepository(db),
		Sections:    repository.NewSectionRepository(db),
		Rooms:       repository.NewRoomRepository(db),
		TimeSlots:   timeslots,
		Instructors: repository.NewInstructorRepository(db),
		Rules:       rules,
		Schedules:   schedules,
		Assignments: assignments,
	}, db, logr)

	generator := service.NewGenerationService(store, rules, metrics, validate, logr, service.GenerationConfigFrom(cfg.Scheduler))
	runner := service.NewGenerationRunner(generator, service.RunnerConfig{
		Workers:   cfg.Scheduler.Workers,
		QueueSize: cfg.Scheduler.QueueSize,
		RunTTL:    cfg.Scheduler.RunTTL,
	}, logr)
	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()
	runner.Start(runCtx)

	scheduleSvc := service.NewScheduleService(schedules, assignments, timeslots, cacheSvc, validate, logr)
	tokens := service.NewTokenService(cfg.JWT)

	generationHandler := handler.NewGenerationHandler(generator, runner)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db, runner)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(tokens))
	api.GET("/metrics/summary", metricsHandler.Summary)

	generate := api.Group("/schedules/generate")
	generate.POST("", generationHandler.Generate)
	generate.POST("/async", generationHandler.Submit)
	generate.GET("/runs/:id", generationHandler.GetRun)
	generate.DELETE("/runs/:id", generationHandler.CancelRun)

	scheduleRoutes := api.Group("/schedules")
	scheduleRoutes.GET("", scheduleHandler.List)
	scheduleRoutes.GET("/:id", scheduleHandler.Get)
	scheduleRoutes.GET("/:id/assignments", scheduleHandler.Assignments)
	scheduleRoutes.GET("/:id/export", scheduleHandler.Export)
	scheduleRoutes.POST("/:id/publish", scheduleHandler.Publish)
	scheduleRoutes.DELETE("/:id", scheduleHandler.Delete)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	stopRuns()
	runner.Stop()
}
