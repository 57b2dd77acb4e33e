package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-api/api/swagger"
	"github.com/noah-isme/timetable-api/internal/handler"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/cache"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/database"
	"github.com/noah-isme/timetable-api/pkg/jobs"
	"github.com/noah-isme/timetable-api/pkg/logger"
	"github.com/noah-isme/timetable-api/pkg/suggestion"
)

// @title Timetable API
// @version 1.0.0
// @description Conflict-free university timetable generation, approval and export
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache and distributed scope lock", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	grid, err := buildGrid(cfg.Scheduler)
	if err != nil {
		logr.Fatal("invalid scheduler grid", zap.Error(err))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logr),
		metrics,
		cfg.Scheduler.CacheTTL,
		logr,
		redisClient != nil,
	)

	users := repository.NewUserRepository(db)
	subjects := repository.NewSubjectRepository(db)
	faculty := repository.NewFacultyRepository(db)
	classrooms := repository.NewClassroomRepository(db)
	timetables := repository.NewTimetableRepository(db)
	slots := repository.NewTimetableSlotRepository(db)

	planner := scheduler.NewOrchestrator(
		primaryProducer(cfg, logr),
		scheduler.NewGenerator(scheduler.ParseStrategy(cfg.Scheduler.FallbackStrategy)),
		logr,
	)
	locker := service.ChainScopeLockers(
		service.NewLocalScopeLocker(),
		repository.NewRedisScopeLock(redisClient, cfg.Scheduler.LockTTL, logr),
	)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "timetable-api",
	})
	generationSvc := service.NewTimetableGenerationService(
		subjects, faculty, classrooms, timetables, slots,
		planner, locker, db, cacheSvc, metrics, validate, logr,
		service.TimetableGenerationConfig{Grid: grid, LockWait: cfg.Scheduler.LockWait},
	)
	timetableSvc := service.NewTimetableService(timetables, slots, db, cacheSvc, grid, validate, logr)

	jobStore := service.NewGenerationJobStore(cfg.Scheduler.JobTTL)
	worker := service.NewGenerationWorker(jobStore, generationSvc, logr)
	queue := jobs.NewQueue("timetable-generation", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Scheduler.JobWorkers,
		BufferSize: cfg.Scheduler.JobBuffer,
		MaxRetries: cfg.Scheduler.JobRetries,
		RetryDelay: 2 * time.Second,
		OnFailure:  worker.OnFailure,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	jobSvc := service.NewGenerationJobService(jobStore, queue, validate, logr)

	router := newRouter(cfg, logr, routerDeps{
		auth:      handler.NewAuthHandler(authSvc),
		timetable: handler.NewTimetableHandler(generationSvc, jobSvc, timetableSvc),
		metrics:   handler.NewMetricsHandler(metrics, db),
		tokens:    authSvc,
		observer:  metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "primaryProducer", cfg.Scheduler.PrimaryProducer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildGrid(cfg config.SchedulerConfig) ([]models.TimeSlot, error) {
	days := scheduler.DefaultDays
	periods := scheduler.DefaultPeriods
	if len(cfg.Days) > 0 {
		parsed, err := scheduler.ParseDays(cfg.Days)
		if err != nil {
			return nil, err
		}
		days = parsed
	}
	if len(cfg.Periods) > 0 {
		parsed, err := scheduler.ParsePeriods(cfg.Periods)
		if err != nil {
			return nil, err
		}
		periods = parsed
	}
	return scheduler.BuildGrid(days, periods), nil
}

// primaryProducer picks the first-choice candidate source. The suggestion source
// falls back to the greedy generator when no API key is configured.
func primaryProducer(cfg *config.Config, logr *zap.Logger) scheduler.CandidateProducer {
	greedy := scheduler.NewGenerator(scheduler.ParseStrategy(cfg.Scheduler.PrimaryStrategy))
	if cfg.Scheduler.PrimaryProducer != config.ProducerSuggestion {
		return greedy
	}

	client, err := suggestion.NewClient(suggestion.Config{
		BaseURL:     cfg.Suggestion.BaseURL,
		APIKey:      cfg.Suggestion.APIKey,
		Model:       cfg.Suggestion.Model,
		Timeout:     cfg.Suggestion.Timeout,
		Temperature: cfg.Suggestion.Temperature,
		MaxTokens:   cfg.Suggestion.MaxTokens,
	}, logr)
	if err != nil {
		logr.Warn("suggestion producer unavailable, using greedy generator", zap.Error(err))
		return greedy
	}
	return scheduler.NewSuggestionProducer(client)
}
