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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

// @title Timetable API
// @version 1.0.0
// @description Genetic-algorithm course timetable generation per academic year
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Scheduler.RunStore == config.RunStoreRedis {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect to redis", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:    cfg.JWT.Secret,
		Issuer:    cfg.JWT.Issuer,
		AccessTTL: cfg.JWT.AccessTTL,
	})

	timetables, queue, err := newTimetableService(cfg, db, redisClient, metrics, logr)
	if err != nil {
		logr.Fatal("failed to configure scheduler", zap.Error(err))
	}
	queue.Start(ctx)
	defer queue.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	ops := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if cfg.Scheduler.Enabled {
		audit := func(action string) gin.HandlerFunc {
			return internalmiddleware.Audit(logr, action, "timetable")
		}
		handler.NewTimetableHandler(timetables).Register(r.Group(cfg.APIPrefix), tokens, audit)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

func newTimetableService(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, metrics *service.MetricsService, logr *zap.Logger) (*service.TimetableService, *jobs.Queue, error) {
	scope, err := scheduler.ParseCommitmentScope(cfg.Scheduler.ExternalScope)
	if err != nil {
		return nil, nil, err
	}

	var runs service.RunStore
	switch cfg.Scheduler.RunStore {
	case config.RunStoreRedis:
		runs = repository.NewRunCacheRepository(redisClient, logr)
	case config.RunStoreMemory, "":
		runs = service.NewMemoryRunStore()
	default:
		return nil, nil, fmt.Errorf("unknown run store %q", cfg.Scheduler.RunStore)
	}

	svc := service.NewTimetableService(
		repository.NewAcademicYearRepository(db),
		repository.NewCourseRepository(db),
		repository.NewTeacherRepository(db),
		repository.NewClassroomRepository(db),
		repository.NewScheduleRepository(db),
		repository.NewCommitmentRepository(db),
		db,
		runs,
		metrics,
		validator.New(),
		logr,
		service.TimetableServiceConfig{
			Defaults: scheduler.Params{
				PopulationSize: cfg.Scheduler.PopulationSize,
				Generations:    cfg.Scheduler.Generations,
				MutationRate:   cfg.Scheduler.MutationRate,
				EliteSize:      cfg.Scheduler.EliteSize,
				Workers:        cfg.Scheduler.Workers,
				Seed:           cfg.Scheduler.Seed,
			},
			ExternalScope: scope,
			RunTTL:        cfg.Scheduler.RunTTL,
		},
	)

	queue := jobs.NewQueue("timetable", svc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Scheduler.QueueWorkers,
		BufferSize: cfg.Scheduler.QueueBuffer,
		MaxRetries: cfg.Scheduler.QueueRetries,
		Logger:     logr,
	})
	svc.AttachQueue(queue)
	return svc, queue, nil
}
