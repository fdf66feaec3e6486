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
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/learning-center-api/api/swagger"
	"github.com/noah-isme/learning-center-api/internal/handler"
	"github.com/noah-isme/learning-center-api/internal/middleware"
	"github.com/noah-isme/learning-center-api/internal/repository"
	"github.com/noah-isme/learning-center-api/internal/service"
	"github.com/noah-isme/learning-center-api/pkg/cache"
	"github.com/noah-isme/learning-center-api/pkg/config"
	"github.com/noah-isme/learning-center-api/pkg/database"
	"github.com/noah-isme/learning-center-api/pkg/jobs"
	"github.com/noah-isme/learning-center-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/learning-center-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/learning-center-api/pkg/middleware/requestid"
)

// @title Learning Center API
// @version 1.0.0
// @description Learning progress and assessment engine
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(ctx, db, database.Migrations()); err != nil {
		logr.Sugar().Fatalw("failed to migrate database", "error", err)
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	var redisClient *redis.Client
	var cacheRepo service.CacheRepository
	if cfg.QuizCache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, quiz cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, "learning-center", logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.QuizCache.TTL, logr, cacheRepo != nil)

	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	lessonRepo := repository.NewCompletedLessonRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	attemptRepo := repository.NewQuizAttemptRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	purgeWorker := service.NewAttemptPurgeWorker(outboxRepo, attemptRepo, metricsSvc, logr)
	cleanupQueue := jobs.NewQueue("attempt-cleanup", purgeWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Cleanup.Workers,
		MaxRetries: cfg.Cleanup.MaxRetries,
		RetryDelay: cfg.Cleanup.RetryDelay,
		Logger:     logr,
		OnGiveUp:   purgeWorker.GiveUp,
	})
	cleanupQueue.Start(ctx)
	defer cleanupQueue.Stop()

	relay := service.NewOutboxRelay(outboxRepo, cleanupQueue, cfg.Outbox.BatchSize, cfg.Outbox.Lease, metricsSvc, logr)
	scheduler := cron.New()
	if _, err := relay.Schedule(ctx, scheduler, cfg.Outbox.PollSchedule); err != nil {
		logr.Sugar().Fatalw("invalid outbox schedule", "schedule", cfg.Outbox.PollSchedule, "error", err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, lessonRepo, courseRepo, db, metricsSvc, validate, logr)
	quizSvc := service.NewQuizService(quizRepo, outboxRepo, cleanupQueue, cacheSvc, db, validate, logr)
	attemptSvc := service.NewQuizAttemptService(attemptRepo, quizRepo, db, metricsSvc, validate, logr)
	exportSvc := service.NewExportService(enrollmentRepo, courseRepo, lessonRepo, logr)

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = cache.Check(redisClient)
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Transcripts: handler.NewTranscriptHandler(exportSvc),
		Quizzes:     handler.NewQuizHandler(quizSvc),
		Attempts:    handler.NewAttemptHandler(attemptSvc),
		Metrics:     metricsHandler,
	}, authSvc)

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

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
