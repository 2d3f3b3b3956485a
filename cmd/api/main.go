package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/opentutor/tutor-ops-api/api/swagger"
	"github.com/opentutor/tutor-ops-api/internal/handler"
	"github.com/opentutor/tutor-ops-api/internal/meeting"
	"github.com/opentutor/tutor-ops-api/internal/middleware"
	"github.com/opentutor/tutor-ops-api/internal/repository"
	"github.com/opentutor/tutor-ops-api/internal/service"
	"github.com/opentutor/tutor-ops-api/internal/worker"
	"github.com/opentutor/tutor-ops-api/pkg/cache"
	"github.com/opentutor/tutor-ops-api/pkg/config"
	"github.com/opentutor/tutor-ops-api/pkg/database"
	"github.com/opentutor/tutor-ops-api/pkg/logger"
	corsmiddleware "github.com/opentutor/tutor-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/opentutor/tutor-ops-api/pkg/middleware/requestid"
)

// @title Tutor Ops API
// @version 0.1.0
// @description Session scheduling, conflict resolution and lifecycle service
// @BasePath /
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	cacheEnabled := cfg.Timetable.CacheEnabled
	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, timetable cache disabled", "error", err)
		cacheEnabled = false
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Timetable.CacheTTL, logr, false)
	} else {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.CacheTTL, logr, cacheEnabled)
	}

	sessionRepo := repository.NewSessionRepository(db)
	batchRepo := repository.NewBatchRepository(db)

	provisioner := meeting.NewClient(cfg.Meeting, logr)

	sessionSvc := service.NewSessionService(sessionRepo, batchRepo, provisioner, cacheSvc, validate, logr).
		WithMetrics(metricsSvc)
	timetableSvc := service.NewTimetableService(sessionRepo, cacheSvc, cfg.Timetable.CacheTTL, logr)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	sessionHandler := handler.NewSessionHandler(sessionSvc)
	timetableHandler := handler.NewTimetableHandler(timetableSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		batches := api.Group("/batches/:id")
		batches.POST("/sessions", sessionHandler.Create)
		batches.GET("/sessions", sessionHandler.List)
		batches.GET("/timetable", timetableHandler.Weekly)
		batches.GET("/timetable/export", timetableHandler.Export)

		sessions := api.Group("/sessions")
		sessions.POST("/cancel", sessionHandler.BulkCancel)
		sessions.POST("/delete", sessionHandler.BulkDelete)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.DELETE("/:id", sessionHandler.Delete)
		sessions.POST("/:id/start", sessionHandler.Start)
		sessions.POST("/:id/end", sessionHandler.End)
		sessions.POST("/:id/cancel", sessionHandler.Cancel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sweep.Enabled {
		sweeper := worker.NewAutoStartSweeper(sessionRepo, sessionSvc, cfg.Sweep.Interval, logr)
		go sweeper.Run(ctx)

		dispatcher := worker.NewReminderDispatcher(sessionRepo, worker.LogNotifier{Logger: logr},
			cfg.Sweep.ReminderLead, cfg.Sweep.ReminderInterval, cfg.Sweep.WorkerCount, logr)
		go dispatcher.Run(ctx)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "cache_enabled", cacheEnabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
