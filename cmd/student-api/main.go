package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sis-student-api/internal/handler"
	"github.com/noah-isme/sis-student-api/internal/messaging"
	appMiddleware "github.com/noah-isme/sis-student-api/internal/middleware"
	"github.com/noah-isme/sis-student-api/internal/repository"
	"github.com/noah-isme/sis-student-api/internal/service"
	"github.com/noah-isme/sis-student-api/pkg/cache"
	"github.com/noah-isme/sis-student-api/pkg/config"
	"github.com/noah-isme/sis-student-api/pkg/database"
	"github.com/noah-isme/sis-student-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sis-student-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sis-student-api/pkg/middleware/requestid"
	"github.com/noah-isme/sis-student-api/pkg/storage"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, student cache disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	bus := messaging.NewBus(logr)
	bus.SubscribeAll(messaging.AuditLogger(logr.Named("audit")))

	metrics := service.NewMetricsService()
	tokens := service.NewTokenService(cfg.JWT)
	validate := validator.New()

	studentRepo := repository.NewPostgresStudentRepository(db)
	students := service.NewStudentService(studentRepo, bus, cacheRepo, metrics, validate, logr, cfg.Cache.StudentTTL)
	exports := service.NewRosterExportService(studentRepo, cfg.Export.RosterLimit, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Export.SignedURLSecret, cfg.Export.ResultTTL)
	exportJobs := service.NewExportJobService(exports, exportStore, exportSigner, logr, service.ExportJobServiceConfig{
		Workers:         cfg.Export.Workers,
		ResultTTL:       cfg.Export.ResultTTL,
		CleanupInterval: cfg.Export.CleanupInterval,
	})
	exportJobs.Start(context.Background())
	defer exportJobs.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(appMiddleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(cfg.APIPrefix)
	studentHandler := handler.NewStudentHandler(students, exports, exportJobs)
	studentHandler.Register(api, appMiddleware.JWT(tokens))

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
