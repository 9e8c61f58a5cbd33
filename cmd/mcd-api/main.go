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
	"go.uber.org/zap"

	_ "github.com/mcd-eng/mcd-console-api/api/swagger"
	"github.com/mcd-eng/mcd-console-api/internal/handler"
	"github.com/mcd-eng/mcd-console-api/internal/middleware"
	"github.com/mcd-eng/mcd-console-api/internal/repository"
	"github.com/mcd-eng/mcd-console-api/internal/service"
	"github.com/mcd-eng/mcd-console-api/pkg/cache"
	"github.com/mcd-eng/mcd-console-api/pkg/config"
	"github.com/mcd-eng/mcd-console-api/pkg/database"
	"github.com/mcd-eng/mcd-console-api/pkg/logger"
	corsmiddleware "github.com/mcd-eng/mcd-console-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mcd-eng/mcd-console-api/pkg/middleware/requestid"
)

// @title MCD Console API
// @version 1.0.0
// @description Management console for machine configuration device placements
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	projectRepo := repository.NewProjectRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	tagRepo := repository.NewTagRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	masterName := cfg.Master.ProjectName

	var notifier service.Notifier = service.NoopNotifier{}
	var emailNotifier *service.EmailNotifier
	if cfg.Notifications.Enabled {
		emailNotifier = service.NewEmailNotifier(userRepo, service.EmailConfig{
			Host:        cfg.Notifications.SMTPHost,
			Port:        cfg.Notifications.SMTPPort,
			Username:    cfg.Notifications.SMTPUsername,
			Password:    cfg.Notifications.SMTPPassword,
			FromAddress: cfg.Notifications.FromAddress,
			EmailDomain: cfg.Notifications.EmailDomain,
			ServiceURL:  cfg.Notifications.ServiceURL,
			Workers:     cfg.Notifications.WorkerConcurrency,
			Retries:     cfg.Notifications.WorkerRetries,
		}, logr)
		notifier = emailNotifier
	}

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	projectSvc := service.NewProjectService(projectRepo, snapshotRepo, deviceRepo, userRepo, userRepo, masterName, validate, logr)
	deviceSvc := service.NewDeviceService(projectRepo, deviceRepo, snapshotRepo, historyRepo, tagRepo, cacheRepo, userRepo, masterName, logr)
	approvalSvc := service.NewApprovalService(projectRepo, snapshotRepo, deviceRepo, historyRepo, userRepo, cacheRepo, userRepo, notifier, masterName, validate, logr)
	diffSvc := service.NewDiffService(projectRepo, snapshotRepo, deviceRepo, cacheRepo, masterName, cfg.Master.CacheTTL, logr)
	tagSvc := service.NewTagService(projectRepo, tagRepo, userRepo, validate, logr)
	historySvc := service.NewHistoryService(projectRepo, historyRepo, logr)
	userSvc := service.NewUserService(userRepo, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if emailNotifier != nil {
		emailNotifier.Start(rootCtx)
		defer emailNotifier.Stop()
	}

	// The master project must exist before any request touches it.
	if _, err := projectSvc.EnsureMaster(rootCtx); err != nil {
		logr.Fatal("failed to bootstrap master project", zap.Error(err))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	projectHandler := handler.NewProjectHandler(projectSvc)
	deviceHandler := handler.NewDeviceHandler(deviceSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc, metricsSvc)
	diffHandler := handler.NewDiffHandler(diffSvc, metricsSvc)
	tagHandler := handler.NewTagHandler(tagSvc)
	historyHandler := handler.NewHistoryHandler(historySvc)
	userHandler := handler.NewUserHandler(userSvc)
	enumHandler := handler.NewEnumHandler()
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.GET("/auth/whoami", authHandler.WhoAmI)

		authed.GET("/projects", projectHandler.List)
		authed.POST("/projects", projectHandler.Create)
		authed.GET("/projects/master", projectHandler.GetMaster)
		authed.GET("/projects/pending", projectHandler.Pending)
		authed.GET("/projects/:id", projectHandler.Get)
		authed.PATCH("/projects/:id", projectHandler.Update)
		authed.DELETE("/projects/:id", projectHandler.Delete)
		authed.POST("/projects/:id/clone", projectHandler.Clone)

		authed.GET("/projects/:id/devices", deviceHandler.List)
		authed.POST("/projects/:id/devices", deviceHandler.Update)
		authed.POST("/projects/:id/devices/remove", deviceHandler.Remove)
		authed.POST("/projects/:id/devices/copy", deviceHandler.CopyFrom)
		authed.POST("/projects/:id/devices/:deviceId/comments", deviceHandler.AddComment)
		authed.POST("/projects/:id/devices/:deviceId/comments/delete", middleware.RequireAdmin(), deviceHandler.DeleteComments)

		authed.POST("/projects/:id/submit", approvalHandler.Submit)
		authed.POST("/projects/:id/approve", approvalHandler.Approve)
		authed.POST("/projects/:id/reject", approvalHandler.Reject)

		authed.GET("/projects/:id/diff", diffHandler.Diff)

		authed.GET("/projects/:id/tags", tagHandler.List)
		authed.POST("/projects/:id/tags", tagHandler.Create)

		authed.GET("/projects/:id/changes", historyHandler.Changes)
		authed.GET("/approvals", historyHandler.Approvals)

		authed.GET("/devices/fcs", deviceHandler.SearchFCs)

		authed.GET("/users", userHandler.List)
		authed.GET("/users/approvers", userHandler.Approvers)
		authed.GET("/users/editors", userHandler.Editors)
	}

	api.GET("/enums/states", enumHandler.States)
	api.GET("/enums/areas", enumHandler.Areas)
	api.GET("/enums/beamlines", enumHandler.Beamlines)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}

	if err := cacheRepo.Close(); err != nil {
		logr.Warn("failed to close redis", zap.Error(err))
	}
}
