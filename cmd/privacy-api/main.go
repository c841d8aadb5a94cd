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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/privacy-api/api/swagger"
	"github.com/noah-isme/privacy-api/internal/handler"
	"github.com/noah-isme/privacy-api/internal/middleware"
	"github.com/noah-isme/privacy-api/internal/models"
	"github.com/noah-isme/privacy-api/internal/repository"
	"github.com/noah-isme/privacy-api/internal/scheduler"
	"github.com/noah-isme/privacy-api/internal/service"
	"github.com/noah-isme/privacy-api/internal/web"
	"github.com/noah-isme/privacy-api/pkg/cache"
	"github.com/noah-isme/privacy-api/pkg/config"
	"github.com/noah-isme/privacy-api/pkg/database"
	"github.com/noah-isme/privacy-api/pkg/export"
	"github.com/noah-isme/privacy-api/pkg/jobs"
	"github.com/noah-isme/privacy-api/pkg/logger"
	"github.com/noah-isme/privacy-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/privacy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/privacy-api/pkg/middleware/requestid"
	"github.com/noah-isme/privacy-api/pkg/signing"
	"github.com/noah-isme/privacy-api/pkg/storage"
)

// @title Privacy API
// @version 1.0.0
// @description Personal data deletion request workflow
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
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis only backs the resend cooldown. The workflow runs without it.
		logr.Sugar().Warnw("redis unavailable, resend cooldown disabled", "error", err)
		redisClient = nil
	}

	descriptors, err := config.LoadDescriptors(cfg.Deletion.DescriptorsFile)
	if err != nil {
		logr.Sugar().Fatalw("failed to load reference descriptors", "error", err)
	}

	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}

	requestRepo := repository.NewDeletionRequestRepository(db)
	userRepo := repository.NewUserRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	cooldownRepo := repository.NewCooldownRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	engine := service.NewAnonymizeService(recordRepo, userRepo, logr, metricsSvc)

	// Queues are built before the service they dispatch to, so the handlers
	// close over a pointer that is assigned right after.
	var deletionSvc *service.DeletionService
	mailQueue := jobs.NewQueue("mail", func(ctx context.Context, job jobs.Job) error {
		return deletionSvc.HandleMailJob(ctx, job)
	}, jobs.QueueConfig{
		Workers: cfg.Deletion.MailWorkers,
		Logger:  logr,
	})
	anonQueue := jobs.NewQueue("anonymize", func(ctx context.Context, job jobs.Job) error {
		return deletionSvc.HandleAnonymizeJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Deletion.AnonymizeWorkers,
		MaxRetries: cfg.Deletion.AnonymizeRetries,
		JobTimeout: cfg.Deletion.AnonymizeTimeout,
		Logger:     logr,
	})

	deletionSvc = service.NewDeletionService(service.DeletionServiceDeps{
		Repo:        requestRepo,
		Accounts:    userRepo,
		Engine:      engine,
		Descriptors: descriptors,
		MailQueue:   mailQueue,
		AnonQueue:   anonQueue,
		Cooldowns:   cooldownRepo,
		Signer:      signing.NewLinkSigner(cfg.Deletion.SignedLinkSecret, cfg.Deletion.SignedLinkTTL),
		Mail:        mailer.NewSMTPMailer(cfg.SMTP),
		Reports:     reportStore,
		ReportSign:  storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL),
		Renderer:    export.NewReportRenderer(),
		Logger:      logr,
		Metrics:     metricsSvc,
	}, service.DeletionServiceConfig{
		BaseURL:         cfg.BaseURL,
		OperatorEmails:  cfg.Deletion.OperatorEmails,
		RetentionWindow: cfg.Deletion.RetentionWindow,
		ResendCooldown:  cfg.Deletion.ResendCooldown,
		SyncMode:        cfg.Deletion.SyncMode,
	})

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "privacy-api",
	})

	queueCtx, queueCancel := context.WithCancel(context.Background())
	defer queueCancel()
	mailQueue.Start(queueCtx)
	anonQueue.Start(queueCtx)

	reaper := scheduler.NewReaper(cfg.Deletion.ReaperSchedule, deletionSvc.Reap, logr)
	if err := reaper.Start(); err != nil {
		logr.Sugar().Fatalw("failed to start reaper", "error", err)
	}

	deletionHandler := handler.NewDeletionRequestHandler(deletionSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.SetHTMLTemplate(web.Templates())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	// Public surfaces reached from the verification mail.
	r.GET("/confirm", deletionHandler.Confirm)
	r.GET("/downloads/reports", deletionHandler.DownloadReport)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/deletion-requests", deletionHandler.Create)

		operators := api.Group("")
		operators.Use(middleware.JWT(authSvc))
		operators.Use(middleware.RequireRoles(models.RoleSystemManager, models.RoleSupport))
		{
			operators.GET("/deletion-requests", deletionHandler.List)
			operators.GET("/deletion-requests/:id", deletionHandler.Get)
			operators.POST("/deletion-requests/:id/resend", deletionHandler.Resend)
			operators.GET("/deletion-requests/:id/report", deletionHandler.ReportLink)
		}

		elevated := api.Group("")
		elevated.Use(middleware.JWT(authSvc))
		elevated.Use(middleware.RequireRoles(models.RoleSystemManager))
		{
			elevated.POST("/deletion-requests/:id/trigger", deletionHandler.Trigger)
		}
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown", "error", err)
	}

	reaper.Stop()
	mailQueue.Stop()
	anonQueue.Stop()

	if redisClient != nil {
		_ = redisClient.Close()
	}
}
