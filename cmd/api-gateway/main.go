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

	_ "github.com/munify/munify-api/api/swagger"
	"github.com/munify/munify-api/internal/handler"
	"github.com/munify/munify-api/internal/jobs"
	"github.com/munify/munify-api/internal/middleware"
	"github.com/munify/munify-api/internal/models"
	"github.com/munify/munify-api/internal/repository"
	"github.com/munify/munify-api/internal/service"
	"github.com/munify/munify-api/pkg/cache"
	"github.com/munify/munify-api/pkg/config"
	"github.com/munify/munify-api/pkg/database"
	"github.com/munify/munify-api/pkg/export"
	"github.com/munify/munify-api/pkg/logger"
	corsmiddleware "github.com/munify/munify-api/pkg/middleware/cors"
	reqidmiddleware "github.com/munify/munify-api/pkg/middleware/requestid"
	"github.com/munify/munify-api/pkg/storage"
)

// @title Munify API
// @version 1.0.0
// @description Municipal project funding marketplace
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, statistics cache disabled", "error", err)
		redisClient = nil
	}

	// Repositories.
	projectRepo := repository.NewProjectRepository(db)
	commitmentRepo := repository.NewCommitmentRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	organizationRepo := repository.NewOrganizationRepository(db)
	userRepo := repository.NewUserRepository(db)
	statisticsRepo := repository.NewStatisticsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Receipt plumbing.
	receiptStore, err := storage.NewLocalStorage(cfg.Receipts.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init receipt storage", "error", err)
	}
	receiptSigner := storage.NewSignedURLSigner(cfg.Receipts.SignedURLSecret, cfg.Receipts.SignedURLTTL)

	validate := validator.New()

	// Services.
	authSvc := service.NewAuthService(userRepo, organizationRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "munify-api",
	})
	projectSvc := service.NewProjectService(projectRepo, validate, logr)
	receiptSvc := service.NewReceiptService(export.NewReceiptRenderer(), receiptStore, receiptSigner, logr)
	commitmentSvc := service.NewCommitmentService(commitmentRepo, projectRepo, organizationRepo, receiptSvc, validate, logr)
	questionSvc := service.NewQuestionService(questionRepo, projectRepo, validate, logr)
	organizationSvc := service.NewOrganizationService(organizationRepo, logr)
	statisticsSvc := service.NewStatisticsService(statisticsRepo, cacheRepo, cfg.Statistics.CacheTTL, logr)
	metricsSvc := service.NewMetricsService()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	projectHandler := handler.NewProjectHandler(projectSvc)
	commitmentHandler := handler.NewCommitmentHandler(commitmentSvc, receiptSvc)
	questionHandler := handler.NewQuestionHandler(questionSvc)
	organizationHandler := handler.NewOrganizationHandler(organizationSvc)
	statisticsHandler := handler.NewStatisticsHandler(statisticsSvc, commitmentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Scrape())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public routes. Project reads take optional claims so authenticated
	// callers keep their role scoping while anonymous callers see public
	// active projects only.
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/receipts/download", commitmentHandler.DownloadReceipt)
	api.GET("/projects", middleware.OptionalJWT(authSvc), projectHandler.List)
	api.GET("/projects/:referenceId", middleware.OptionalJWT(authSvc), projectHandler.Get)

	// Authenticated routes.
	auth := api.Group("")
	auth.Use(middleware.JWT(authSvc))
	{
		auth.POST("/auth/logout", authHandler.Logout)
		auth.GET("/auth/me", authHandler.Me)

		projects := auth.Group("/projects")
		{
			projects.POST("", middleware.RequireRoles(models.RoleMunicipality, models.RoleAdmin), projectHandler.Create)
			projects.PUT("/:referenceId", middleware.RequireRoles(models.RoleMunicipality, models.RoleAdmin), projectHandler.Update)
			projects.DELETE("/:referenceId", middleware.RequireRoles(models.RoleMunicipality, models.RoleAdmin), projectHandler.Delete)
			projects.POST("/:referenceId/submit", middleware.RequireRoles(models.RoleMunicipality), projectHandler.Submit)
			projects.POST("/:referenceId/approve", middleware.RequireRoles(models.RoleAdmin), projectHandler.Approve)
			projects.POST("/:referenceId/reject", middleware.RequireRoles(models.RoleAdmin), projectHandler.Reject)
			projects.POST("/:referenceId/resubmit", middleware.RequireRoles(models.RoleMunicipality), projectHandler.Resubmit)
			projects.POST("/:referenceId/close", middleware.RequireRoles(models.RoleMunicipality, models.RoleAdmin), projectHandler.Close)
			projects.POST("/:referenceId/recompute-funding", middleware.RequireRoles(models.RoleAdmin), projectHandler.RecomputeFunding)
			projects.GET("/:referenceId/rejections", projectHandler.Rejections)

			projects.GET("/:referenceId/questions", questionHandler.List)
			projects.POST("/:referenceId/questions", middleware.RequireRoles(models.RoleLender), questionHandler.Create)
		}

		commitments := auth.Group("/commitments")
		{
			commitments.GET("", commitmentHandler.List)
			commitments.GET("/:id", commitmentHandler.Get)
			commitments.POST("", middleware.RequireRoles(models.RoleLender), commitmentHandler.Create)
			commitments.PUT("/:id", middleware.RequireRoles(models.RoleLender), commitmentHandler.Update)
			commitments.POST("/:id/submit", middleware.RequireRoles(models.RoleLender), commitmentHandler.Submit)
			commitments.POST("/:id/claim", middleware.RequireRoles(models.RoleAdmin), commitmentHandler.Claim)
			commitments.POST("/:id/review", middleware.RequireRoles(models.RoleAdmin), commitmentHandler.Review)
			commitments.POST("/:id/withdraw", commitmentHandler.Withdraw)
			commitments.POST("/:id/fund", middleware.RequireRoles(models.RoleAdmin), commitmentHandler.MarkFunded)
			commitments.POST("/:id/complete", middleware.RequireRoles(models.RoleAdmin), commitmentHandler.MarkCompleted)
			commitments.GET("/:id/history", commitmentHandler.History)
		}

		questions := auth.Group("/questions")
		{
			questions.GET("/:id", questionHandler.Get)
			questions.POST("/:id/answer", questionHandler.Answer)
			questions.POST("/:id/close", questionHandler.Close)
			questions.POST("/:id/sla/evaluate", questionHandler.EvaluateSLA)
		}

		organizations := auth.Group("/organizations")
		{
			organizations.GET("", middleware.RequireRoles(models.RoleAdmin), organizationHandler.List)
			organizations.GET("/:id", organizationHandler.Get)
			organizations.PUT("/:id/fee-status", middleware.RequireRoles(models.RoleAdmin), organizationHandler.SetFeeStatus)
		}

		statistics := auth.Group("/statistics")
		{
			statistics.GET("", statisticsHandler.Platform)
			statistics.DELETE("/cache", middleware.RequireRoles(models.RoleAdmin), statisticsHandler.Invalidate)
			statistics.GET("/commitments/export", middleware.RequireRoles(models.RoleAdmin), statisticsHandler.ExportCommitments)
		}
	}

	var sweeper *jobs.SLASweeper
	if cfg.SLA.SweepEnabled {
		sweeper = jobs.NewSLASweeper(questionSvc, metricsSvc, cfg.SLA.SweepSpec, logr)
		if err := sweeper.Start(); err != nil {
			logr.Sugar().Fatalw("failed to start sla sweeper", "error", err)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	if sweeper != nil {
		sweeper.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
