package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/qdrant/go-client/qdrant"

	"github.com/noah-isme/kb-admin-api/internal/handler"
	"github.com/noah-isme/kb-admin-api/internal/middleware"
	"github.com/noah-isme/kb-admin-api/internal/models"
	"github.com/noah-isme/kb-admin-api/internal/repository"
	"github.com/noah-isme/kb-admin-api/internal/service"
	"github.com/noah-isme/kb-admin-api/pkg/cache"
	"github.com/noah-isme/kb-admin-api/pkg/config"
	"github.com/noah-isme/kb-admin-api/pkg/database"
	"github.com/noah-isme/kb-admin-api/pkg/lock"
	"github.com/noah-isme/kb-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/kb-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/kb-admin-api/pkg/middleware/requestid"
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	minioClient, err := minio.New(cfg.Blob.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Blob.AccessKey, cfg.Blob.SecretKey, ""),
		Secure: cfg.Blob.UseSSL,
	})
	if err != nil {
		logr.Sugar().Fatalw("failed to build blob client", "error", err)
	}

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Qdrant.Host,
		Port: cfg.Qdrant.Port,
	})
	if err != nil {
		logr.Sugar().Fatalw("failed to connect qdrant", "error", err)
	}
	defer qdrantClient.Close()

	documentRepo := repository.NewDocumentRepository(db)
	eventRepo := repository.NewLifecycleEventRepository(db)

	vectorGateway := service.NewQdrantGateway(qdrantClient, cfg.Qdrant.Collection, logr)
	blobGateway := service.NewMinioGateway(minioClient, cfg.Blob.Bucket, logr)
	auditRecorder := service.NewAuditRecorder(eventRepo, logr)
	locker := lock.NewRedisLocker(redisClient)
	metricsSvc := service.NewMetricsService()

	dispatcher := service.NewPipelineDispatcher(redisClient, logr, cfg.Pipeline)
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	dispatcher.Start(rootCtx)
	defer dispatcher.Stop()

	lifecycleSvc := service.NewLifecycleService(documentRepo, vectorGateway, blobGateway, auditRecorder, locker, dispatcher, metricsSvc, logr, service.LifecycleServiceConfig{
		StoreTimeout: cfg.Lifecycle.StoreTimeout,
		LockTTL:      cfg.Lifecycle.LockTTL,
		LockWait:     cfg.Lifecycle.LockWait,
	})
	bulkSvc := service.NewBulkService(lifecycleSvc, metricsSvc, logr, cfg.Lifecycle.BulkWorkers)
	documentSvc := service.NewDocumentService(documentRepo, eventRepo, blobGateway, logr, cfg.Blob.PresignTTL)
	duplicateDetector := service.NewDuplicateDetector(documentRepo, lifecycleSvc, logr)
	authSvc := service.NewAuthService(cfg.JWT)

	lifecycleHandler := handler.NewLifecycleHandler(lifecycleSvc, bulkSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc, duplicateDetector)

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
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.JWT(authSvc))
	{
		kbs := api.Group("/kbs/:kbId")
		kbs.GET("/documents", documentHandler.List)
		kbs.GET("/duplicate-check", documentHandler.DuplicateCheck)

		docs := api.Group("/documents")
		docs.GET("/:id", documentHandler.Get)
		docs.GET("/:id/download", documentHandler.Download)
		docs.GET("/:id/events", middleware.RequireRoles(models.RoleAdmin), documentHandler.Events)

		manage := docs.Group("")
		manage.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleOwner))
		manage.POST("/:id/archive", lifecycleHandler.Archive)
		manage.POST("/:id/restore", lifecycleHandler.Restore)
		manage.DELETE("/:id/clear", lifecycleHandler.Clear)
		manage.PUT("/:id/replace", lifecycleHandler.Replace)

		admin := docs.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		admin.DELETE("/:id/purge", lifecycleHandler.Purge)

		bulk := api.Group("/documents/bulk")
		bulk.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleOwner))
		bulk.POST("/archive", lifecycleHandler.BulkArchive)
		bulk.POST("/restore", lifecycleHandler.BulkRestore)
		bulk.POST("/clear", lifecycleHandler.BulkClear)
		bulk.POST("/purge", middleware.RequireRoles(models.RoleAdmin), lifecycleHandler.BulkPurge)
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
