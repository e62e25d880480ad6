package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multitenant-rag-platform/internal/ai"
	"multitenant-rag-platform/internal/config"
	"multitenant-rag-platform/internal/database"
	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/internal/queue"
	"multitenant-rag-platform/internal/telemetry"
	"multitenant-rag-platform/middleware"
	"multitenant-rag-platform/routes"
	"multitenant-rag-platform/services"
	"multitenant-rag-platform/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Initialize tracing and metrics
	shutdownTracer, err := telemetry.InitTracer("rag-api")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to Postgres
	pool, err := config.ConnectPostgres(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Postgres:", err)
	}
	defer pool.Close()

	// Connect to Redis (rate limiting and the task queue)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	// Storage layers
	manager := database.NewTenantStoreManager(pool)
	provisioner := database.NewProvisioner(manager, cfg.AgentName, cfg.AgentDescription)
	statusStore := database.NewStatusStore(pool)

	startupCtx, cancelStartup := utils.WithLongTimeout(context.Background())
	defer cancelStartup()

	if err := statusStore.EnsureTables(startupCtx); err != nil {
		log.Fatal("Failed to prepare status tables:", err)
	}

	// Bedrock clients
	runtime, err := ai.NewRuntimeClient(startupCtx, cfg.AWSRegion)
	if err != nil {
		log.Fatal("Failed to create Bedrock client:", err)
	}
	embedder := ai.NewEmbeddingClient(runtime, cfg.EmbeddingsModel, cfg.AIRequestsPerMinute, metrics)
	llm := ai.NewLLMClient(runtime, cfg.MainLLMModel, cfg.FallbackLLMModel, cfg.OutputTokens, cfg.AIRequestsPerMinute, metrics)

	querySvc := services.NewQueryService(embedder, manager, llm, metrics)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RequestSizeLimit(cfg.MaxBodySize))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoints
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Setup routes
	routes.SetupQueryRoutes(router, querySvc)
	routes.SetupIngestRoutes(router, queueClient, statusStore)
	routes.SetupProvisionRoutes(router, provisioner)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
