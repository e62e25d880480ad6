package main

import (
	"context"
	"log"

	"multitenant-rag-platform/internal/ai"
	"multitenant-rag-platform/internal/config"
	"multitenant-rag-platform/internal/database"
	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/internal/queue"
	"multitenant-rag-platform/internal/storage"
	"multitenant-rag-platform/internal/telemetry"
	"multitenant-rag-platform/services"
	"multitenant-rag-platform/utils"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("rag-worker")
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

	startupCtx, cancelStartup := utils.WithLongTimeout(context.Background())
	defer cancelStartup()

	// Storage layers
	manager := database.NewTenantStoreManager(pool)
	provisioner := database.NewProvisioner(manager, cfg.AgentName, cfg.AgentDescription)
	statusStore := database.NewStatusStore(pool)

	if err := statusStore.EnsureTables(startupCtx); err != nil {
		log.Fatal("Failed to prepare status tables:", err)
	}

	// AWS clients
	objects, err := storage.NewObjectStore(startupCtx, cfg.AWSRegion, cfg.ScratchDir)
	if err != nil {
		log.Fatal("Failed to create object store:", err)
	}

	extractor, err := services.NewTextExtractor(startupCtx, cfg.AWSRegion, cfg.OCRMaxAttempts)
	if err != nil {
		log.Fatal("Failed to create text extractor:", err)
	}

	runtime, err := ai.NewRuntimeClient(startupCtx, cfg.AWSRegion)
	if err != nil {
		log.Fatal("Failed to create Bedrock client:", err)
	}
	embedder := ai.NewEmbeddingClient(runtime, cfg.EmbeddingsModel, cfg.AIRequestsPerMinute, metrics)

	pipeline := services.NewIngestionPipeline(
		objects,
		extractor,
		services.NewAdaptiveChunker(),
		embedder,
		provisioner,
		manager,
		statusStore,
		metrics,
	)

	// Redis options for Asynq
	redisOpt, err := queue.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 20, // Process 20 tasks concurrently
			Queues: map[string]int{
				"critical": 6, // 60% of workers
				"default":  3, // 30% of workers
				"low":      1, // 10% of workers
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(pipeline)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.ProcessIngestDocument)

	logger.Info("🚀 Starting Asynq worker...")
	logger.Info("   Concurrency: 20")
	logger.Info("   Queues: critical(6), default(3), low(1)")

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
