package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"multitenant-rag-platform/internal/config"
	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/models"
	"multitenant-rag-platform/services"
)

const (
	TaskIngestDocument = "document:ingest"
)

// RedisConnOpt builds the asynq Redis connection from config, accepting both
// a redis:// URI and a plain host:port address.
func RedisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		return asynq.ParseRedisURI(cfg.RedisURL)
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

type IngestPayload struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Task creators
func NewIngestTask(bucket, key string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		Bucket: bucket,
		Key:    key,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// Task handlers
type TaskProcessor struct {
	pipeline *services.IngestionPipeline
}

func NewTaskProcessor(pipeline *services.IngestionPipeline) *TaskProcessor {
	return &TaskProcessor{pipeline: pipeline}
}

// ProcessIngestDocument runs the ingestion pipeline for one stored object.
func (p *TaskProcessor) ProcessIngestDocument(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Processing document", "bucket", payload.Bucket, "key", payload.Key)

	if err := p.pipeline.Ingest(ctx, payload.Bucket, payload.Key); err != nil {
		if isPermanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	return nil
}

// isPermanent reports whether retrying cannot change the outcome.
func isPermanent(err error) bool {
	return errors.Is(err, models.ErrBadRequest) || errors.Is(err, models.ErrEmbeddingShape)
}
