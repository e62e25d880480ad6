package services

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"multitenant-rag-platform/internal/database"
	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/internal/telemetry"
	"multitenant-rag-platform/models"
)

// ingestSuccessMessage is stored as the final status detail of a processed
// document.
const ingestSuccessMessage = "PDF procesado correctamente"

type objectDownloader interface {
	Download(ctx context.Context, bucket, key string) (string, error)
}

type documentExtractor interface {
	CountPages(path string) int
	Extract(ctx context.Context, bucket, key, localPath string, pageCount int) (string, error)
}

type textChunker interface {
	ChunkText(text string, pageCount int) []string
}

type textEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type tenantProvisioner interface {
	EnsureTenant(ctx context.Context, tenantID, agentID string) error
}

type chunkWriter interface {
	InsertChunks(ctx context.Context, tenantID string, chunks []models.Chunk) error
}

type statusRecorder interface {
	Mark(ctx context.Context, documentID, tenantID, agentID, documentName, status, detail string) error
}

// ObjectRef identifies an uploaded document inside the bucket layout
// <tenant_id>/<agent_id>/.../<file_name>.
type ObjectRef struct {
	TenantID     string
	AgentID      string
	DocumentName string
}

// ParseObjectKey decodes a storage object key into its tenant, agent and file
// name parts. Keys arrive URL-encoded in storage event notifications.
func ParseObjectKey(key string) (*ObjectRef, error) {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed object key %q: %v", models.ErrBadRequest, key, err)
	}

	parts := strings.Split(strings.TrimLeft(decoded, "/"), "/")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: object key %q must look like <tenant>/<agent>/<file>", models.ErrBadRequest, decoded)
	}

	tenantID := parts[0]
	agentID := parts[1]
	documentName := parts[len(parts)-1]

	if err := database.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := database.ValidateAgentID(agentID); err != nil {
		return nil, err
	}
	if documentName == "" {
		return nil, fmt.Errorf("%w: object key %q has an empty file name", models.ErrBadRequest, decoded)
	}

	return &ObjectRef{
		TenantID:     tenantID,
		AgentID:      agentID,
		DocumentName: documentName,
	}, nil
}

// IngestionPipeline turns an uploaded PDF into embedded chunks inside the
// tenant's schema
type IngestionPipeline struct {
	objects     objectDownloader
	extractor   documentExtractor
	chunker     textChunker
	embedder    textEmbedder
	provisioner tenantProvisioner
	stores      chunkWriter
	status      statusRecorder
	metrics     *telemetry.Metrics
}

// NewIngestionPipeline creates a new ingestion pipeline
func NewIngestionPipeline(
	objects objectDownloader,
	extractor documentExtractor,
	chunker textChunker,
	embedder textEmbedder,
	provisioner tenantProvisioner,
	stores chunkWriter,
	status statusRecorder,
	metrics *telemetry.Metrics,
) *IngestionPipeline {
	return &IngestionPipeline{
		objects:     objects,
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		provisioner: provisioner,
		stores:      stores,
		status:      status,
		metrics:     metrics,
	}
}

// Ingest processes one uploaded PDF end to end: download, extract, chunk,
// embed and store. All chunks of a document commit in one batch; any failure
// leaves no rows behind. Reprocessing the same key mints a new document id.
func (p *IngestionPipeline) Ingest(ctx context.Context, bucket, key string) error {
	ref, err := ParseObjectKey(key)
	if err != nil {
		return err
	}

	documentID := uuid.NewString()
	start := time.Now()

	logger.Info("Ingestion started",
		"tenant_id", ref.TenantID,
		"agent_id", ref.AgentID,
		"document", ref.DocumentName,
		"document_id", documentID)

	p.markStatus(ctx, documentID, ref, models.StatusReceived, "")

	stored, err := p.process(ctx, bucket, key, documentID, ref)
	if err != nil {
		p.markStatus(ctx, documentID, ref, models.StatusFailed, models.ErrorCode(err))
		if p.metrics != nil {
			p.metrics.RecordIngestion(ref.TenantID, "failed", 0, time.Since(start).Seconds())
		}
		logger.Error("Ingestion failed",
			"tenant_id", ref.TenantID,
			"document_id", documentID,
			"error", err)
		return err
	}

	p.markStatus(ctx, documentID, ref, models.StatusCompleted, ingestSuccessMessage)
	if p.metrics != nil {
		p.metrics.RecordIngestion(ref.TenantID, "completed", int64(stored), time.Since(start).Seconds())
	}
	logger.Info("Ingestion completed",
		"tenant_id", ref.TenantID,
		"document_id", documentID,
		"chunks", stored,
		"duration", time.Since(start).String())

	return nil
}

func (p *IngestionPipeline) process(ctx context.Context, bucket, key, documentID string, ref *ObjectRef) (int, error) {
	localPath, err := p.objects.Download(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	defer os.Remove(localPath)

	pageCount := p.extractor.CountPages(localPath)
	if pageCount > LargePageThreshold {
		p.markStatus(ctx, documentID, ref, models.StatusOCRInProgress, "")
	} else {
		p.markStatus(ctx, documentID, ref, models.StatusTextExtraction, "")
	}

	text, err := p.extractor.Extract(ctx, bucket, key, localPath, pageCount)
	if err != nil {
		return 0, err
	}

	chunks := p.chunker.ChunkText(text, pageCount)

	// Schema and default agent must exist even for documents with no usable
	// text, so an empty PDF still completes successfully with zero rows.
	if err := p.provisioner.EnsureTenant(ctx, ref.TenantID, ref.AgentID); err != nil {
		return 0, err
	}

	if len(chunks) == 0 {
		logger.Warn("Document produced no chunks",
			"tenant_id", ref.TenantID,
			"document_id", documentID,
			"document", ref.DocumentName)
		return 0, nil
	}

	p.markStatus(ctx, documentID, ref, models.StatusEmbedding, "")

	rows := make([]models.Chunk, 0, len(chunks))
	for _, chunkText := range chunks {
		embedding, err := p.embedder.Embed(ctx, chunkText)
		if err != nil {
			return 0, err
		}
		rows = append(rows, models.Chunk{
			AgentID:      ref.AgentID,
			DocumentID:   documentID,
			DocumentName: ref.DocumentName,
			ChunkText:    chunkText,
			Embedding:    embedding,
		})
	}

	if err := p.stores.InsertChunks(ctx, ref.TenantID, rows); err != nil {
		return 0, err
	}

	return len(rows), nil
}

// markStatus records a lifecycle transition. Status writes are best effort
// and never fail the pipeline.
func (p *IngestionPipeline) markStatus(ctx context.Context, documentID string, ref *ObjectRef, status, detail string) {
	if p.status == nil {
		return
	}
	if err := p.status.Mark(ctx, documentID, ref.TenantID, ref.AgentID, ref.DocumentName, status, detail); err != nil {
		logger.Warn("Failed to record ingestion status",
			"document_id", documentID,
			"status", status,
			"error", err)
	}
}
