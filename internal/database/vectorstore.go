package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/models"
)

// DefaultTopK is the fixed retrieval depth. Not configurable.
const DefaultTopK = 50

// TenantStore reads and writes one tenant's schema. Obtain instances through
// TenantStoreManager.GetTenantStore so the schema identifier has passed
// validation and sanitized quoting.
type TenantStore struct {
	pool     *pgxpool.Pool
	tenantID string
	schema   string // sanitized, safe to interpolate into SQL
}

// TenantID returns the raw tenant id this store is bound to.
func (s *TenantStore) TenantID() string {
	return s.tenantID
}

// InsertChunks writes all chunks of one document inside a single
// transaction; a mid-batch failure rolls back every row.
func (s *TenantStore) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, chunk := range chunks {
		if len(chunk.Embedding) != models.EmbeddingDimension {
			return fmt.Errorf("%w: expected %d dimensions, got %d",
				models.ErrEmbeddingShape, models.EmbeddingDimension, len(chunk.Embedding))
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	insertSQL := fmt.Sprintf(`INSERT INTO %s.documents (agent_id, document_id, document_name, chunk_text, embedding)
		VALUES ($1, $2, $3, $4, $5)`, s.schema)

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(insertSQL,
			chunk.AgentID, chunk.DocumentID, chunk.DocumentName, chunk.ChunkText,
			pgvector.NewVector(chunk.Embedding))
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("%w: insert chunk: %v", models.ErrStorage, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%w: close batch: %v", models.ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", models.ErrStorage, err)
	}

	logger.Debug("Chunks inserted", "tenant_id", s.tenantID, "count", len(chunks))
	return nil
}

// SearchChunks returns up to DefaultTopK chunks nearest to the embedding
// under cosine distance, filtered by agent and optionally by document.
// Distance ties break by insertion order.
func (s *TenantStore) SearchChunks(ctx context.Context, embedding []float32, agentID, documentID string) ([]models.RetrievedChunk, error) {
	if len(embedding) != models.EmbeddingDimension {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, expected %d",
			models.ErrEmbeddingShape, len(embedding), models.EmbeddingDimension)
	}

	vec := pgvector.NewVector(embedding)

	var rows pgx.Rows
	var err error
	if documentID != "" {
		querySQL := fmt.Sprintf(`SELECT document_id::text, document_name, chunk_text, embedding <=> $1 AS distance
			FROM %s.documents
			WHERE agent_id = $2 AND document_id = $3
			ORDER BY embedding <=> $1, id
			LIMIT %d`, s.schema, DefaultTopK)
		rows, err = s.pool.Query(ctx, querySQL, vec, agentID, documentID)
	} else {
		querySQL := fmt.Sprintf(`SELECT document_id::text, document_name, chunk_text, embedding <=> $1 AS distance
			FROM %s.documents
			WHERE agent_id = $2
			ORDER BY embedding <=> $1, id
			LIMIT %d`, s.schema, DefaultTopK)
		rows, err = s.pool.Query(ctx, querySQL, vec, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: search chunks: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var hits []models.RetrievedChunk
	for rows.Next() {
		var hit models.RetrievedChunk
		if err := rows.Scan(&hit.DocumentID, &hit.DocumentName, &hit.ChunkText, &hit.Distance); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", models.ErrStorage, err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chunks: %v", models.ErrStorage, err)
	}

	return hits, nil
}

// GetAgent loads one agent row; absence is ErrAgentNotFound.
func (s *TenantStore) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	querySQL := fmt.Sprintf(`SELECT agent_id::text, agent_name, COALESCE(description, ''), prompt_template, created_at
		FROM %s.agents WHERE agent_id = $1`, s.schema)

	var agent models.Agent
	err := s.pool.QueryRow(ctx, querySQL, agentID).Scan(
		&agent.AgentID, &agent.AgentName, &agent.Description, &agent.PromptTemplate, &agent.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: agent %s in tenant %s", models.ErrAgentNotFound, agentID, s.tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load agent: %v", models.ErrStorage, err)
	}

	return &agent, nil
}

// CountChunks reports how many chunks a document contributed.
func (s *TenantStore) CountChunks(ctx context.Context, documentID string) (int64, error) {
	countSQL := fmt.Sprintf(`SELECT count(*) FROM %s.documents WHERE document_id = $1`, s.schema)

	var n int64
	if err := s.pool.QueryRow(ctx, countSQL, documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count chunks: %v", models.ErrStorage, err)
	}
	return n, nil
}
