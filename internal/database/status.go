package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"multitenant-rag-platform/models"
)

// StatusStore records document ingestion lifecycle in the public schema.
// Writes are best-effort: the pipeline logs and continues when a status
// update fails, so a monitoring outage never fails an ingestion.
type StatusStore struct {
	pool *pgxpool.Pool
}

func NewStatusStore(pool *pgxpool.Pool) *StatusStore {
	return &StatusStore{pool: pool}
}

// EnsureTables creates the status and history tables when absent. Called
// once at process start.
func (s *StatusStore) EnsureTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ingestion_status (
			document_id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			agent_id UUID NOT NULL,
			document_name TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			start_at TIMESTAMPTZ,
			end_at TIMESTAMPTZ,
			duration_seconds DOUBLE PRECISION,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS ingestion_status_history (
			id SERIAL PRIMARY KEY,
			document_id UUID NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			transition_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ingestion_status_tenant_idx ON ingestion_status (tenant_id)`,
		`CREATE INDEX IF NOT EXISTS ingestion_status_history_document_idx ON ingestion_status_history (document_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure status tables: %v", models.ErrStorage, err)
		}
	}
	return nil
}

// Mark upserts the current status and appends a history row. RECEIVED sets
// start_at; terminal states set end_at and compute duration_seconds from
// the recorded start_at.
func (s *StatusStore) Mark(ctx context.Context, documentID, tenantID, agentID, documentName, status, detail string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin status transaction: %v", models.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	upsert := `INSERT INTO ingestion_status
			(document_id, tenant_id, agent_id, document_name, status, detail, start_at, end_at, duration_seconds, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''),
			CASE WHEN $5 = $7 THEN now() END,
			CASE WHEN $5 IN ($8, $9) THEN now() END,
			NULL, now())
		ON CONFLICT (document_id) DO UPDATE SET
			status = EXCLUDED.status,
			detail = EXCLUDED.detail,
			start_at = COALESCE(ingestion_status.start_at, EXCLUDED.start_at),
			end_at = CASE WHEN EXCLUDED.status IN ($8, $9) THEN now() ELSE ingestion_status.end_at END,
			duration_seconds = CASE
				WHEN EXCLUDED.status IN ($8, $9) AND ingestion_status.start_at IS NOT NULL
				THEN EXTRACT(EPOCH FROM (now() - ingestion_status.start_at))
				ELSE ingestion_status.duration_seconds
			END,
			updated_at = now()`

	if _, err := tx.Exec(ctx, upsert,
		documentID, tenantID, agentID, documentName, status, detail,
		models.StatusReceived, models.StatusCompleted, models.StatusFailed); err != nil {
		return fmt.Errorf("%w: upsert status: %v", models.ErrStorage, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ingestion_status_history (document_id, status, detail) VALUES ($1, $2, NULLIF($3, ''))`,
		documentID, status, detail); err != nil {
		return fmt.Errorf("%w: append status history: %v", models.ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit status transaction: %v", models.ErrStorage, err)
	}
	return nil
}

// Get returns the current status row and its transition history, or a nil
// status when the document is unknown.
func (s *StatusStore) Get(ctx context.Context, documentID string) (*models.IngestionStatus, []models.StatusTransition, error) {
	var st models.IngestionStatus
	var detail *string
	err := s.pool.QueryRow(ctx,
		`SELECT document_id::text, tenant_id, agent_id::text, document_name, status, detail,
			start_at, end_at, duration_seconds, updated_at
		 FROM ingestion_status WHERE document_id = $1`, documentID).Scan(
		&st.DocumentID, &st.TenantID, &st.AgentID, &st.DocumentName, &st.Status, &detail,
		&st.StartAt, &st.EndAt, &st.DurationSeconds, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load status: %v", models.ErrStorage, err)
	}
	if detail != nil {
		st.Detail = *detail
	}

	rows, err := s.pool.Query(ctx,
		`SELECT status, COALESCE(detail, ''), transition_at
		 FROM ingestion_status_history WHERE document_id = $1 ORDER BY id`, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load status history: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var history []models.StatusTransition
	for rows.Next() {
		var tr models.StatusTransition
		if err := rows.Scan(&tr.Status, &tr.Detail, &tr.TransitionAt); err != nil {
			return nil, nil, fmt.Errorf("%w: scan status history: %v", models.ErrStorage, err)
		}
		history = append(history, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: iterate status history: %v", models.ErrStorage, err)
	}

	return &st, history, nil
}
