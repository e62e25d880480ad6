package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/models"
)

// DefaultPromptTemplate seeds new agents. Tenants replace it out of band;
// the core never updates agent rows.
const DefaultPromptTemplate = `Eres un asistente que responde usando exclusivamente el contexto proporcionado.

Contexto:
{context}

Pregunta: {query}

Responde de forma clara y concisa. Si el contexto no contiene la respuesta, indícalo.`

// Provisioner creates tenant schemas on demand. Every DDL statement is
// IF NOT EXISTS and the whole operation runs in one transaction, so two
// concurrent first-ingestions of a tenant are both safe: one wins each
// statement and the other's is a no-op.
type Provisioner struct {
	manager          *TenantStoreManager
	agentName        string
	agentDescription string
}

func NewProvisioner(manager *TenantStoreManager, agentName, agentDescription string) *Provisioner {
	return &Provisioner{
		manager:          manager,
		agentName:        agentName,
		agentDescription: agentDescription,
	}
}

// EnsureTenant idempotently creates the schema for tenantID with its agents
// and documents tables, the cosine ivfflat index, the B-tree lookup indexes,
// and a default agent row for agentID.
func (p *Provisioner) EnsureTenant(ctx context.Context, tenantID, agentID string) error {
	if err := ValidateTenantID(tenantID); err != nil {
		return err
	}
	if err := ValidateAgentID(agentID); err != nil {
		return err
	}

	schema := pgx.Identifier{tenantID}.Sanitize()

	tx, err := p.manager.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.agents (
			id SERIAL PRIMARY KEY,
			agent_id UUID NOT NULL UNIQUE,
			agent_name TEXT NOT NULL,
			description TEXT,
			prompt_template TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now()
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.documents (
			id SERIAL PRIMARY KEY,
			agent_id UUID NOT NULL,
			document_id UUID NOT NULL,
			document_name TEXT NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ DEFAULT now()
		)`, schema, models.EmbeddingDimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS documents_embedding_idx
			ON %s.documents USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS agents_agent_id_idx ON %s.agents (agent_id)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS documents_agent_id_idx ON %s.documents (agent_id)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS documents_document_id_idx ON %s.documents (document_id)`, schema),
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: provision tenant %s: %v", models.ErrStorage, tenantID, err)
		}
	}

	insertAgent := fmt.Sprintf(`INSERT INTO %s.agents (agent_id, agent_name, description, prompt_template)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_id) DO NOTHING`, schema)
	if _, err := tx.Exec(ctx, insertAgent, agentID, p.agentName, p.agentDescription, DefaultPromptTemplate); err != nil {
		return fmt.Errorf("%w: seed default agent: %v", models.ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", models.ErrStorage, err)
	}

	logger.Debug("Tenant provisioned", "tenant_id", tenantID, "agent_id", agentID)
	return nil
}

// VerifyTenant reports whether the tenant schema and both core tables exist.
func (p *Provisioner) VerifyTenant(ctx context.Context, tenantID string) (bool, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return false, err
	}

	var n int
	err := p.manager.Pool().QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables
		 WHERE table_schema = $1 AND table_name IN ('agents', 'documents')`,
		tenantID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: verify tenant: %v", models.ErrStorage, err)
	}

	return n == 2, nil
}
