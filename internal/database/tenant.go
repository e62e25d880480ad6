package database

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"multitenant-rag-platform/models"
)

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateTenantID enforces the identifier allow-list. Tenant ids flow into
// SQL identifier position, so this check is the injection defense and must
// run before any SQL composition.
func ValidateTenantID(tenantID string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("%w: invalid tenant_id %q", models.ErrBadRequest, tenantID)
	}
	return nil
}

// ValidateAgentID requires UUID form.
func ValidateAgentID(agentID string) error {
	if _, err := uuid.Parse(agentID); err != nil {
		return fmt.Errorf("%w: invalid agent_id %q", models.ErrBadRequest, agentID)
	}
	return nil
}

// TenantStoreManager hands out per-tenant stores backed by the shared pool.
// Stores are cached per tenant; creation validates the tenant id once so the
// schema identifier inside the store is always safe to interpolate.
type TenantStoreManager struct {
	pool   *pgxpool.Pool
	stores map[string]*TenantStore
	mu     sync.RWMutex
}

func NewTenantStoreManager(pool *pgxpool.Pool) *TenantStoreManager {
	return &TenantStoreManager{
		pool:   pool,
		stores: make(map[string]*TenantStore),
	}
}

// GetTenantStore returns the isolated store for a tenant schema
func (m *TenantStoreManager) GetTenantStore(tenantID string) (*TenantStore, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	if store, exists := m.stores[tenantID]; exists {
		m.mu.RUnlock()
		return store, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if store, exists := m.stores[tenantID]; exists {
		return store, nil
	}

	store := &TenantStore{
		pool:     m.pool,
		tenantID: tenantID,
		schema:   pgx.Identifier{tenantID}.Sanitize(),
	}
	m.stores[tenantID] = store
	return store, nil
}

// Pool exposes the shared connection pool for cross-tenant stores.
func (m *TenantStoreManager) Pool() *pgxpool.Pool {
	return m.pool
}

// InsertChunks routes a chunk batch to the tenant's store.
func (m *TenantStoreManager) InsertChunks(ctx context.Context, tenantID string, chunks []models.Chunk) error {
	store, err := m.GetTenantStore(tenantID)
	if err != nil {
		return err
	}
	return store.InsertChunks(ctx, chunks)
}

// SearchChunks routes a similarity search to the tenant's store.
func (m *TenantStoreManager) SearchChunks(ctx context.Context, tenantID string, embedding []float32, agentID, documentID string) ([]models.RetrievedChunk, error) {
	store, err := m.GetTenantStore(tenantID)
	if err != nil {
		return nil, err
	}
	return store.SearchChunks(ctx, embedding, agentID, documentID)
}

// GetAgent routes an agent lookup to the tenant's store.
func (m *TenantStoreManager) GetAgent(ctx context.Context, tenantID, agentID string) (*models.Agent, error) {
	store, err := m.GetTenantStore(tenantID)
	if err != nil {
		return nil, err
	}
	return store.GetAgent(ctx, agentID)
}
