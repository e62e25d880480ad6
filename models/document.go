package models

import "time"

// EmbeddingDimension is the fixed width of stored vectors; the documents
// table declares vector(1536) and both pipelines enforce it.
const EmbeddingDimension = 1536

// Chunk is one stored fragment of an ingested document, the unit of
// embedding and retrieval.
type Chunk struct {
	ID           int64     `json:"id"`
	AgentID      string    `json:"agent_id"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	ChunkText    string    `json:"chunk_text"`
	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// RetrievedChunk is a nearest-neighbour hit with its cosine distance.
type RetrievedChunk struct {
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	ChunkText    string  `json:"chunk_text"`
	Distance     float64 `json:"distance"`
}

// Agent holds a tenant's per-agent configuration, most importantly the
// prompt template with its {context} and {query} placeholders.
type Agent struct {
	AgentID        string    `json:"agent_id"`
	AgentName      string    `json:"agent_name"`
	Description    string    `json:"description"`
	PromptTemplate string    `json:"prompt_template"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ingestion lifecycle states, mirrored into the status and history tables.
const (
	StatusReceived       = "RECEIVED"
	StatusOCRInProgress  = "OCR_IN_PROGRESS"
	StatusTextExtraction = "TEXT_EXTRACTION_IN_PROGRESS"
	StatusEmbedding      = "EMBEDDING_IN_PROGRESS"
	StatusCompleted      = "PROCESS_COMPLETED"
	StatusFailed         = "PROCESS_FAILED"
)

// IngestionStatus is the current lifecycle row for one document.
type IngestionStatus struct {
	DocumentID      string     `json:"document_id"`
	TenantID        string     `json:"tenant_id"`
	AgentID         string     `json:"agent_id"`
	DocumentName    string     `json:"document_name"`
	Status          string     `json:"status"`
	Detail          string     `json:"detail,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// StatusTransition is one history entry for a document.
type StatusTransition struct {
	Status       string    `json:"status"`
	Detail       string    `json:"detail,omitempty"`
	TransitionAt time.Time `json:"transition_at"`
}

// IsTerminalStatus reports whether a state ends the document's lifecycle.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}
