package models

// StorageEvent is the object-created notification delivered by the object
// store. Only bucket name and object key are consumed; the key arrives
// URL-encoded.
type StorageEvent struct {
	Records []StorageEventRecord `json:"Records"`
}

type StorageEventRecord struct {
	EventName string   `json:"eventName,omitempty"`
	S3        S3Entity `json:"s3"`
}

type S3Entity struct {
	Bucket S3Bucket `json:"bucket"`
	Object S3Object `json:"object"`
}

type S3Bucket struct {
	Name string `json:"name"`
}

type S3Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size,omitempty"`
}

// QueryRequest is the query entry input. document_id narrows retrieval to a
// single ingested document.
type QueryRequest struct {
	TenantID   string `json:"tenant_id" binding:"required"`
	AgentID    string `json:"agent_id" binding:"required"`
	Query      string `json:"query" binding:"required"`
	DocumentID string `json:"document_id,omitempty"`
}
