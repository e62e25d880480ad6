package models

import "errors"

// Error codes surfaced to callers and recorded in ingestion status rows.
const (
	CodeBadRequest     = "BAD_REQUEST"
	CodeAgentNotFound  = "AGENT_NOT_FOUND"
	CodeEmbeddingShape = "EMBEDDING_SHAPE_ERROR"
	CodeOCRFailed      = "OCR_FAILED"
	CodeTemplate       = "TEMPLATE_ERROR"
	CodeLLMUnavailable = "LLM_UNAVAILABLE"
	CodeStorage        = "STORAGE_ERROR"
)

// Sentinel errors for the platform's failure modes. Wrap these with
// fmt.Errorf("...: %w", Err...) so call sites keep context and ErrorCode
// still classifies the chain.
var (
	ErrBadRequest     = errors.New("bad request")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrEmbeddingShape = errors.New("unrecognized embedding response shape")
	ErrOCRFailed      = errors.New("ocr job failed")
	ErrTemplate       = errors.New("unsupported template placeholder")
	ErrLLMUnavailable = errors.New("llm unavailable")
	ErrStorage        = errors.New("storage failure")
)

// ErrorCode classifies an error chain into its taxonomy code. Anything
// unrecognized is treated as a storage failure.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrAgentNotFound):
		return CodeAgentNotFound
	case errors.Is(err, ErrEmbeddingShape):
		return CodeEmbeddingShape
	case errors.Is(err, ErrOCRFailed):
		return CodeOCRFailed
	case errors.Is(err, ErrTemplate):
		return CodeTemplate
	case errors.Is(err, ErrLLMUnavailable):
		return CodeLLMUnavailable
	default:
		return CodeStorage
	}
}
