package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"multitenant-rag-platform/internal/database"
	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/internal/telemetry"
	"multitenant-rag-platform/models"
)

type agentStore interface {
	SearchChunks(ctx context.Context, tenantID string, embedding []float32, agentID, documentID string) ([]models.RetrievedChunk, error)
	GetAgent(ctx context.Context, tenantID, agentID string) (*models.Agent, error)
}

type answerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// QueryService answers questions against a tenant's stored documents
type QueryService struct {
	embedder textEmbedder
	stores   agentStore
	llm      answerGenerator
	metrics  *telemetry.Metrics
}

// NewQueryService creates a new query service
func NewQueryService(embedder textEmbedder, stores agentStore, llm answerGenerator, metrics *telemetry.Metrics) *QueryService {
	return &QueryService{
		embedder: embedder,
		stores:   stores,
		llm:      llm,
		metrics:  metrics,
	}
}

// Answer runs the retrieval pipeline: embed the question, fetch the nearest
// chunks, render the agent's prompt template and ask the LLM.
func (qs *QueryService) Answer(ctx context.Context, req models.QueryRequest) (string, error) {
	if err := database.ValidateTenantID(req.TenantID); err != nil {
		return "", err
	}
	if err := database.ValidateAgentID(req.AgentID); err != nil {
		return "", err
	}
	if req.DocumentID != "" {
		if _, err := uuid.Parse(req.DocumentID); err != nil {
			return "", fmt.Errorf("%w: invalid document_id %q", models.ErrBadRequest, req.DocumentID)
		}
	}
	if strings.TrimSpace(req.Query) == "" {
		return "", fmt.Errorf("%w: query must not be empty", models.ErrBadRequest)
	}

	start := time.Now()

	embedding, err := qs.embedder.Embed(ctx, req.Query)
	if err != nil {
		return "", err
	}

	chunks, err := qs.stores.SearchChunks(ctx, req.TenantID, embedding, req.AgentID, req.DocumentID)
	if err != nil {
		return "", err
	}

	agent, err := qs.stores.GetAgent(ctx, req.TenantID, req.AgentID)
	if err != nil {
		return "", err
	}

	prompt, err := RenderPromptTemplate(agent.PromptTemplate, buildContext(chunks), req.Query)
	if err != nil {
		return "", err
	}

	answer, err := qs.llm.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	if qs.metrics != nil {
		qs.metrics.RecordQuery(req.TenantID, time.Since(start).Seconds())
	}

	logger.Info("Query answered",
		"tenant_id", req.TenantID,
		"agent_id", req.AgentID,
		"chunks", len(chunks),
		"duration", time.Since(start).String())

	return answer, nil
}

// buildContext joins retrieved chunk texts with blank lines, in retrieval
// order.
func buildContext(chunks []models.RetrievedChunk) string {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.ChunkText)
	}
	return strings.Join(texts, "\n\n")
}

// RenderPromptTemplate fills {context} and {query} into an agent template.
// Every brace is first escaped by doubling, then only the two known
// placeholders are restored, so arbitrary braces in the template come out as
// literals instead of breaking the formatter.
func RenderPromptTemplate(template, contextText, query string) (string, error) {
	escaped := strings.ReplaceAll(template, "{", "{{")
	escaped = strings.ReplaceAll(escaped, "}", "}}")
	escaped = strings.ReplaceAll(escaped, "{{context}}", "{context}")
	escaped = strings.ReplaceAll(escaped, "{{query}}", "{query}")

	return formatNamed(escaped, map[string]string{
		"context": contextText,
		"query":   query,
	})
}

// formatNamed is a minimal named formatter: doubled braces are literal braces,
// {name} is replaced from values, and any other live placeholder is a template
// error. Replacement values are inserted verbatim.
func formatNamed(format string, values map[string]string) (string, error) {
	var b strings.Builder
	runes := []rune(format)

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '{':
			if i+1 < len(runes) && runes[i+1] == '{' {
				b.WriteRune('{')
				i++
				continue
			}
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == '}' {
					end = j
					break
				}
			}
			if end == -1 {
				return "", fmt.Errorf("%w: unterminated placeholder", models.ErrTemplate)
			}
			name := string(runes[i+1 : end])
			value, ok := values[name]
			if !ok {
				return "", fmt.Errorf("%w: unknown placeholder {%s}", models.ErrTemplate, name)
			}
			b.WriteString(value)
			i = end
		case '}':
			if i+1 < len(runes) && runes[i+1] == '}' {
				b.WriteRune('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: unmatched '}' in template", models.ErrTemplate)
		default:
			b.WriteRune(runes[i])
		}
	}

	return b.String(), nil
}
