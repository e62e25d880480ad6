package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"multitenant-rag-platform/internal/telemetry"
	"multitenant-rag-platform/models"
)

// MaxEmbedChars bounds the characters submitted to the embedding model;
// longer inputs are truncated, not rejected.
const MaxEmbedChars = 20000

type embedRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

// EmbeddingClient produces unit-normalized vectors via a Bedrock embedding
// model. Documents and queries share one embedding space, so both use
// input_type "search_document".
type EmbeddingClient struct {
	invoker     modelInvoker
	modelID     string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

func NewEmbeddingClient(invoker modelInvoker, modelID string, rpm int, metrics *telemetry.Metrics) *EmbeddingClient {
	return &EmbeddingClient{
		invoker:     invoker,
		modelID:     modelID,
		breaker:     newBreaker("BedrockEmbeddings", metrics),
		rateLimiter: newLimiter(rpm),
	}
}

// Embed returns the unit-norm vector for text, truncated to MaxEmbedChars.
func (ec *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("embedding-client")
	ctx, span := tracer.Start(ctx, "embeddings.invoke")
	defer span.End()

	truncated := truncateRunes(text, MaxEmbedChars)
	span.SetAttributes(
		attribute.String("embeddings.model", ec.modelID),
		attribute.Int("embeddings.input_chars", utf8.RuneCountInString(truncated)),
	)

	if err := ec.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(embedRequest{
		Texts:     []string{truncated},
		InputType: "search_document",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	result, err := ec.breaker.Execute(func() (interface{}, error) {
		out, err := ec.invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(ec.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        payload,
		})
		if err != nil {
			return nil, err
		}
		return out.Body, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("embeddings.error", true))
		return nil, fmt.Errorf("invoke embedding model: %w", err)
	}

	vec, err := decodeEmbedding(result.([]byte))
	if err != nil {
		span.SetAttributes(attribute.Bool("embeddings.shape_error", true))
		return nil, err
	}
	if len(vec) != models.EmbeddingDimension {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d",
			models.ErrEmbeddingShape, models.EmbeddingDimension, len(vec))
	}

	return Normalize(vec), nil
}

// decodeEmbedding probes the response shapes the embedding models emit, in
// fixed order with no fall-through: a single-key object must hold [[floats]]
// under that key, even when the key is named "embeddings"; only multi-key
// objects are tried against the cohere-style {"embeddings":{"float":[[..]]}}.
func decodeEmbedding(body []byte) ([]float32, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingShape, err)
	}

	if len(top) == 1 {
		for key, raw := range top {
			var rows [][]float32
			if err := json.Unmarshal(raw, &rows); err != nil || len(rows) == 0 {
				return nil, fmt.Errorf("%w: key %q does not hold a vector list", models.ErrEmbeddingShape, key)
			}
			return rows[0], nil
		}
	}

	if raw, ok := top["embeddings"]; ok {
		var nested struct {
			Float [][]float32 `json:"float"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && len(nested.Float) > 0 {
			return nested.Float[0], nil
		}
	}

	return nil, fmt.Errorf("%w: no vector found in response", models.ErrEmbeddingShape)
}

// Normalize scales v to unit L2 norm. The zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
