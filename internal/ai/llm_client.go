package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/internal/telemetry"
	"multitenant-rag-platform/models"
)

const (
	llmAttempts   = 2
	llmRetryDelay = 500 * time.Millisecond
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// LLMClient generates answers through a primary/fallback Bedrock model
// pair. Each model gets up to two attempts with a short pause after every
// failure; both exhausting yields ErrLLMUnavailable.
type LLMClient struct {
	invoker       modelInvoker
	primaryModel  string
	fallbackModel string
	maxTokens     int
	breaker       *gobreaker.CircuitBreaker
	rateLimiter   *rate.Limiter
	metrics       *telemetry.Metrics
}

func NewLLMClient(invoker modelInvoker, primaryModel, fallbackModel string, maxTokens, rpm int, metrics *telemetry.Metrics) *LLMClient {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &LLMClient{
		invoker:       invoker,
		primaryModel:  primaryModel,
		fallbackModel: fallbackModel,
		maxTokens:     maxTokens,
		breaker:       newBreaker("BedrockLLM", metrics),
		rateLimiter:   newLimiter(rpm),
		metrics:       metrics,
	}
}

// Generate answers the prompt, stripping reasoning blocks from the output.
func (lc *LLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer("llm-client")
	ctx, span := tracer.Start(ctx, "llm.generate")
	defer span.End()

	span.SetAttributes(
		attribute.String("llm.primary_model", lc.primaryModel),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	text, err := lc.tryModel(ctx, lc.primaryModel, prompt)
	if err == nil {
		return StripReasoning(text), nil
	}

	logger.Warn("Primary LLM exhausted, switching to fallback",
		"primary", lc.primaryModel, "fallback", lc.fallbackModel, "error", err)
	span.SetAttributes(attribute.Bool("llm.fallback", true))
	if lc.metrics != nil {
		lc.metrics.RecordLLMFallback(lc.fallbackModel)
	}

	text, err = lc.tryModel(ctx, lc.fallbackModel, prompt)
	if err == nil {
		return StripReasoning(text), nil
	}

	span.SetAttributes(attribute.Bool("llm.error", true))
	return "", fmt.Errorf("%w: primary and fallback exhausted: %v", models.ErrLLMUnavailable, err)
}

// tryModel applies the per-model retry policy: llmAttempts attempts with
// llmRetryDelay after each failure.
func (lc *LLMClient) tryModel(ctx context.Context, modelID, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < llmAttempts; attempt++ {
		text, err := lc.invoke(ctx, modelID, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		logger.Debug("LLM attempt failed", "model", modelID, "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(llmRetryDelay):
		}
	}
	return "", lastErr
}

func (lc *LLMClient) invoke(ctx context.Context, modelID, prompt string) (string, error) {
	if err := lc.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(chatRequest{
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   lc.maxTokens,
		Temperature: 0.1,
		TopP:        0.5,
	})
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	result, err := lc.breaker.Execute(func() (interface{}, error) {
		out, err := lc.invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(modelID),
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
		return "", err
	}

	var decoded chatResponse
	if err := json.Unmarshal(result.([]byte), &decoded); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("llm response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

var reasoningPattern = regexp.MustCompile(`(?s)<reasoning>.*?</reasoning>`)

// StripReasoning removes every <reasoning>...</reasoning> block from model
// output and trims surrounding whitespace. Idempotent; text without tags
// passes through trimmed.
func StripReasoning(raw string) string {
	return strings.TrimSpace(reasoningPattern.ReplaceAllString(raw, ""))
}
