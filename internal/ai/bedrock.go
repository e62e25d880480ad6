package ai

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"multitenant-rag-platform/internal/logger"
	"multitenant-rag-platform/internal/telemetry"
)

// modelInvoker is the slice of the Bedrock runtime client both AI clients
// consume; tests substitute a stub.
type modelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// NewRuntimeClient builds the Bedrock runtime client shared by the
// embedding and LLM clients.
func NewRuntimeClient(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

func newBreaker(name string, metrics *telemetry.Metrics) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
			if to == gobreaker.StateOpen {
				alertOps(fmt.Sprintf("%s circuit breaker opened - service degraded", name))
			}
		},
	})
}

// newLimiter budgets requests per minute with some buffer below the quota.
func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		rpm = 60
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), burst)
}

// Alert operations team
func alertOps(message string) {
	logger.Error("🚨 ALERT: " + message)
}
