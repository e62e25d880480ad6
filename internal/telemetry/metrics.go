package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	DocumentsProcessed  metric.Int64Counter
	ChunksStored        metric.Int64Counter
	IngestionDuration   metric.Float64Histogram
	QueryDuration       metric.Float64Histogram
	LLMFallbacks        metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	DatabaseOperations  metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("multitenant-rag-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	documentsProcessed, err := meter.Int64Counter(
		"documents.processed.total",
		metric.WithDescription("Total documents run through the ingestion pipeline"),
	)
	if err != nil {
		return nil, err
	}

	chunksStored, err := meter.Int64Counter(
		"chunks.stored.total",
		metric.WithDescription("Total chunks embedded and stored"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"ingestion.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"query.duration",
		metric.WithDescription("Query pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	llmFallbacks, err := meter.Int64Counter(
		"llm.fallback.total",
		metric.WithDescription("Times the fallback LLM model was used"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	databaseOperations, err := meter.Int64Counter(
		"database.operations.total",
		metric.WithDescription("Total database operations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		DocumentsProcessed:  documentsProcessed,
		ChunksStored:        chunksStored,
		IngestionDuration:   ingestionDuration,
		QueryDuration:       queryDuration,
		LLMFallbacks:        llmFallbacks,
		CircuitBreakerState: circuitBreakerState,
		DatabaseOperations:  databaseOperations,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngestion records one ingestion pipeline run
func (m *Metrics) RecordIngestion(tenantID, status string, chunks int64, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("tenant.id", tenantID),
		attribute.String("ingestion.status", status),
	}

	m.DocumentsProcessed.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.IngestionDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
	if chunks > 0 {
		m.ChunksStored.Add(context.Background(), chunks,
			metric.WithAttributes(attribute.String("tenant.id", tenantID)))
	}
}

// RecordQuery records one query pipeline run
func (m *Metrics) RecordQuery(tenantID string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("tenant.id", tenantID),
	}

	m.QueryDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordLLMFallback records one switch to the fallback model
func (m *Metrics) RecordLLMFallback(model string) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.model", model),
	}

	m.LLMFallbacks.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordDatabaseOperation records database operation metrics
func (m *Metrics) RecordDatabaseOperation(operation, table string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.table", table),
		attribute.Bool("db.success", success),
	}

	m.DatabaseOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
