package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrStage     = "stage"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrProvider  = "provider"
	attrResult    = "result"
	attrTool      = "tool"
)

// Metrics provides methods for recording pipeline metrics. The zero value
// and a nil *Metrics are valid no-op recorders.
type Metrics struct {
	itemsTotal  metric.Int64Counter
	runDuration metric.Float64Histogram

	ledgerRetriesTotal metric.Int64Counter

	evaluatorCallsTotal metric.Int64Counter

	sourceOperationsTotal   metric.Int64Counter
	sourceOperationDuration metric.Float64Histogram

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.itemsTotal, err = meter.Int64Counter(
		"pipeline_items_total",
		metric.WithDescription("Items handled per stage by outcome status"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline_items_total counter: %w", err)
	}

	m.runDuration, err = meter.Float64Histogram(
		"pipeline_run_duration_seconds",
		metric.WithDescription("Duration of a batch run per stage"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline_run_duration_seconds histogram: %w", err)
	}

	m.ledgerRetriesTotal, err = meter.Int64Counter(
		"ledger_io_retries_total",
		metric.WithDescription("Retried ledger reads and writes"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger_io_retries_total counter: %w", err)
	}

	m.evaluatorCallsTotal, err = meter.Int64Counter(
		"evaluator_calls_total",
		metric.WithDescription("Enrichment evaluator calls by provider and result"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluator_calls_total counter: %w", err)
	}

	m.sourceOperationsTotal, err = meter.Int64Counter(
		"source_operations_total",
		metric.WithDescription("Calls to the external mail source"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source_operations_total counter: %w", err)
	}

	m.sourceOperationDuration, err = meter.Float64Histogram(
		"source_operation_duration_seconds",
		metric.WithDescription("Duration of calls to the external mail source"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create source_operation_duration_seconds histogram: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordItem counts one item leaving a stage with the given status
// (e.g. import/saved, route/MOVED).
func (m *Metrics) RecordItem(ctx context.Context, stage, status string) {
	if m == nil || m.itemsTotal == nil {
		return
	}
	m.itemsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStage, stage),
		attribute.String(attrStatus, status),
	))
}

// RecordRun records the duration of a whole batch run.
func (m *Metrics) RecordRun(ctx context.Context, stage, status string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrStage, stage),
		attribute.String(attrStatus, status),
	))
}

// RecordLedgerRetry counts a retried ledger read or write.
func (m *Metrics) RecordLedgerRetry(ctx context.Context, op string) {
	if m == nil || m.ledgerRetriesTotal == nil {
		return
	}
	m.ledgerRetriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOperation, op)))
}

// RecordEvaluatorCall counts an evaluator call. Result is EvaluatorOK or
// EvaluatorFallback.
func (m *Metrics) RecordEvaluatorCall(ctx context.Context, provider, result string) {
	if m == nil || m.evaluatorCallsTotal == nil {
		return
	}
	m.evaluatorCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrResult, result),
	))
}

// RecordSourceOperation records a call to the external source with
// service, operation, status and duration.
func (m *Metrics) RecordSourceOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.sourceOperationsTotal == nil || m.sourceOperationDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.sourceOperationsTotal.Add(ctx, 1, attrs)
	m.sourceOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolInvocation records an MCP tool invocation with its status and
// duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
