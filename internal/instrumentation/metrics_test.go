package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	provider, err := NewProvider(context.Background(), Config{
		ServiceName:     "test-service",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func TestMetrics_Record(t *testing.T) {
	ctx := context.Background()
	m := newTestProvider(t).Metrics()

	// Should not panic
	m.RecordItem(ctx, "import", "saved")
	m.RecordRun(ctx, "route", StatusSuccess, 2*time.Second)
	m.RecordLedgerRetry(ctx, "write")
	m.RecordEvaluatorCall(ctx, "genai", EvaluatorFallback)
	m.RecordSourceOperation(ctx, ServiceGmail, "list", StatusSuccess, 150*time.Millisecond)
	m.RecordToolInvocation(ctx, "last_run", StatusSuccess, 5*time.Millisecond)
}

func TestMetrics_NoOp_WhenNil(t *testing.T) {
	ctx := context.Background()
	var m *Metrics

	m.RecordItem(ctx, "import", "saved")
	m.RecordRun(ctx, "import", StatusError, time.Second)
	m.RecordLedgerRetry(ctx, "read")
	m.RecordEvaluatorCall(ctx, "heuristic", EvaluatorOK)
	m.RecordSourceOperation(ctx, ServiceGmail, "get", StatusError, time.Second)

	empty := &Metrics{}
	empty.RecordItem(ctx, "route", "DRY_RUN")
}
