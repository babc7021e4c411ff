// Package instrumentation provides OpenTelemetry metrics and tracing for
// the mail pipeline.
//
// # Metrics
//
//   - pipeline_items_total{stage,status}: items leaving a stage
//   - pipeline_run_duration_seconds{stage,status}: batch run duration
//   - ledger_io_retries_total{operation}: retried ledger reads and writes
//   - evaluator_calls_total{provider,result}: enrichment evaluator calls
//   - source_operations_total{service,operation,status} and
//     source_operation_duration_seconds: external mail source calls
//
// Batch commands are short-lived, so with the prometheus exporter the
// registry is pushed to a Pushgateway (PUSHGATEWAY_URL) when the run ends.
// The long-running watch mode can expose it on /metrics instead.
//
// # Tracing
//
// Spans are created per run (pipeline.<stage>) and per source call
// (source.<service>.<operation>).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: enable/disable (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate (default: 1.0)
//   - PUSHGATEWAY_URL, PUSHGATEWAY_JOB: Pushgateway target
package instrumentation
