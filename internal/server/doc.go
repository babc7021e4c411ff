// Package server exposes the operational HTTP endpoints of the long-running
// watch mode: Prometheus metrics and Kubernetes-style health probes.
//
// # Endpoints
//
//   - /metrics: the instrumentation provider's Prometheus registry
//   - /healthz: liveness, always ok while the process serves
//   - /readyz: readiness, failing while not ready or shutting down
//   - /healthz/detailed: uptime plus the outcome of the last triggered run
//
// The server is deliberately separate from the pipeline so that scraping
// never competes with a Router run for the inbox lock.
package server
