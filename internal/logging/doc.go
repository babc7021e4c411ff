// Package logging provides structured logging utilities for mailroute.
//
// All packages log through log/slog. This package builds the root logger
// from configuration and defines the attribute keys shared by the importer,
// router and watcher so log lines from one batch run can be correlated by
// run_id.
//
//	logger := logging.WithRun(slog.Default(), logging.StageRoute, runID)
//	logger.Info("routed", logging.File(name), logging.Status("MOVED"))
//
// Origin addresses are PII. Operational logs carry only the sender domain
// (SenderDomain); the full address is written to the audit log only.
package logging
