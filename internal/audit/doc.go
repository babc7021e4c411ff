// Package audit writes the append-only CSV logs of the pipeline.
//
// Every routing outcome produces exactly one Record. The CSV header is
// written once, when the file is created or found empty. Each record is
// mirrored to slog at info level under the "routing_decision" message
// so it also reaches centralized logging.
package audit
