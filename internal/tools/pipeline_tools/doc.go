// Package pipeline_tools exposes read-only views of the mail pipeline as
// MCP tools for AI assistants.
//
// Available tools:
//   - ledger_contains: whether a source message id was already imported
//   - classify_inbox: what a route run would do with the current inbox
//   - last_run: the summary of the last import or route run
//
// None of the tools moves files, writes the ledger or takes the pipeline
// lock.
package pipeline_tools
