// Package cmd implements the command-line interface for mailroute.
//
// This package provides the following commands:
//   - import: Import new Gmail attachments into the inbox
//   - route: Route inbox items into case folders
//   - run: Import, then route
//   - watch: Route whenever new files arrive in the inbox
//   - serve: Start the MCP server with read-only pipeline tools
//   - generate-docs: Generate markdown documentation for the MCP tools
//   - version: Display version information
//
// The run command is the default command when no subcommand is specified.
package cmd
