package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailroute/internal/logging"
	"github.com/teemow/mailroute/internal/tools/pipeline_tools"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server on standard input/output.

The server exposes read-only pipeline tools for AI assistants:
  - ledger_contains: whether a Gmail message id was already imported
  - classify_inbox: where the next route run would move each inbox item
  - last_run: the summary of the last import or route run

Nothing is moved, imported or recorded through the server. Logs go to
stderr so that stdout carries only the MCP protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, logging.StageServe)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx), "")

			mcpSrv, err := newMCPServer(ctx, a)
			if err != nil {
				return err
			}
			return runStdioServer(mcpSrv)
		},
	}
	return cmd
}

func newMCPServer(ctx context.Context, a *app) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("mailroute", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := registerAllTools(mcpSrv, pipeline_tools.Deps{
		Ledger:      a.ledger,
		Planner:     a.newRouter(ctx),
		SummaryPath: a.cfg.RunSummaryPath,
		Metrics:     a.metrics(),
		Logger:      a.logger,
	}); err != nil {
		return nil, err
	}
	return mcpSrv, nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools.
// Shared by serve and generate-docs.
func registerAllTools(mcpSrv *mcpserver.MCPServer, deps pipeline_tools.Deps) error {
	if err := pipeline_tools.RegisterPipelineTools(mcpSrv, deps); err != nil {
		return fmt.Errorf("failed to register pipeline tools: %w", err)
	}
	return nil
}
