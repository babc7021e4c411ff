package pipeline_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailroute/internal/instrumentation"
	"github.com/teemow/mailroute/internal/logging"
	"github.com/teemow/mailroute/internal/router"
)

// defaultPlanMax bounds classify_inbox when no max is given.
const defaultPlanMax = 50

// Ledger answers whether a source id was already imported.
type Ledger interface {
	Contains(ctx context.Context, id string) bool
}

// Planner previews routing decisions.
type Planner interface {
	Plan(ctx context.Context, max int) ([]router.Planned, error)
}

// Deps are the pipeline components the tools read from.
type Deps struct {
	Ledger  Ledger
	Planner Planner
	// SummaryPath maps a stage name to its last-run summary file.
	SummaryPath func(stage string) string
	Metrics     *instrumentation.Metrics
	Logger      *slog.Logger
}

// RegisterPipelineTools registers all pipeline tools with the MCP server.
func RegisterPipelineTools(s *mcpserver.MCPServer, deps Deps) error {
	if deps.Ledger == nil || deps.Planner == nil || deps.SummaryPath == nil {
		return fmt.Errorf("pipeline tools need a ledger, a planner and summary paths")
	}

	ledgerContainsTool := mcp.NewTool("ledger_contains",
		mcp.WithDescription("Check whether a source message id was already imported"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Source message id (Gmail message id)"),
		),
	)
	s.AddTool(ledgerContainsTool, mcpserver.ToolHandlerFunc(InstrumentedToolHandler("ledger_contains", deps.Metrics, deps.Logger, deps.handleLedgerContains)))

	classifyInboxTool := mcp.NewTool("classify_inbox",
		mcp.WithDescription("Preview where the next route run would move each inbox item. Nothing is moved."),
		mcp.WithNumber("max",
			mcp.Description(fmt.Sprintf("Maximum number of items to classify (default: %d)", defaultPlanMax)),
		),
	)
	s.AddTool(classifyInboxTool, mcpserver.ToolHandlerFunc(InstrumentedToolHandler("classify_inbox", deps.Metrics, deps.Logger, deps.handleClassifyInbox)))

	lastRunTool := mcp.NewTool("last_run",
		mcp.WithDescription("Show the summary of the last import or route run"),
		mcp.WithString("stage",
			mcp.Required(),
			mcp.Enum(logging.StageImport, logging.StageRoute),
			mcp.Description("Pipeline stage"),
		),
	)
	s.AddTool(lastRunTool, mcpserver.ToolHandlerFunc(InstrumentedToolHandler("last_run", deps.Metrics, deps.Logger, deps.handleLastRun)))

	return nil
}

func (d Deps) handleLedgerContains(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	return jsonResult(map[string]any{
		"id":       id,
		"imported": d.Ledger.Contains(ctx, id),
	})
}

func (d Deps) handleClassifyInbox(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	max := defaultPlanMax
	if maxVal, ok := request.GetArguments()["max"].(float64); ok && maxVal > 0 {
		max = int(maxVal)
	}

	plan, err := d.Planner.Plan(ctx, max)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to classify inbox: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"count": len(plan),
		"items": plan,
	})
}

func (d Deps) handleLastRun(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stage, _ := request.GetArguments()["stage"].(string)
	if stage == "" {
		return mcp.NewToolResultError("stage is required"), nil
	}
	if stage != logging.StageImport && stage != logging.StageRoute {
		return mcp.NewToolResultError(fmt.Sprintf("unknown stage %q", stage)), nil
	}

	data, err := os.ReadFile(d.SummaryPath(stage))
	if errors.Is(err, os.ErrNotExist) {
		return mcp.NewToolResultText(fmt.Sprintf("No %s run recorded yet.", stage)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read run summary: %v", err)), nil
	}
	if !json.Valid(data) {
		return mcp.NewToolResultError("run summary is not valid JSON"), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(result)), nil
}
