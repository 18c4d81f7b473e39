package main

import (
	"context"
	"encoding/json"
	"log/slog"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flycode/flycored/internal/dispatch"
	"github.com/flycode/flycored/pkg/protocol"
	"github.com/google/uuid"
)

// buildMCPServer wires every exported tool through a single generic
// passthrough handler into the dispatcher's tools/call pipeline, keeping
// argument typing dynamic the way internal/dispatch already requires.
func buildMCPServer(d *dispatch.Dispatcher, site string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "flycored",
		Title:   "FlyCode policy-enforcement daemon",
		Version: Version,
	}, &mcp.ServerOptions{HasTools: true})

	for _, name := range dispatch.ToolNames() {
		toolName := name
		mcp.AddTool(server, &mcp.Tool{
			Name:        toolName,
			Description: dispatch.ToolDescription(toolName),
		}, toolHandler(d, site, toolName))
	}
	return server
}

func toolHandler(d *dispatch.Dispatcher, site, toolName string) func(context.Context, *mcp.CallToolRequest, *map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, params *map[string]any) (*mcp.CallToolResult, any, error) {
		arguments := map[string]any{}
		if params != nil {
			arguments = *params
		}
		call := protocol.Request{
			JSONRPC: "2.0",
			Method:  "tools/call",
			Params:  map[string]any{"name": toolName, "arguments": arguments},
		}
		if id, ok := arguments["confirmationId"].(string); ok {
			call.Params["confirmationId"] = id
			delete(arguments, "confirmationId")
		}
		traceID := uuid.NewString()
		resp := d.Dispatch(ctx, site, call, traceID)

		if resp.Error != nil {
			slog.Warn("mcp.tool_call_failed", "tool", toolName, "code", resp.Error.Code, "message", resp.Error.Message)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: resp.Error.Message}},
				IsError: true,
			}, nil, nil
		}

		result, ok := resp.Result.(protocol.ToolCallResult)
		if !ok {
			raw, _ := json.Marshal(resp.Result)
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}}}, nil, nil
		}
		content := make([]mcp.Content, 0, len(result.Content))
		for _, item := range result.Content {
			content = append(content, &mcp.TextContent{Text: item.Text})
		}
		return &mcp.CallToolResult{Content: content, IsError: result.IsError}, nil, nil
	}
}
