package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dropbear/gravity/internal/bridge"
	"github.com/dropbear/gravity/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store  *storage.Store
	Events EventDispatcher
}

// NewMCPServer creates an MCP server exposing the watch configuration flow.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"gravity",
		"2.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("gravity: configure the Gravity Pebble watch face and inspect what was sent to the watch."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("show_configuration",
			mcp.WithDescription("Open the Gravity settings page, as if the user pressed Settings on the phone."),
		),
		mcpShowConfiguration(deps),
	)

	s.AddTool(
		mcp.NewTool("apply_configuration",
			mcp.WithDescription("Apply watch face settings as if the settings page had closed with them, storing facestyle and sending everything to the watch."),
			mcp.WithString("facestyle", mcp.Description("Face style to select")),
			mcp.WithString("settings", mcp.Description("Full settings as a JSON object; facestyle, if also given, overrides the field")),
		),
		mcpApplyConfiguration(deps),
	)

	s.AddTool(
		mcp.NewTool("get_preference",
			mcp.WithDescription("Read a value from local storage."),
			mcp.WithString("key", mcp.Description("Storage key (default facestyle)")),
		),
		mcpGetPreference(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"local://storage",
			"Local Storage",
			mcp.WithResourceDescription("All locally stored preferences as a JSON object"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStorage(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"gravity://messages",
			"Recent Messages",
			mcp.WithResourceDescription("Last 10 messages sent to the watch with their delivery status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceMessages(deps),
	)

	return s
}

func mcpShowConfiguration(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.Events.DispatchWait(ctx, bridge.EventShowConfiguration, bridge.Event{}); err != nil {
			return mcpError(fmt.Sprintf("failed to show configuration: %v", err)), nil
		}
		return mcpText("Opened " + bridge.ConfigURL), nil
	}
}

func mcpApplyConfiguration(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		settings := req.GetString("settings", "")
		faceStyle := req.GetString("facestyle", "")
		if settings == "" && faceStyle == "" {
			return mcpError("one of facestyle or settings is required"), nil
		}

		payload := bridge.Payload{}
		if settings != "" {
			if err := json.Unmarshal([]byte(settings), &payload); err != nil {
				return mcpError(fmt.Sprintf("settings must be a JSON object: %v", err)), nil
			}
			if payload == nil {
				return mcpError("settings must be a JSON object"), nil
			}
		}
		if faceStyle != "" {
			payload[bridge.FaceStyleKey] = faceStyle
		}

		response, err := bridge.EncodeResponse(payload)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode settings: %v", err)), nil
		}

		if err := deps.Events.DispatchWait(ctx, bridge.EventWebviewClosed, bridge.Event{Response: response}); err != nil {
			return mcpError(fmt.Sprintf("failed to apply configuration: %v", err)), nil
		}

		b, err := json.Marshal(payload)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal settings: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Applied %s; delivery to the watch is reported in gravity://messages", b)), nil
	}
}

func mcpGetPreference(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key := req.GetString("key", bridge.FaceStyleKey)
		if key == "" {
			key = bridge.FaceStyleKey
		}

		value, err := deps.Store.GetItem(key)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("no value stored for %q", key)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read %q: %v", key, err)), nil
		}

		return mcpText(value), nil
	}
}

func mcpResourceStorage(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		items, err := deps.Store.AllItems()
		if err != nil {
			return nil, fmt.Errorf("failed to list storage: %w", err)
		}

		values := make(map[string]string, len(items))
		for _, it := range items {
			values[it.Key] = it.Value
		}

		b, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal storage: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceMessages(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		msgs, err := deps.Store.RecentMessages(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent messages: %w", err)
		}

		views := make([]messageView, len(msgs))
		for i, m := range msgs {
			views[i] = newMessageView(m)
		}

		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal messages: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
