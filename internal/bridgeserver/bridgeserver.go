// Package bridgeserver holds the small amount of code shared by every
// cmd/*-bridge/main.go: building a permissive mcp.Tool (argument
// validation happens in the dispatch packages, not in JSON Schema),
// turning a dispatch result into an mcp.CallToolResult, and rendering
// an upstream logging-message notification for a bridge event.
package bridgeserver

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
)

// Tool builds a permissive object-schema mcp.Tool: the dispatch layer
// is the actual validator, so the upstream schema only needs to
// advertise the tool and its nominally required top-level fields.
func Tool(name, description string, required []string) mcp.Tool {
	t := mcp.NewTool(name, mcp.WithDescription(description))
	t.InputSchema.Type = "object"
	t.InputSchema.Properties = map[string]any{}
	t.InputSchema.Required = required
	return t
}

// Result converts a dispatch (json.RawMessage, error) pair into the
// envelope shape §4.1 describes: {tool, status, result} on success, an
// mcp error result carrying the rendered bridgeerr.Error otherwise.
func Result(toolName string, raw json.RawMessage, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(renderError(toolName, err)), nil
	}
	envelope := map[string]any{
		"tool":   toolName,
		"status": "ok",
	}
	if len(raw) > 0 {
		var decoded any
		if jsonErr := json.Unmarshal(raw, &decoded); jsonErr == nil {
			envelope["result"] = decoded
		}
	}
	body, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		return mcp.NewToolResultError(marshalErr.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func renderError(toolName string, err error) string {
	if be, ok := err.(*bridgeerr.Error); ok {
		body, marshalErr := json.Marshal(map[string]any{
			"tool":   toolName,
			"status": "error",
			"error":  be,
		})
		if marshalErr == nil {
			return string(body)
		}
	}
	return err.Error()
}

// LoggingMessage renders a logging-message notification's params from
// an observed bridge event (an agent id, DAP event, or server-initiated
// LSP request), per §6's "upstream notification" shape.
func LoggingMessage(logger, eventMethod string, data json.RawMessage) map[string]any {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		decoded = string(data)
	}
	return map[string]any{
		"level":  "info",
		"logger": logger,
		"data": map[string]any{
			"event": eventMethod,
			"body":  decoded,
		},
	}
}
