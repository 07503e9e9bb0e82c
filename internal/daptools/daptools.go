// Package daptools is the tool-dispatch layer for the DAP bridge: a
// fixed palette of tools mapped onto DAP requests, per §4.5.
package daptools

import (
	"context"
	"encoding/json"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
	"github.com/codex-bridges/mcp-bridges/internal/dappool"
)

// Tool describes one fixed DAP tool.
type Tool struct {
	Name           string
	Description    string
	Command        string
	CapabilityPath string
	Build          func(args map[string]any) (arguments any, err error)
}

// Catalog is the fixed DAP tool palette. dap_configuration_done is
// capability-gated on supportsConfigurationDoneRequest; the rest are
// always advertised since they're part of the base protocol.
var Catalog = []Tool{
	{Name: "dap_launch", Description: "Send a launch request to the adapter.", Command: "launch",
		Build: func(args map[string]any) (any, error) { return passthroughArguments(args) }},
	{Name: "dap_attach", Description: "Send an attach request to the adapter.", Command: "attach",
		Build: func(args map[string]any) (any, error) { return passthroughArguments(args) }},
	{Name: "dap_set_breakpoints", Description: "Set breakpoints in a source file.", Command: "setBreakpoints",
		Build: buildSetBreakpoints},
	{Name: "dap_configuration_done", Description: "Signal that configuration is complete.", Command: "configurationDone",
		CapabilityPath: "supportsConfigurationDoneRequest",
		Build:          func(args map[string]any) (any, error) { return map[string]any{}, nil }},
	{Name: "dap_continue", Description: "Continue execution of a thread.", Command: "continue", Build: buildThreadArguments},
	{Name: "dap_next", Description: "Step over in a thread.", Command: "next", Build: buildThreadArguments},
	{Name: "dap_step_in", Description: "Step into in a thread.", Command: "stepIn", Build: buildThreadArguments},
	{Name: "dap_step_out", Description: "Step out in a thread.", Command: "stepOut", Build: buildThreadArguments},
	{Name: "dap_threads", Description: "List threads.", Command: "threads",
		Build: func(args map[string]any) (any, error) { return map[string]any{}, nil }},
	{Name: "dap_stack_trace", Description: "Request a stack trace for a thread.", Command: "stackTrace", Build: buildThreadArguments},
	{Name: "dap_scopes", Description: "Request scopes for a stack frame.", Command: "scopes", Build: buildFrameArguments},
	{Name: "dap_variables", Description: "Request variables for a variablesReference.", Command: "variables", Build: buildVariablesArguments},
	{Name: "dap_evaluate", Description: "Evaluate an expression in a frame.", Command: "evaluate", Build: buildEvaluateArguments},
	{Name: "dap_disconnect", Description: "Disconnect from the adapter.", Command: "disconnect",
		Build: func(args map[string]any) (any, error) { return passthroughArguments(args) }},
}

func passthroughArguments(args map[string]any) (any, error) {
	if v, ok := args["arguments"]; ok {
		return v, nil
	}
	delete(args, "server")
	return args, nil
}

// buildSetBreakpoints converts the bridge's flattened {source, lines}
// shape into DAP's {source:{path}, breakpoints:[{line}]} shape, per
// §4.5's exact conversion rule.
func buildSetBreakpoints(args map[string]any) (any, error) {
	source, ok := args["source"].(string)
	if !ok || source == "" {
		return nil, bridgeerr.InvalidParams("dap_set_breakpoints", "missing required field: source")
	}
	rawLines, ok := args["lines"].([]any)
	if !ok {
		return nil, bridgeerr.InvalidParams("dap_set_breakpoints", "missing required field: lines")
	}
	breakpoints := make([]map[string]any, 0, len(rawLines))
	for _, l := range rawLines {
		line, ok := numberArg(l)
		if !ok {
			return nil, bridgeerr.InvalidParams("dap_set_breakpoints", "lines must be an array of numbers")
		}
		breakpoints = append(breakpoints, map[string]any{"line": line})
	}
	return map[string]any{
		"source":      map[string]any{"path": source},
		"breakpoints": breakpoints,
	}, nil
}

func buildThreadArguments(args map[string]any) (any, error) {
	threadID, ok := numberArg(args["threadId"])
	if !ok {
		return nil, bridgeerr.InvalidParams("dap tool", "missing required field: threadId")
	}
	return map[string]any{"threadId": threadID}, nil
}

func buildFrameArguments(args map[string]any) (any, error) {
	frameID, ok := numberArg(args["frameId"])
	if !ok {
		return nil, bridgeerr.InvalidParams("dap_scopes", "missing required field: frameId")
	}
	return map[string]any{"frameId": frameID}, nil
}

func buildVariablesArguments(args map[string]any) (any, error) {
	ref, ok := numberArg(args["variablesReference"])
	if !ok {
		return nil, bridgeerr.InvalidParams("dap_variables", "missing required field: variablesReference")
	}
	return map[string]any{"variablesReference": ref}, nil
}

func buildEvaluateArguments(args map[string]any) (any, error) {
	expression, ok := args["expression"].(string)
	if !ok || expression == "" {
		return nil, bridgeerr.InvalidParams("dap_evaluate", "missing required field: expression")
	}
	out := map[string]any{"expression": expression}
	if frameID, ok := numberArg(args["frameId"]); ok {
		out["frameId"] = frameID
	}
	if ctx, ok := args["context"].(string); ok {
		out["context"] = ctx
	}
	return out, nil
}

func numberArg(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func findTool(name string) (Tool, bool) {
	for _, t := range Catalog {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// FilterByCapabilities hides dap_configuration_done when the adapter's
// stored capabilities don't advertise supportsConfigurationDoneRequest.
// A nil capability record (not yet initialized) advertises everything.
func FilterByCapabilities(caps json.RawMessage) []Tool {
	if caps == nil {
		return Catalog
	}
	out := make([]Tool, 0, len(Catalog))
	for _, t := range Catalog {
		if t.CapabilityPath == "" || capabilitySupported(caps, t.CapabilityPath) {
			out = append(out, t)
		}
	}
	return out
}

// Dispatch resolves a tool name + arguments against the DAP pool, or
// handles dap_initialize/dap_call passthroughs directly.
func Dispatch(ctx context.Context, p *dappool.Pool, toolName string, args map[string]any) (json.RawMessage, error) {
	override, _ := args["server"].(string)
	resolved, err := p.ResolveCommand(override)
	if err != nil {
		return nil, err
	}
	client := p.ClientFor(resolved)

	switch toolName {
	case "dap_initialize":
		return client.Capabilities(ctx, resolved)
	case "dap_call":
		command, ok := args["command"].(string)
		if !ok || command == "" {
			return nil, bridgeerr.InvalidParams("dap_call", "missing required field: command")
		}
		arguments, _ := args["arguments"]
		return client.Request(ctx, command, arguments, resolved)
	}

	tool, ok := findTool(toolName)
	if !ok {
		return nil, bridgeerr.UnknownTool(toolName)
	}
	if tool.CapabilityPath != "" {
		caps, err := client.Capabilities(ctx, resolved)
		if err != nil {
			return nil, err
		}
		if !capabilitySupported(caps, tool.CapabilityPath) {
			return nil, bridgeerr.UnknownTool(toolName)
		}
	}
	arguments, err := tool.Build(args)
	if err != nil {
		return nil, err
	}
	return client.Request(ctx, tool.Command, arguments, resolved)
}

func capabilitySupported(caps json.RawMessage, path string) bool {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(caps, &generic); err != nil {
		return false
	}
	raw, ok := generic[path]
	if !ok {
		return false
	}
	var supported bool
	_ = json.Unmarshal(raw, &supported)
	return supported
}
