// Package agenttools is the tool-dispatch layer for the nested-agent
// bridge: a thin argument-shaping layer over *orchestrator.Supervisor.
package agenttools

import (
	"context"
	"encoding/json"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
	"github.com/codex-bridges/mcp-bridges/internal/orchestrator"
)

// ToolNames is the fixed nested-agent tool palette.
var ToolNames = []string{
	"spawn_agent",
	"list_agents",
	"kill_agent",
	"new_conversation",
	"send_user_message",
	"send_user_turn",
	"interrupt",
	"list_conversations",
	"resume_conversation",
	"archive_conversation",
	"list_pending_approvals",
	"decide_approval",
	"get_conversation_events",
}

// Dispatch resolves a tool name + arguments against sup.
func Dispatch(ctx context.Context, sup *orchestrator.Supervisor, toolName string, args map[string]any) (json.RawMessage, error) {
	switch toolName {
	case "spawn_agent":
		requestedID, _ := args["agentId"].(string)
		cwd, _ := args["cwd"].(string)
		id, err := sup.SpawnAgent(ctx, requestedID, cwd)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"agentId": id})

	case "list_agents":
		return json.Marshal(map[string]any{"agents": sup.ListAgents()})

	case "kill_agent":
		agentID, err := requireAgentID(args, "kill_agent")
		if err != nil {
			return nil, err
		}
		if err := sup.KillAgent(agentID); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"agentId": agentID, "status": "killed"})

	case "new_conversation":
		return forward(ctx, sup, sup.NewConversation, args, "new_conversation")

	case "resume_conversation":
		return forward(ctx, sup, sup.ResumeConversation, args, "resume_conversation")

	case "send_user_message":
		return forward(ctx, sup, sup.SendUserMessage, args, "send_user_message")

	case "send_user_turn":
		return forward(ctx, sup, sup.SendUserTurn, args, "send_user_turn")

	case "interrupt":
		return forward(ctx, sup, sup.Interrupt, args, "interrupt")

	case "list_conversations":
		return forward(ctx, sup, sup.ListConversations, args, "list_conversations")

	case "archive_conversation":
		return forward(ctx, sup, sup.ArchiveConversation, args, "archive_conversation")

	case "list_pending_approvals":
		return json.Marshal(map[string]any{"approvals": sup.ListPendingApprovals()})

	case "decide_approval":
		key, err := requireString(args, "approvalKey", "decide_approval")
		if err != nil {
			return nil, err
		}
		decision, err := requireString(args, "decision", "decide_approval")
		if err != nil {
			return nil, err
		}
		if err := sup.DecideApproval(key, decision); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"approvalKey": key, "decision": decision})

	case "get_conversation_events":
		path, err := requireString(args, "path", "get_conversation_events")
		if err != nil {
			return nil, err
		}
		limit := 0
		if l, ok := numberArg(args["limit"]); ok {
			limit = int(l)
		}
		events, err := orchestrator.GetConversationEvents(path, limit)
		if err != nil {
			return nil, bridgeerr.Internal(err)
		}
		return json.Marshal(map[string]any{"events": events})

	default:
		return nil, bridgeerr.UnknownTool(toolName)
	}
}

type forwardFunc func(ctx context.Context, agentID string, rawParams any) (json.RawMessage, error)

func forward(ctx context.Context, sup *orchestrator.Supervisor, fn forwardFunc, args map[string]any, tool string) (json.RawMessage, error) {
	agentID, err := requireAgentID(args, tool)
	if err != nil {
		return nil, err
	}
	params := map[string]any{}
	for k, v := range args {
		if k == "agentId" {
			continue
		}
		params[k] = v
	}
	return fn(ctx, agentID, params)
}

func requireAgentID(args map[string]any, tool string) (string, error) {
	return requireString(args, "agentId", tool)
}

func requireString(args map[string]any, key, tool string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", bridgeerr.InvalidParams(tool, "missing required field: "+key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", bridgeerr.InvalidParams(tool, key+" must be a non-empty string")
	}
	return s, nil
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
