// Command agent-bridge exposes the nested-agent supervisor (spawn,
// converse with, and tear down agent subprocesses) as MCP tools over
// stdio, per §4.5/§4.7 of the bridge design.
package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codex-bridges/mcp-bridges/internal/agenttools"
	"github.com/codex-bridges/mcp-bridges/internal/bridgeserver"
	"github.com/codex-bridges/mcp-bridges/internal/logging"
	"github.com/codex-bridges/mcp-bridges/internal/orchestrator"
)

const (
	envCallTimeoutSeconds = "AGENT_CALL_TIMEOUT_SECONDS"
	envLogLevel           = "AGENT_BRIDGE_LOG_LEVEL"
)

var toolDescriptions = map[string]string{
	"spawn_agent":             "Spawn a new agent subprocess, returning its id.",
	"list_agents":             "List every live agent id.",
	"kill_agent":              "Terminate an agent subprocess and forget it.",
	"new_conversation":        "Start a new conversation on an agent.",
	"send_user_message":       "Send a user message to an agent's current conversation.",
	"send_user_turn":          "Send a full user turn (with policy defaults) to an agent.",
	"interrupt":               "Interrupt an agent's in-progress turn.",
	"list_conversations":      "List an agent's known conversations.",
	"resume_conversation":     "Resume a previous conversation on an agent.",
	"archive_conversation":    "Archive a conversation on an agent.",
	"list_pending_approvals":  "List every undecided approval request across all agents.",
	"decide_approval":         "Approve or deny a pending approval request.",
	"get_conversation_events": "Return the last N events from a rollout file.",
}

var toolRequiredFields = map[string][]string{
	"spawn_agent":             nil,
	"list_agents":             nil,
	"kill_agent":              {"agentId"},
	"new_conversation":        {"agentId"},
	"send_user_message":       {"agentId"},
	"send_user_turn":          {"agentId"},
	"interrupt":               {"agentId"},
	"list_conversations":      {"agentId"},
	"resume_conversation":     {"agentId"},
	"archive_conversation":    {"agentId"},
	"list_pending_approvals":  nil,
	"decide_approval":         {"approvalKey", "decision"},
	"get_conversation_events": {"path"},
}

func main() {
	logger := logging.New("agent-bridge", envLogLevel)
	defer logger.Sync()

	callTimeout := 30 * time.Second
	if v := os.Getenv(envCallTimeoutSeconds); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			callTimeout = time.Duration(secs) * time.Second
		}
	}

	srv := server.NewMCPServer("mcp-bridges-agent", "1.0.0", server.WithToolCapabilities(true))

	events := func(agentID, method string, params json.RawMessage) {
		srv.SendNotificationToAllClients("notifications/message", bridgeserver.LoggingMessage("agent-bridge", agentID+":"+method, params))
	}

	sup := orchestrator.New(logger, events, callTimeout)
	defer sup.ShutdownAll()

	registerTools(srv, sup)

	if err := server.ServeStdio(srv); err != nil {
		logger.Sugar().Fatalf("stdio server error: %v", err)
	}
}

func registerTools(srv *server.MCPServer, sup *orchestrator.Supervisor) {
	for _, name := range agenttools.ToolNames {
		t := bridgeserver.Tool(name, toolDescriptions[name], toolRequiredFields[name])
		srv.AddTool(t, toolHandler(sup, name))
	}
}

func toolHandler(sup *orchestrator.Supervisor, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := agenttools.Dispatch(ctx, sup, name, request.GetArguments())
		return bridgeserver.Result(name, result, err)
	}
}
