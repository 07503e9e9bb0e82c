// Command dap-bridge exposes a single debug adapter as a fixed palette
// of MCP tools over stdio, per §4.5 of the bridge design.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeserver"
	"github.com/codex-bridges/mcp-bridges/internal/dapclient"
	"github.com/codex-bridges/mcp-bridges/internal/dappool"
	"github.com/codex-bridges/mcp-bridges/internal/daptools"
	"github.com/codex-bridges/mcp-bridges/internal/logging"
)

const (
	envCommand  = "DAP_SERVER_COMMAND"
	envLogLevel = "DAP_BRIDGE_LOG_LEVEL"
)

func main() {
	logger := logging.New("dap-bridge", envLogLevel)
	defer logger.Sync()

	srv := server.NewMCPServer("mcp-bridges-dap", "1.0.0", server.WithToolCapabilities(true))

	var sink dapclient.NotifySink = func(event string, body json.RawMessage) {
		srv.SendNotificationToAllClients("notifications/message", bridgeserver.LoggingMessage("dap-bridge", event, body))
	}

	p := dappool.New(os.Getenv(envCommand), logger, sink)

	registerTools(srv, p)

	if err := server.ServeStdio(srv); err != nil {
		logger.Sugar().Fatalf("stdio server error: %v", err)
	}
}

func registerTools(srv *server.MCPServer, p *dappool.Pool) {
	srv.AddTool(bridgeserver.Tool("dap_initialize", "Probe the adapter's capabilities, starting it if needed.", nil), toolHandler(p, "dap_initialize"))
	srv.AddTool(bridgeserver.Tool("dap_call", "Send an arbitrary DAP request to the adapter.", []string{"command"}), toolHandler(p, "dap_call"))
	for _, tool := range daptools.Catalog {
		srv.AddTool(bridgeserver.Tool(tool.Name, tool.Description, nil), toolHandler(p, tool.Name))
	}
}

func toolHandler(p *dappool.Pool, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := daptools.Dispatch(ctx, p, name, request.GetArguments())
		return bridgeserver.Result(name, result, err)
	}
}
