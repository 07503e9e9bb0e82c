// Command lsp-bridge exposes a pool of language servers as MCP tools
// over stdio, per §4.3/§4.4 of the bridge design.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeserver"
	"github.com/codex-bridges/mcp-bridges/internal/logging"
	"github.com/codex-bridges/mcp-bridges/internal/lspclient"
	"github.com/codex-bridges/mcp-bridges/internal/lsptools"
	"github.com/codex-bridges/mcp-bridges/internal/pool"
	"github.com/codex-bridges/mcp-bridges/internal/transport"
)

const (
	envServerCommand = "LSP_SERVER_COMMAND"
	envServerMap     = "LSP_SERVER_MAP"
	envFraming       = "LSP_STDIO_FRAMING"
	envLogLevel      = "LSP_BRIDGE_LOG_LEVEL"
)

func main() {
	logger := logging.New("lsp-bridge", envLogLevel)
	defer logger.Sync()

	writePref := transport.ParseWritePreference(os.Getenv(envFraming))

	srv := server.NewMCPServer("mcp-bridges-lsp", "1.0.0", server.WithToolCapabilities(true))

	var sink lspclient.NotifySink = func(method string, params json.RawMessage) {
		srv.SendNotificationToAllClients("notifications/message", bridgeserver.LoggingMessage("lsp-bridge", method, params))
	}

	p := pool.New(os.Getenv(envServerCommand), writePref, logger, sink)
	p.LoadServerMapOverrides(os.Getenv(envServerMap))

	registerTools(srv, p)

	if err := server.ServeStdio(srv); err != nil {
		logger.Sugar().Fatalf("stdio server error: %v", err)
	}
}

func registerTools(srv *server.MCPServer, p *pool.Pool) {
	for _, tool := range lsptools.Catalog {
		t := bridgeserver.Tool(tool.Name, tool.Description, requiredFieldsFor(tool.Name))
		srv.AddTool(t, toolHandler(p, tool.Name))
	}
	srv.AddTool(bridgeserver.Tool("lsp_call", "Send an arbitrary LSP request to the routed server.", []string{"method"}), toolHandler(p, "lsp_call"))
	srv.AddTool(bridgeserver.Tool("lsp_notify", "Send an arbitrary LSP notification to the routed server.", []string{"method"}), toolHandler(p, "lsp_notify"))
}

func toolHandler(p *pool.Pool, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := lsptools.Dispatch(ctx, p, name, request.GetArguments())
		return bridgeserver.Result(name, result, err)
	}
}

// requiredFieldsFor advertises the minimal top-level fields every
// position/document-based tool needs; lsp_execute_command and
// lsp_workspace_symbol have their own shapes.
func requiredFieldsFor(name string) []string {
	switch name {
	case "lsp_execute_command":
		return []string{"command"}
	case "lsp_workspace_symbol":
		return []string{"query"}
	case "lsp_rename":
		return []string{"uri", "line", "character", "newName"}
	default:
		return []string{"uri"}
	}
}
