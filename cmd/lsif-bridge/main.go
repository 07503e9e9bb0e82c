// Command lsif-bridge serves LSIF-backed definition/reference/hover
// queries as MCP tools over stdio, per §4.6 of the bridge design.
package main

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeserver"
	"github.com/codex-bridges/mcp-bridges/internal/logging"
	"github.com/codex-bridges/mcp-bridges/internal/lsif"
	"github.com/codex-bridges/mcp-bridges/internal/lsiftools"
)

const (
	envIndexPath = "LSIF_INDEX_PATH"
	envLogLevel  = "LSIF_BRIDGE_LOG_LEVEL"
)

var toolRequiredFields = map[string][]string{
	"lsif_load":       {"path"},
	"lsif_reload":     nil,
	"lsif_definition": {"uri", "line", "character"},
	"lsif_references": {"uri", "line", "character"},
	"lsif_hover":      {"uri", "line", "character"},
}

func main() {
	logger := logging.New("lsif-bridge", envLogLevel)
	defer logger.Sync()

	idx := lsif.New()
	var loadedPath string
	if initial := os.Getenv(envIndexPath); initial != "" {
		if err := idx.Load(initial); err != nil {
			logger.Sugar().Warnf("failed to load initial index %s: %v", initial, err)
		} else {
			loadedPath = initial
			if _, err := idx.Watch(logger); err != nil {
				logger.Sugar().Warnf("failed to watch %s for changes: %v", initial, err)
			}
		}
	}

	srv := server.NewMCPServer("mcp-bridges-lsif", "1.0.0", server.WithToolCapabilities(true))
	registerTools(srv, idx, &loadedPath)

	if err := server.ServeStdio(srv); err != nil {
		logger.Sugar().Fatalf("stdio server error: %v", err)
	}
}

func registerTools(srv *server.MCPServer, idx *lsif.Index, loadedPath *string) {
	for _, name := range lsiftools.ToolNames {
		t := bridgeserver.Tool(name, toolDescription(name), toolRequiredFields[name])
		srv.AddTool(t, toolHandler(idx, loadedPath, name))
	}
}

func toolHandler(idx *lsif.Index, loadedPath *string, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := lsiftools.Dispatch(idx, loadedPath, name, request.GetArguments())
		return bridgeserver.Result(name, result, err)
	}
}

func toolDescription(name string) string {
	switch name {
	case "lsif_load":
		return "Load an LSIF index file, replacing any currently loaded index."
	case "lsif_reload":
		return "Reload the most recently loaded LSIF index file from disk."
	case "lsif_definition":
		return "Resolve the definition of the symbol at a position, via the shortest containing range."
	case "lsif_references":
		return "Resolve references (and optionally declarations) of the symbol at a position."
	case "lsif_hover":
		return "Resolve hover information at a position (always fails: hover is never linked to a range)."
	default:
		return ""
	}
}
