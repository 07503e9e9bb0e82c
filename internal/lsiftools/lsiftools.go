// Package lsiftools is the tool-dispatch layer for the LSIF bridge: a
// small fixed palette of tools wrapping an *lsif.Index.
package lsiftools

import (
	"encoding/json"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
	"github.com/codex-bridges/mcp-bridges/internal/lsif"
)

// ToolNames is the fixed LSIF tool palette, always fully advertised
// (the index has no capability negotiation to gate on).
var ToolNames = []string{
	"lsif_load",
	"lsif_reload",
	"lsif_definition",
	"lsif_references",
	"lsif_hover",
}

// Dispatch resolves a tool name + arguments against idx. loadedPath
// supplies the path lsif_reload re-reads when the arguments omit one.
func Dispatch(idx *lsif.Index, loadedPath *string, toolName string, args map[string]any) (json.RawMessage, error) {
	switch toolName {
	case "lsif_load":
		return dispatchLoad(idx, loadedPath, args)
	case "lsif_reload":
		path := *loadedPath
		if p, ok := args["path"].(string); ok && p != "" {
			path = p
		}
		if path == "" {
			return nil, bridgeerr.InvalidParams("lsif_reload", "no index has been loaded yet; pass path")
		}
		if err := idx.Load(path); err != nil {
			return nil, bridgeerr.Internal(err)
		}
		*loadedPath = path
		return json.Marshal(map[string]any{"path": path, "status": "reloaded"})
	case "lsif_definition":
		return dispatchPosition(idx, args, "lsif_definition", func(uri string, line, ch uint32) (any, error) {
			return idx.QueryDefinition(uri, line, ch)
		})
	case "lsif_references":
		return dispatchReferences(idx, args)
	case "lsif_hover":
		return dispatchPosition(idx, args, "lsif_hover", func(uri string, line, ch uint32) (any, error) {
			return idx.QueryHover(uri, line, ch)
		})
	default:
		return nil, bridgeerr.UnknownTool(toolName)
	}
}

func dispatchLoad(idx *lsif.Index, loadedPath *string, args map[string]any) (json.RawMessage, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, bridgeerr.InvalidParams("lsif_load", "missing required field: path")
	}
	if err := idx.Load(path); err != nil {
		return nil, bridgeerr.Internal(err)
	}
	*loadedPath = path
	return json.Marshal(map[string]any{"path": path, "status": "loaded"})
}

func dispatchPosition(idx *lsif.Index, args map[string]any, tool string, query func(uri string, line, character uint32) (any, error)) (json.RawMessage, error) {
	uri, line, character, err := positionArgs(args, tool)
	if err != nil {
		return nil, err
	}
	result, err := query(uri, line, character)
	if err != nil {
		return nil, bridgeerr.Internal(err).WithHints(tool, uri, "")
	}
	return json.Marshal(result)
}

func dispatchReferences(idx *lsif.Index, args map[string]any) (json.RawMessage, error) {
	uri, line, character, err := positionArgs(args, "lsif_references")
	if err != nil {
		return nil, err
	}
	includeDeclarations, _ := args["includeDeclarations"].(bool)
	result, err := idx.QueryReferences(uri, line, character, includeDeclarations)
	if err != nil {
		return nil, bridgeerr.Internal(err).WithHints("lsif_references", uri, "")
	}
	return json.Marshal(result)
}

func positionArgs(args map[string]any, tool string) (uri string, line, character uint32, err error) {
	u, ok := args["uri"].(string)
	if !ok || u == "" {
		return "", 0, 0, bridgeerr.InvalidParams(tool, "missing required field: uri")
	}
	l, ok := numberArg(args["line"])
	if !ok {
		return "", 0, 0, bridgeerr.InvalidParams(tool, "missing required field: line")
	}
	c, ok := numberArg(args["character"])
	if !ok {
		return "", 0, 0, bridgeerr.InvalidParams(tool, "missing required field: character")
	}
	return u, uint32(l), uint32(c), nil
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
