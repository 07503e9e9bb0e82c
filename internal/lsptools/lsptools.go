// Package lsptools is the tool-dispatch layer for the LSP bridge: a pure
// mapping from an upstream tool name and arguments object to a
// downstream LSP method and parameter object (§4.4).
package lsptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
	"github.com/codex-bridges/mcp-bridges/internal/lspclient"
	"github.com/codex-bridges/mcp-bridges/internal/pool"
	"github.com/codex-bridges/mcp-bridges/internal/pooluri"
)

// Tool describes one upstream tool: its name, its downstream method, a
// builder from arguments to downstream params plus URI/language hints
// for auto-open, and the capability path (dot-separated) gating its
// advertisement. An empty CapabilityPath means "always advertise".
type Tool struct {
	Name           string
	Description    string
	Method         string
	CapabilityPath string
	Build          func(args map[string]any) (params any, uriHint, languageHint string, err error)
}

const callToolName = "lsp_call"
const notifyToolName = "lsp_notify"

// Catalog is every fixed (non-passthrough) tool the LSP bridge can
// advertise, ported from the original tool surface's schema-building
// function.
var Catalog = []Tool{
	simplePositionTool("lsp_hover", "Request hover information at a position.", "textDocument/hover", "hoverProvider"),
	simplePositionTool("lsp_definition", "Jump to the definition of the symbol at a position.", "textDocument/definition", "definitionProvider"),
	simplePositionTool("lsp_type_definition", "Jump to the type definition of the symbol at a position.", "textDocument/typeDefinition", "typeDefinitionProvider"),
	simplePositionTool("lsp_implementation", "Find implementations of the symbol at a position.", "textDocument/implementation", "implementationProvider"),
	referencesTool(),
	simplePositionTool("lsp_completion", "Request completion items at a position.", "textDocument/completion", "completionProvider"),
	simplePositionTool("lsp_signature_help", "Request signature help at a position.", "textDocument/signatureHelp", "signatureHelpProvider"),
	simplePositionTool("lsp_document_highlight", "Highlight occurrences of the symbol at a position.", "textDocument/documentHighlight", "documentHighlightProvider"),
	simplePositionTool("lsp_linked_editing_range", "Discover linked ranges that should edit together.", "textDocument/linkedEditingRange", "linkedEditingRangeProvider"),
	documentOnlyTool("lsp_document_symbol", "List symbols defined in a document.", "textDocument/documentSymbol", "documentSymbolProvider"),
	rangeTool("lsp_code_action", "Request code actions for a range.", "textDocument/codeAction", "codeActionProvider"),
	itemResolveTool("lsp_code_action_resolve", "Resolve a code action returned by lsp_code_action.", "codeAction/resolve", "codeActionProvider.resolveProvider"),
	itemResolveTool("lsp_completion_item_resolve", "Resolve additional details for a completion item.", "completionItem/resolve", "completionProvider.resolveProvider"),
	documentOnlyTool("lsp_code_lens", "List code lenses in a document.", "textDocument/codeLens", "codeLensProvider"),
	itemResolveTool("lsp_code_lens_resolve", "Resolve a code lens returned by lsp_code_lens.", "codeLens/resolve", "codeLensProvider.resolveProvider"),
	documentOnlyTool("lsp_document_link", "List links in a document.", "textDocument/documentLink", "documentLinkProvider"),
	itemResolveTool("lsp_document_link_resolve", "Resolve target information for a document link.", "documentLink/resolve", "documentLinkProvider.resolveProvider"),
	documentOnlyTool("lsp_document_color", "List color ranges in a document.", "textDocument/documentColor", "colorProvider"),
	colorPresentationTool(),
	rangeTool("lsp_formatting", "Format a document.", "textDocument/formatting", "documentFormattingProvider"),
	rangeTool("lsp_range_formatting", "Format a range of a document.", "textDocument/rangeFormatting", "documentRangeFormattingProvider"),
	onTypeFormattingTool(),
	renameTool(),
	prepareRenameTool(),
	documentOnlyTool("lsp_folding_range", "List folding ranges in a document.", "textDocument/foldingRange", "foldingRangeProvider"),
	{Name: "lsp_selection_range", Description: "Expand the selection range at a position.",
		Method: "textDocument/selectionRange", CapabilityPath: "selectionRangeProvider",
		Build: func(args map[string]any) (any, string, string, error) {
			params, uri, lang, err := positionParams(args)
			if err != nil {
				return nil, "", "", err
			}
			m := params.(map[string]any)
			m["positions"] = []any{m["position"]}
			delete(m, "position")
			return m, uri, lang, nil
		}},
	documentOnlyTool("lsp_inline_value", "List inline values in a document.", "textDocument/inlineValue", "inlineValueProvider"),
	documentOnlyTool("lsp_inlay_hint", "List inlay hints in a document.", "textDocument/inlayHint", "inlayHintProvider"),
	itemResolveTool("lsp_inlay_hint_resolve", "Resolve additional details for an inlay hint.", "inlayHint/resolve", "inlayHintProvider.resolveProvider"),
	simplePositionTool("lsp_call_hierarchy_prepare", "Prepare a call hierarchy at a position.", "textDocument/prepareCallHierarchy", "callHierarchyProvider"),
	itemResolveTool("lsp_call_hierarchy_incoming_calls", "Request incoming calls for a call hierarchy item.", "callHierarchy/incomingCalls", "callHierarchyProvider"),
	itemResolveTool("lsp_call_hierarchy_outgoing_calls", "Request outgoing calls for a call hierarchy item.", "callHierarchy/outgoingCalls", "callHierarchyProvider"),
	simplePositionTool("lsp_type_hierarchy_prepare", "Prepare a type hierarchy at a position.", "textDocument/prepareTypeHierarchy", "typeHierarchyProvider"),
	itemResolveTool("lsp_type_hierarchy_supertypes", "Fetch supertype information for a type hierarchy item.", "typeHierarchy/supertypes", "typeHierarchyProvider"),
	itemResolveTool("lsp_type_hierarchy_subtypes", "Fetch subtype information for a type hierarchy item.", "typeHierarchy/subtypes", "typeHierarchyProvider"),
	documentOnlyTool("lsp_semantic_tokens_full", "Request full semantic tokens for a document.", "textDocument/semanticTokens/full", "semanticTokensProvider"),
	semanticTokensFullDeltaTool(),
	semanticTokensRangeTool(),
	documentOnlyTool("lsp_workspace_diagnostic", "Request workspace-wide diagnostics.", "workspace/diagnostic", "diagnosticProvider"),
	documentOnlyTool("lsp_text_document_diagnostic", "Request diagnostics for a document.", "textDocument/diagnostic", "diagnosticProvider"),
	executeCommandTool(),
	workspaceSymbolTool(),
	itemResolveTool("lsp_workspace_symbol_resolve", "Resolve additional data for a workspace symbol item.", "workspaceSymbol/resolve", "workspaceSymbolProvider.resolveProvider"),
	filesArrayTool("lsp_will_create_files", "Request permission for workspace file creation.", "workspace/willCreateFiles", "workspace.fileOperations.willCreate"),
	filesArrayTool("lsp_will_rename_files", "Request permission for workspace file renames.", "workspace/willRenameFiles", "workspace.fileOperations.willRename"),
	filesArrayTool("lsp_will_delete_files", "Request permission for workspace file deletions.", "workspace/willDeleteFiles", "workspace.fileOperations.willDelete"),
	documentOnlyTool("lsp_text_document_content", "Resolve virtual content for a document.", "workspace/textDocumentContent", "workspace.textDocumentContentProvider"),
	configurationDoneLikeTool(),
}

func configurationDoneLikeTool() Tool {
	return Tool{
		Name:        "lsp_moniker",
		Description: "Request monikers for the symbol at a position.",
		Method:      "textDocument/moniker",
		Build: func(args map[string]any) (any, string, string, error) {
			return positionParams(args)
		},
	}
}

func simplePositionTool(name, desc, method, capability string) Tool {
	return Tool{
		Name: name, Description: desc, Method: method, CapabilityPath: capability,
		Build: func(args map[string]any) (any, string, string, error) {
			return positionParams(args)
		},
	}
}

func referencesTool() Tool {
	return Tool{
		Name: "lsp_references", Description: "Find references to the symbol at a position.",
		Method: "textDocument/references", CapabilityPath: "referencesProvider",
		Build: func(args map[string]any) (any, string, string, error) {
			params, uri, lang, err := positionParams(args)
			if err != nil {
				return nil, "", "", err
			}
			m := params.(map[string]any)
			includeDeclaration, _ := args["includeDeclaration"].(bool)
			m["context"] = map[string]any{"includeDeclaration": includeDeclaration}
			return m, uri, lang, nil
		},
	}
}

func documentOnlyTool(name, desc, method, capability string) Tool {
	return Tool{
		Name: name, Description: desc, Method: method, CapabilityPath: capability,
		Build: func(args map[string]any) (any, string, string, error) {
			uri, err := requireURI(args, name)
			if err != nil {
				return nil, "", "", err
			}
			return map[string]any{"textDocument": map[string]any{"uri": uri}}, uri, optionalLanguage(args), nil
		},
	}
}

func rangeTool(name, desc, method, capability string) Tool {
	return Tool{
		Name: name, Description: desc, Method: method, CapabilityPath: capability,
		Build: func(args map[string]any) (any, string, string, error) {
			uri, err := requireURI(args, name)
			if err != nil {
				return nil, "", "", err
			}
			params := map[string]any{"textDocument": map[string]any{"uri": uri}}
			if rng, ok := rangeFromArgs(args); ok {
				params["range"] = rng
			}
			for _, k := range []string{"options", "context"} {
				if v, ok := args[k]; ok {
					params[k] = v
				}
			}
			return params, uri, optionalLanguage(args), nil
		},
	}
}

func renameTool() Tool {
	return Tool{
		Name: "lsp_rename", Description: "Rename the symbol at a position.",
		Method: "textDocument/rename", CapabilityPath: "renameProvider",
		Build: func(args map[string]any) (any, string, string, error) {
			params, uri, lang, err := positionParams(args)
			if err != nil {
				return nil, "", "", err
			}
			newName, err := requireString(args, "newName", "lsp_rename")
			if err != nil {
				return nil, "", "", err
			}
			m := params.(map[string]any)
			m["newName"] = newName
			return m, uri, lang, nil
		},
	}
}

// itemResolveTool covers every "resolve additional data for an item
// returned by an earlier call" tool: the argument's item is forwarded
// as-is as the request params, per original_source's build_lsp_invocation
// (completionItem/resolve, codeAction/resolve, codeLens/resolve,
// documentLink/resolve, inlayHint/resolve, workspaceSymbol/resolve, and
// the call/type hierarchy traversal requests all pass the item straight
// through with no wrapper object).
func itemResolveTool(name, desc, method, capability string) Tool {
	return Tool{
		Name: name, Description: desc, Method: method, CapabilityPath: capability,
		Build: func(args map[string]any) (any, string, string, error) {
			item, ok := args["item"].(map[string]any)
			if !ok {
				return nil, "", "", bridgeerr.InvalidParams(name, "item must be an object")
			}
			return item, "", "", nil
		},
	}
}

func colorPresentationTool() Tool {
	return Tool{
		Name: "lsp_color_presentation", Description: "Request alternative color presentations for a color literal.",
		Method: "textDocument/colorPresentation", CapabilityPath: "colorProvider",
		Build: func(args map[string]any) (any, string, string, error) {
			uri, err := requireURI(args, "lsp_color_presentation")
			if err != nil {
				return nil, "", "", err
			}
			color, ok := args["color"]
			if !ok {
				return nil, "", "", bridgeerr.InvalidParams("lsp_color_presentation", "missing required field: color")
			}
			rng, ok := rangeFromArgs(args)
			if !ok {
				return nil, "", "", bridgeerr.InvalidParams("lsp_color_presentation", "missing required field: range")
			}
			return map[string]any{
				"textDocument": map[string]any{"uri": uri},
				"color":        color,
				"range":        rng,
			}, uri, optionalLanguage(args), nil
		},
	}
}

func onTypeFormattingTool() Tool {
	return Tool{
		Name: "lsp_on_type_formatting", Description: "Request formatting edits triggered by typing a character.",
		Method: "textDocument/onTypeFormatting", CapabilityPath: "documentOnTypeFormattingProvider",
		Build: func(args map[string]any) (any, string, string, error) {
			params, uri, lang, err := positionParams(args)
			if err != nil {
				return nil, "", "", err
			}
			ch, err := requireString(args, "ch", "lsp_on_type_formatting")
			if err != nil {
				return nil, "", "", err
			}
			options, ok := args["options"]
			if !ok {
				return nil, "", "", bridgeerr.InvalidParams("lsp_on_type_formatting", "missing required field: options")
			}
			m := params.(map[string]any)
			m["ch"] = ch
			m["options"] = options
			return m, uri, lang, nil
		},
	}
}

func prepareRenameTool() Tool {
	return Tool{
		Name: "lsp_prepare_rename", Description: "Check whether the symbol at a position can be renamed.",
		Method: "textDocument/prepareRename", CapabilityPath: "renameProvider.prepareProvider",
		Build: func(args map[string]any) (any, string, string, error) {
			return positionParams(args)
		},
	}
}

func semanticTokensFullDeltaTool() Tool {
	return Tool{
		Name: "lsp_semantic_tokens_full_delta", Description: "Request semantic token deltas relative to a previous result.",
		Method: "textDocument/semanticTokens/full/delta", CapabilityPath: "semanticTokensProvider.full.delta",
		Build: func(args map[string]any) (any, string, string, error) {
			uri, err := requireURI(args, "lsp_semantic_tokens_full_delta")
			if err != nil {
				return nil, "", "", err
			}
			prev, err := requireString(args, "previousResultId", "lsp_semantic_tokens_full_delta")
			if err != nil {
				return nil, "", "", err
			}
			return map[string]any{
				"textDocument":     map[string]any{"uri": uri},
				"previousResultId": prev,
			}, uri, optionalLanguage(args), nil
		},
	}
}

func semanticTokensRangeTool() Tool {
	return Tool{
		Name: "lsp_semantic_tokens_range", Description: "Request semantic tokens for a specific range of a document.",
		Method: "textDocument/semanticTokens/range", CapabilityPath: "semanticTokensProvider.range",
		Build: func(args map[string]any) (any, string, string, error) {
			uri, err := requireURI(args, "lsp_semantic_tokens_range")
			if err != nil {
				return nil, "", "", err
			}
			rng, ok := rangeFromArgs(args)
			if !ok {
				return nil, "", "", bridgeerr.InvalidParams("lsp_semantic_tokens_range", "missing required field: range")
			}
			return map[string]any{
				"textDocument": map[string]any{"uri": uri},
				"range":        rng,
			}, uri, optionalLanguage(args), nil
		},
	}
}

// filesArrayTool covers the three workspace.willCreate/Rename/DeleteFiles
// tools, each forwarding a raw `files` array of LSP file-operation
// descriptors untouched.
func filesArrayTool(name, desc, method, capability string) Tool {
	return Tool{
		Name: name, Description: desc, Method: method, CapabilityPath: capability,
		Build: func(args map[string]any) (any, string, string, error) {
			files, ok := args["files"].([]any)
			if !ok {
				return nil, "", "", bridgeerr.InvalidParams(name, "missing required field: files (array)")
			}
			return map[string]any{"files": files}, "", "", nil
		},
	}
}

func executeCommandTool() Tool {
	return Tool{
		Name: "lsp_execute_command", Description: "Execute a workspace command.",
		Method: "workspace/executeCommand", CapabilityPath: "executeCommandProvider",
		Build: func(args map[string]any) (any, string, string, error) {
			command, err := requireString(args, "command", "lsp_execute_command")
			if err != nil {
				return nil, "", "", err
			}
			params := map[string]any{"command": command}
			if a, ok := args["arguments"]; ok {
				params["arguments"] = a
			}
			return params, "", "", nil
		},
	}
}

func workspaceSymbolTool() Tool {
	return Tool{
		Name: "lsp_workspace_symbol", Description: "Search workspace symbols matching a query.",
		Method: "workspace/symbol", CapabilityPath: "workspaceSymbolProvider",
		Build: func(args map[string]any) (any, string, string, error) {
			query, err := requireString(args, "query", "lsp_workspace_symbol")
			if err != nil {
				return nil, "", "", err
			}
			return map[string]any{"query": query}, "", "", nil
		},
	}
}

func positionParams(args map[string]any) (any, string, string, error) {
	uri, err := requireURI(args, "position-based tool")
	if err != nil {
		return nil, "", "", err
	}
	line, ok1 := numberArg(args, "line")
	character, ok2 := numberArg(args, "character")
	if !ok1 || !ok2 {
		return nil, "", "", bridgeerr.InvalidParams("position-based tool", "line and character are required")
	}
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": line, "character": character},
	}, uri, optionalLanguage(args), nil
}

func rangeFromArgs(args map[string]any) (map[string]any, bool) {
	sl, ok1 := numberArg(args, "startLine")
	sc, ok2 := numberArg(args, "startCharacter")
	el, ok3 := numberArg(args, "endLine")
	ec, ok4 := numberArg(args, "endCharacter")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, false
	}
	return map[string]any{
		"start": map[string]any{"line": sl, "character": sc},
		"end":   map[string]any{"line": el, "character": ec},
	}, true
}

func requireURI(args map[string]any, tool string) (string, error) {
	v, ok := args["uri"]
	if !ok {
		return "", bridgeerr.InvalidParams(tool, "missing required field: uri")
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", bridgeerr.InvalidParams(tool, "uri must be a non-empty string")
	}
	return pooluri.Normalize(s), nil
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

func optionalLanguage(args map[string]any) string {
	if v, ok := args["languageId"].(string); ok {
		return v
	}
	return ""
}

func numberArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
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

// FilterByCapabilities returns the subset of Catalog (plus the always-
// present lsp_call/lsp_notify passthroughs, represented by the caller)
// that the stored capability record supports. A nil capability record
// means "advertise everything" (§4.4).
func FilterByCapabilities(caps json.RawMessage) []Tool {
	if caps == nil {
		return Catalog
	}
	out := make([]Tool, 0, len(Catalog))
	for _, t := range Catalog {
		if t.CapabilityPath == "" || capabilityPresent(caps, t.CapabilityPath) {
			out = append(out, t)
		}
	}
	return out
}

// capabilityPresent walks a dot-separated path (e.g.
// "completionProvider.resolveProvider" or
// "workspace.fileOperations.willCreate") through the server's capability
// record and reports whether the value found there is truthy: a JSON
// `true`, or any JSON object (mirroring original_source/lsp/src/mcp.rs's
// lsp_capability_truthy, which treats bare objects as "supported" and
// everything else but `true` as absent).
func capabilityPresent(caps json.RawMessage, path string) bool {
	var generic any
	if err := json.Unmarshal(caps, &generic); err != nil {
		return false
	}
	cur := generic
	for _, segment := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		v, ok := obj[segment]
		if !ok {
			return false
		}
		cur = v
	}
	switch v := cur.(type) {
	case bool:
		return v
	case map[string]any:
		return true
	default:
		return false
	}
}

// Dispatch resolves tool name + arguments to a downstream call against
// the pool, handling auto-open and the two passthrough tools per §4.4.
func Dispatch(ctx context.Context, p *pool.Pool, toolName string, args map[string]any) (json.RawMessage, error) {
	override, _ := args["server"].(string)

	if toolName == callToolName || toolName == notifyToolName {
		return dispatchPassthrough(ctx, p, toolName, args, override)
	}

	tool, ok := findTool(toolName)
	if !ok {
		return nil, bridgeerr.UnknownTool(toolName)
	}
	params, uriHint, langHint, err := tool.Build(args)
	if err != nil {
		return nil, err
	}

	resolved, err := p.ResolveCommand(override, uriHint, langHint)
	if err != nil {
		return nil, err
	}
	if tool.CapabilityPath != "" {
		client := p.ClientFor(resolved)
		caps, err := client.Capabilities(ctx, resolved)
		if err == nil && !capabilityPresent(caps, tool.CapabilityPath) {
			return nil, bridgeerr.UnknownTool(toolName)
		}
	}
	return p.Execute(ctx, resolved, func(ctx context.Context, client *lspclient.Client) (json.RawMessage, error) {
		if uriHint != "" {
			if err := p.EnsureDocumentOpen(ctx, resolved, uriHint, langHint); err != nil {
				return nil, err
			}
		}
		return client.Request(ctx, tool.Method, params, resolved)
	})
}

func dispatchPassthrough(ctx context.Context, p *pool.Pool, toolName string, args map[string]any, override string) (json.RawMessage, error) {
	method, ok := args["method"].(string)
	if !ok || method == "" {
		return nil, bridgeerr.InvalidParams(toolName, "missing required field: method")
	}
	params, err := decodeParams(args["params"])
	if err != nil {
		return nil, bridgeerr.InvalidParams(toolName, err.Error())
	}

	uriHint := uriHintFromParams(params)
	langHint := ""
	if method == "textDocument/didOpen" {
		langHint = languageHintFromDidOpen(params)
	}

	resolved, err := p.ResolveCommand(override, uriHint, langHint)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, resolved, func(ctx context.Context, client *lspclient.Client) (json.RawMessage, error) {
		if uriHint != "" && method != "textDocument/didOpen" && method != "textDocument/didClose" {
			if err := p.EnsureDocumentOpen(ctx, resolved, uriHint, langHint); err != nil {
				return nil, err
			}
		}

		if toolName == notifyToolName {
			if err := client.Notify(ctx, method, params, resolved); err != nil {
				return nil, err
			}
			applyOpenCloseAccounting(p, method, uriHint, resolved)
			return json.RawMessage(`{}`), nil
		}

		result, err := client.Request(ctx, method, params, resolved)
		if err != nil {
			return nil, err
		}
		applyOpenCloseAccounting(p, method, uriHint, resolved)
		return result, nil
	})
}

func applyOpenCloseAccounting(p *pool.Pool, method, uriHint, resolved string) {
	if uriHint == "" {
		return
	}
	switch method {
	case "textDocument/didOpen":
		p.AssociateDocument(uriHint, resolved)
	case "textDocument/didClose":
		p.ReleaseDocument(uriHint)
	}
}

func decodeParams(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, fmt.Errorf("params is a string but not valid JSON: %w", err)
		}
		return parsed, nil
	default:
		return v, nil
	}
}

// uriHintFromParams pulls a URI hint directly, from textDocument.uri, or
// by scanning an items array, per §4.4.
func uriHintFromParams(params any) string {
	obj, ok := params.(map[string]any)
	if !ok {
		return ""
	}
	if uri, ok := obj["uri"].(string); ok {
		return uri
	}
	if td, ok := obj["textDocument"].(map[string]any); ok {
		if uri, ok := td["uri"].(string); ok {
			return uri
		}
	}
	if items, ok := obj["items"].([]any); ok {
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				if uri, ok := m["uri"].(string); ok {
					return uri
				}
			}
		}
	}
	return ""
}

func languageHintFromDidOpen(params any) string {
	obj, ok := params.(map[string]any)
	if !ok {
		return ""
	}
	td, ok := obj["textDocument"].(map[string]any)
	if !ok {
		return ""
	}
	lang, _ := td["languageId"].(string)
	return lang
}
