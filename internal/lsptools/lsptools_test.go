package lsptools

import "testing"

func TestPositionParamsRequiresLineAndCharacter(t *testing.T) {
	_, _, _, err := positionParams(map[string]any{"uri": "file:///a.go"})
	if err == nil {
		t.Fatalf("expected error when line/character missing")
	}
}

func TestPositionParamsBuildsShape(t *testing.T) {
	params, uri, _, err := positionParams(map[string]any{
		"uri": "file:///a.go", "line": float64(3), "character": float64(5),
	})
	if err != nil {
		t.Fatalf("positionParams: %v", err)
	}
	if uri != "file:///a.go" {
		t.Fatalf("expected normalized uri passthrough, got %q", uri)
	}
	m := params.(map[string]any)
	pos := m["position"].(map[string]any)
	if pos["line"] != float64(3) || pos["character"] != float64(5) {
		t.Fatalf("unexpected position: %v", pos)
	}
}

func TestRequireURIRejectsMissing(t *testing.T) {
	if _, err := requireURI(map[string]any{}, "lsp_hover"); err == nil {
		t.Fatalf("expected error for missing uri")
	}
}

func TestFindToolKnownAndUnknown(t *testing.T) {
	if _, ok := findTool("lsp_hover"); !ok {
		t.Fatalf("expected lsp_hover to be registered")
	}
	if _, ok := findTool("lsp_nonexistent"); ok {
		t.Fatalf("did not expect lsp_nonexistent to be registered")
	}
}

func TestFilterByCapabilitiesNilAdvertisesEverything(t *testing.T) {
	if len(FilterByCapabilities(nil)) != len(Catalog) {
		t.Fatalf("expected nil capabilities to advertise the full catalog")
	}
}

func TestFilterByCapabilitiesRestrictsToPresentKeys(t *testing.T) {
	caps := []byte(`{"definitionProvider": true}`)
	filtered := FilterByCapabilities(caps)
	sawDefinition := false
	for _, t2 := range filtered {
		if t2.Name == "lsp_definition" {
			sawDefinition = true
		}
		if t2.Name == "lsp_rename" {
			t.Fatalf("rename should have been filtered out")
		}
	}
	if !sawDefinition {
		t.Fatalf("expected lsp_definition to survive filtering")
	}
}

func TestFilterByCapabilitiesHonorsNestedResolveFlag(t *testing.T) {
	withFlag := []byte(`{"codeLensProvider": {"resolveProvider": true}}`)
	filtered := FilterByCapabilities(withFlag)
	found := false
	for _, tool := range filtered {
		if tool.Name == "lsp_code_lens_resolve" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected lsp_code_lens_resolve to survive when resolveProvider is true")
	}

	withoutFlag := []byte(`{"codeLensProvider": {"resolveProvider": false}}`)
	filtered = FilterByCapabilities(withoutFlag)
	for _, tool := range filtered {
		if tool.Name == "lsp_code_lens_resolve" {
			t.Fatalf("expected lsp_code_lens_resolve to be filtered out when resolveProvider is false")
		}
	}
}

func TestCapabilityPresentWalksDottedPath(t *testing.T) {
	caps := []byte(`{"workspace": {"fileOperations": {"willCreate": {}}}}`)
	if !capabilityPresent(caps, "workspace.fileOperations.willCreate") {
		t.Fatalf("expected nested object to be truthy")
	}
	if capabilityPresent(caps, "workspace.fileOperations.willRename") {
		t.Fatalf("expected absent sibling key to be false")
	}
}

func TestItemResolveToolRequiresObjectItem(t *testing.T) {
	tool, ok := findTool("lsp_completion_item_resolve")
	if !ok {
		t.Fatalf("expected lsp_completion_item_resolve to be registered")
	}
	if _, _, _, err := tool.Build(map[string]any{}); err == nil {
		t.Fatalf("expected error when item is missing")
	}
	params, _, _, err := tool.Build(map[string]any{"item": map[string]any{"label": "foo"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if params.(map[string]any)["label"] != "foo" {
		t.Fatalf("expected item forwarded verbatim as params, got %v", params)
	}
}

func TestUriHintFromParamsVariants(t *testing.T) {
	if got := uriHintFromParams(map[string]any{"uri": "file:///x"}); got != "file:///x" {
		t.Fatalf("direct uri: got %q", got)
	}
	nested := map[string]any{"textDocument": map[string]any{"uri": "file:///y"}}
	if got := uriHintFromParams(nested); got != "file:///y" {
		t.Fatalf("nested textDocument.uri: got %q", got)
	}
	items := map[string]any{"items": []any{map[string]any{"uri": "file:///z"}}}
	if got := uriHintFromParams(items); got != "file:///z" {
		t.Fatalf("items scan: got %q", got)
	}
	if got := uriHintFromParams(map[string]any{}); got != "" {
		t.Fatalf("expected empty hint, got %q", got)
	}
}

func TestDecodeParamsAcceptsJSONStringAndObject(t *testing.T) {
	v, err := decodeParams(`{"a":1}`)
	if err != nil {
		t.Fatalf("decodeParams string: %v", err)
	}
	if v.(map[string]any)["a"] != float64(1) {
		t.Fatalf("unexpected decode: %v", v)
	}
	v2, err := decodeParams(map[string]any{"b": 2})
	if err != nil {
		t.Fatalf("decodeParams object: %v", err)
	}
	if v2.(map[string]any)["b"] != 2 {
		t.Fatalf("unexpected passthrough: %v", v2)
	}
	if _, err := decodeParams("not json"); err == nil {
		t.Fatalf("expected error for invalid JSON string")
	}
}
