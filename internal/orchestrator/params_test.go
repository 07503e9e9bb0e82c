package orchestrator

import "testing"

func TestNormalizeParamsString(t *testing.T) {
	got := normalizeParams("hello")
	items, ok := got["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected a single text item, got %v", got)
	}
}

func TestNormalizeParamsJSONString(t *testing.T) {
	got := normalizeParams(`{"foo":"bar"}`)
	if got["foo"] != "bar" {
		t.Fatalf("expected parsed object, got %v", got)
	}
}

func TestNormalizeParamsNil(t *testing.T) {
	got := normalizeParams(nil)
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestNormalizeParamsObjectPassthrough(t *testing.T) {
	in := map[string]any{"a": 1}
	got := normalizeParams(in)
	if got["a"] != 1 {
		t.Fatalf("expected passthrough, got %v", got)
	}
}

func TestNormalizeParamsScalar(t *testing.T) {
	got := normalizeParams(42)
	items, ok := got["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected a single text item for scalar, got %v", got)
	}
}

func TestFoldTextFields(t *testing.T) {
	params := map[string]any{"text": "hi there"}
	foldTextFields(params)
	items, ok := params["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected folded items, got %v", params)
	}
	if _, ok := params["text"]; ok {
		t.Fatalf("expected text field to be removed after folding")
	}
}

func TestFoldTextFieldsDoesNotOverrideExistingItems(t *testing.T) {
	params := map[string]any{"text": "hi", "items": []any{"already set"}}
	foldTextFields(params)
	items := params["items"].([]any)
	if len(items) != 1 || items[0] != "already set" {
		t.Fatalf("existing items should not be touched, got %v", items)
	}
}

func TestInjectConversationID(t *testing.T) {
	a := newAgent("agent-1", "", nil, nil)
	a.setLastConversationID("conv-123")
	params := map[string]any{}
	injectConversationID(params, a)
	if params["conversationId"] != "conv-123" {
		t.Fatalf("expected injected conversation id, got %v", params)
	}
}

func TestInjectConversationIDDoesNotOverride(t *testing.T) {
	a := newAgent("agent-1", "", nil, nil)
	a.setLastConversationID("conv-remembered")
	params := map[string]any{"conversationId": "conv-explicit"}
	injectConversationID(params, a)
	if params["conversationId"] != "conv-explicit" {
		t.Fatalf("explicit id should win, got %v", params)
	}
}

func TestFillSendUserTurnDefaults(t *testing.T) {
	params := map[string]any{}
	fillSendUserTurnDefaults(params)
	if params["cwd"] != bridgeCwd() {
		t.Fatalf("expected bridge cwd default, got %v", params["cwd"])
	}
	if params["approvalPolicy"] != "never" {
		t.Fatalf("expected approvalPolicy default, got %v", params["approvalPolicy"])
	}
	sandbox, ok := params["sandboxPolicy"].(map[string]any)
	if !ok || sandbox["mode"] != "read-only" {
		t.Fatalf("expected sandboxPolicy default, got %v", params["sandboxPolicy"])
	}
	if params["model"] != "gpt-4" {
		t.Fatalf("expected model default, got %v", params["model"])
	}
	if params["summary"] != "auto" {
		t.Fatalf("expected summary default, got %v", params["summary"])
	}
}

func TestFillSendUserTurnDefaultsRespectsExplicit(t *testing.T) {
	params := map[string]any{"model": "custom-model"}
	fillSendUserTurnDefaults(params)
	if params["model"] != "custom-model" {
		t.Fatalf("explicit model should survive, got %v", params["model"])
	}
}
