package lspclient

import (
	"encoding/json"
	"testing"
)

func TestDefaultServerResponseWorkspaceConfiguration(t *testing.T) {
	params, _ := json.Marshal(map[string]any{"items": []any{1, 2, 3}})
	result, rpcErr := defaultServerResponse("workspace/configuration", params)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	var arr []any
	if err := json.Unmarshal(result, &arr); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(arr) != 3 {
		t.Fatalf("expected 3 nulls, got %d", len(arr))
	}
	for _, v := range arr {
		if v != nil {
			t.Fatalf("expected null entries, got %v", v)
		}
	}
}

func TestDefaultServerResponseApplyEdit(t *testing.T) {
	result, rpcErr := defaultServerResponse("workspace/applyEdit", nil)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	var body struct {
		Applied       bool   `json:"applied"`
		FailureReason string `json:"failureReason"`
	}
	if err := json.Unmarshal(result, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Applied {
		t.Fatalf("expected applied=false")
	}
	if body.FailureReason == "" {
		t.Fatalf("expected a failure reason")
	}
}

func TestDefaultServerResponseUnknownMethod(t *testing.T) {
	_, rpcErr := defaultServerResponse("totally/unknown", nil)
	if rpcErr == nil {
		t.Fatalf("expected an error for unknown method")
	}
	if rpcErr.Code != errMethodNotFound {
		t.Fatalf("expected method-not-found code, got %d", rpcErr.Code)
	}
}

func TestDefaultServerResponseRefreshFamily(t *testing.T) {
	for _, method := range []string{
		"workspace/codeLens/refresh",
		"workspace/semanticTokens/refresh",
		"workspace/inlineValue/refresh",
		"workspace/inlayHint/refresh",
		"workspace/diagnostic/refresh",
		"client/registerCapability",
		"workspace/workspaceFolders",
	} {
		result, rpcErr := defaultServerResponse(method, nil)
		if rpcErr != nil {
			t.Fatalf("%s: unexpected error %v", method, rpcErr)
		}
		if string(result) != "null" {
			t.Fatalf("%s: expected null result, got %s", method, result)
		}
	}
}
