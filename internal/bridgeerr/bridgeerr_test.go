package bridgeerr

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatProtocolErrorRendersMethodServerCodeMessage(t *testing.T) {
	err := FormatProtocolError("textDocument/hover", "gopls", -32601, "method not found", nil)
	if err.Kind != KindProtocol {
		t.Fatalf("expected KindProtocol, got %s", err.Kind)
	}
	want := "textDocument/hover on gopls failed (code -32601): method not found"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestFormatProtocolErrorAppendsData(t *testing.T) {
	err := FormatProtocolError("dap/launch", "delve", 1, "bad config", map[string]any{"field": "program"})
	if !strings.Contains(err.Error(), "[data:") {
		t.Fatalf("expected rendered message to include data, got %q", err.Error())
	}
}

func TestInvalidParamsNamesToolAndReason(t *testing.T) {
	err := InvalidParams("lsp_rename", "missing newName")
	if err.Kind != KindInvalidArgs {
		t.Fatalf("expected KindInvalidArgs, got %s", err.Kind)
	}
	if !strings.Contains(err.Error(), "lsp_rename") || !strings.Contains(err.Error(), "missing newName") {
		t.Fatalf("rendered message missing tool/reason: %q", err.Error())
	}
}

func TestUnknownToolRendersName(t *testing.T) {
	err := UnknownTool("not_a_tool")
	if err.Kind != KindUnknownTool {
		t.Fatalf("expected KindUnknownTool, got %s", err.Kind)
	}
	if !strings.Contains(err.Error(), "not_a_tool") {
		t.Fatalf("rendered message missing tool name: %q", err.Error())
	}
}

func TestWithHintsAttachesFieldsWithoutChangingRenderedMessage(t *testing.T) {
	err := SpawnFailed("gopls", errors.New("exec: not found"))
	before := err.Error()
	err = err.WithHints("initialize", "file:///tmp/main.go", "gopls")
	if err.Method != "initialize" || err.URIHint != "file:///tmp/main.go" || err.Server != "gopls" {
		t.Fatalf("hints not attached: %+v", err)
	}
	if err.Error() != before {
		t.Fatalf("WithHints changed rendered message: before %q after %q", before, err.Error())
	}
}

func TestInternalUsesUnderlyingErrorMessage(t *testing.T) {
	underlying := errors.New("unexpected nil pointer")
	err := Internal(underlying)
	if err.Kind != KindInternal {
		t.Fatalf("expected KindInternal, got %s", err.Kind)
	}
	if err.Error() != underlying.Error() {
		t.Fatalf("Error() = %q, want %q", err.Error(), underlying.Error())
	}
}
