package pool

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/codex-bridges/mcp-bridges/internal/lspclient"
	"github.com/codex-bridges/mcp-bridges/internal/transport"
)

func newTestPool() *Pool {
	return New("", transport.WriteAuto, nil, nil)
}

func TestResolveCommandPrecedence(t *testing.T) {
	p := newTestPool()
	p.AssociateDocument("file:///tmp/a.rs", "doc-server")

	// explicit beats everything
	got, err := p.ResolveCommand("explicit-cmd", "file:///tmp/a.rs", "rust")
	if err != nil || got != "explicit-cmd" {
		t.Fatalf("got %q err %v", got, err)
	}

	// doc beats language/extension
	got, err = p.ResolveCommand("", "file:///tmp/a.rs", "python")
	if err != nil || got != "doc-server" {
		t.Fatalf("got %q err %v", got, err)
	}

	// language beats extension
	got, err = p.ResolveCommand("", "file:///tmp/unseen.rs", "python")
	if err != nil || got != builtinLanguageCommand["python"] {
		t.Fatalf("got %q err %v", got, err)
	}

	// extension alone
	got, err = p.ResolveCommand("", "file:///tmp/unseen.rs", "")
	if err != nil || got != builtinLanguageCommand["rust"] {
		t.Fatalf("got %q err %v", got, err)
	}

	// nothing resolves -> error
	_, err = p.ResolveCommand("", "file:///tmp/unseen.unknownext", "")
	if err == nil {
		t.Fatalf("expected error when nothing resolves")
	}
}

func TestResolveCommandDefault(t *testing.T) {
	p := New("default-server", transport.WriteAuto, nil, nil)
	got, err := p.ResolveCommand("", "", "")
	if err != nil || got != "default-server" {
		t.Fatalf("got %q err %v", got, err)
	}
}

func TestAssociateReleaseAccounting(t *testing.T) {
	p := newTestPool()
	uri := "file:///tmp/a.go"
	if p.HasDocument(uri, "gopls") {
		t.Fatalf("should not be associated yet")
	}
	p.AssociateDocument(uri, "gopls")
	p.AssociateDocument(uri, "gopls") // repeated open must not multiply
	if !p.HasDocument(uri, "gopls") {
		t.Fatalf("expected association")
	}
	p.ReleaseDocument(uri)
	if p.HasDocument(uri, "gopls") {
		t.Fatalf("expected association removed")
	}
}

func TestServerMapOverrides(t *testing.T) {
	p := newTestPool()
	p.LoadServerMapOverrides(`{
		"languages": {"elixir": "elixir-ls"},
		"extensions": {"ex": "elixir-ls"},
		"lang:ocaml": "ocaml-lsp",
		"ext:ml": "ocaml-lsp",
		".mli": "ocaml-lsp"
	}`)
	if got, _ := p.ResolveCommand("", "", "elixir"); got != "elixir-ls" {
		t.Fatalf("languages override failed: %q", got)
	}
	if got, _ := p.ResolveCommand("", "file:///tmp/x.ex", ""); got != "elixir-ls" {
		t.Fatalf("extensions override failed: %q", got)
	}
	if got, _ := p.ResolveCommand("", "", "ocaml"); got != "ocaml-lsp" {
		t.Fatalf("lang: shorthand failed: %q", got)
	}
	if got, _ := p.ResolveCommand("", "file:///tmp/x.ml", ""); got != "ocaml-lsp" {
		t.Fatalf("ext: shorthand failed: %q", got)
	}
	if got, _ := p.ResolveCommand("", "file:///tmp/x.mli", ""); got != "ocaml-lsp" {
		t.Fatalf(". shorthand failed: %q", got)
	}
}

// TestExecuteSerializesConcurrentCallsToSameHelper guards against the
// auto-didOpen-then-request sequence interleaving with a concurrent
// dispatch against the same resolved server: without the per-helper
// lock, the two goroutines' "critical sections" below could interleave
// and the shared counter would observe something other than 0 then 1.
func TestExecuteSerializesConcurrentCallsToSameHelper(t *testing.T) {
	p := newTestPool()
	var mu sync.Mutex
	var active int
	var sawOverlap bool

	run := func() {
		_, _ = p.Execute(context.Background(), "gopls", func(ctx context.Context, client *lspclient.Client) (json.RawMessage, error) {
			mu.Lock()
			active++
			if active > 1 {
				sawOverlap = true
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return json.RawMessage(`{}`), nil
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); run() }()
	go func() { defer wg.Done(); run() }()
	wg.Wait()

	if sawOverlap {
		t.Fatalf("expected Execute to serialize calls against the same helper")
	}
}

func TestExecutePassesClientForResolved(t *testing.T) {
	p := newTestPool()
	result, err := p.Execute(context.Background(), "gopls", func(ctx context.Context, client *lspclient.Client) (json.RawMessage, error) {
		if client == nil {
			t.Fatalf("expected a non-nil client for the resolved helper")
		}
		return json.RawMessage(`{"ok":true}`), nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestServerMapOverridesIgnoresGarbage(t *testing.T) {
	p := newTestPool()
	p.LoadServerMapOverrides("not json")
	// should not panic, and built-ins remain intact
	if got, _ := p.ResolveCommand("", "", "go"); got != builtinLanguageCommand["go"] {
		t.Fatalf("built-in table corrupted: %q", got)
	}
}
