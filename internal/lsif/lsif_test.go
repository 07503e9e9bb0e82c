package lsif

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeGraph builds a graph with two overlapping ranges on one document,
// r1 (0,0)-(0,10) and r2 (0,2)-(0,6), each wired to its own result set.
// Only r2's result set carries definition and reference results, so a
// query resolves only if the shorter range r2 is picked.
func writeGraph(t *testing.T, path string) {
	t.Helper()
	lines := []string{
		`{"id":"1","type":"vertex","label":"document","uri":"file:///f"}`,
		`{"id":"2","type":"vertex","label":"range","start":{"line":0,"character":0},"end":{"line":0,"character":10}}`,
		`{"id":"3","type":"vertex","label":"range","start":{"line":0,"character":2},"end":{"line":0,"character":6}}`,
		`{"id":"4","type":"edge","label":"contains","outV":"1","inVs":["2","3"]}`,
		`{"id":"5","type":"vertex","label":"resultSet"}`,
		`{"id":"6","type":"edge","label":"next","outV":"3","inV":"5"}`,
		`{"id":"7","type":"vertex","label":"resultSet"}`,
		`{"id":"8","type":"edge","label":"next","outV":"2","inV":"7"}`,
		`{"id":"9","type":"edge","label":"textDocument/definition","outV":"5","inV":"10"}`,
		`{"id":"10","type":"edge","label":"item","outV":"10","inVs":["2"]}`,
		`{"id":"11","type":"edge","label":"textDocument/references","outV":"5","inV":"12"}`,
		`{"id":"13","type":"edge","label":"item","outV":"12","inVs":["3"],"property":"references"}`,
	}
	data := ""
	for _, l := range lines {
		data += l + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write graph: %v", err)
	}
}

func TestQueryDefinitionPicksShortestRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.lsif")
	writeGraph(t, path)

	idx := New()
	if err := idx.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := idx.QueryDefinition("file:///f", 0, 4)
	if err != nil {
		t.Fatalf("QueryDefinition: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one location, got %d", len(got))
	}
	if got[0]["uri"] != "file:///f" {
		t.Fatalf("unexpected uri: %v", got[0]["uri"])
	}
}

func TestQueryReferences(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.lsif")
	writeGraph(t, path)

	idx := New()
	if err := idx.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := idx.QueryReferences("file:///f", 0, 4, false)
	if err != nil {
		t.Fatalf("QueryReferences: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one reference location, got %d", len(got))
	}
}

func TestQueryHoverAlwaysFails(t *testing.T) {
	idx := New()
	if _, err := idx.QueryHover("file:///f", 0, 0); err == nil {
		t.Fatalf("expected hover to be unresolvable")
	}
}

func TestContainsIsHalfOpen(t *testing.T) {
	span := Span{Start: Pos{Line: 0, Character: 0}, End: Pos{Line: 0, Character: 10}}
	if !contains(span, Pos{Line: 0, Character: 0}) {
		t.Fatalf("expected start position to be contained")
	}
	if !contains(span, Pos{Line: 0, Character: 9}) {
		t.Fatalf("expected position just before end to be contained")
	}
	if contains(span, Pos{Line: 0, Character: 10}) {
		t.Fatalf("expected end position to be excluded (half-open)")
	}
}

func TestQueryUnknownDocument(t *testing.T) {
	idx := New()
	if _, err := idx.QueryDefinition("file:///missing", 0, 0); err == nil {
		t.Fatalf("expected error for unknown document")
	}
}

func TestWatchReloadsOnFileReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.lsif")
	writeGraph(t, path)

	idx := New()
	if err := idx.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	stop, err := idx.Watch(nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	// Rewrite the file with the same graph; the signal checked here is
	// only that a definition query keeps succeeding after the on-disk
	// file changes.
	writeGraph(t, path)

	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		if _, err := idx.QueryDefinition("file:///f", 0, 4); err == nil {
			return
		} else {
			lastErr = err
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("index did not stay queryable after reload: %v", lastErr)
}
