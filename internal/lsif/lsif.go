// Package lsif implements the LSIF (Language Server Index Format) graph
// index: a line-delimited JSON file of vertices and edges describing
// precomputed code intelligence, queried for definitions and references
// by the shortest range containing a position.
package lsif

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Pos is a zero-based line/character position, matching LSP's shape.
type Pos struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

func posLeq(a, b Pos) bool { return a.Line < b.Line || (a.Line == b.Line && a.Character <= b.Character) }
func posLt(a, b Pos) bool  { return a.Line < b.Line || (a.Line == b.Line && a.Character < b.Character) }

// Span is a start/end range.
type Span struct {
	Start Pos `json:"start"`
	End   Pos `json:"end"`
}

func contains(s Span, p Pos) bool {
	return posLeq(s.Start, p) && posLt(p, s.End)
}

// length is the tie-break metric from §8 scenario 6: shorter spans win.
func length(s Span) int64 {
	return int64(s.End.Line-s.Start.Line)*1_000_000 + int64(s.End.Character) - int64(s.Start.Character)
}

type rawVertex struct {
	ID     json.Number     `json:"id"`
	Type   string          `json:"type"`
	Label  string          `json:"label"`
	URI    string          `json:"uri,omitempty"`
	Start  *Pos            `json:"start,omitempty"`
	End    *Pos            `json:"end,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type rawEdge struct {
	ID       json.Number   `json:"id"`
	Type     string        `json:"type"`
	Label    string        `json:"label"`
	OutV     json.Number   `json:"outV"`
	InV      json.Number   `json:"inV"`
	OutVs    []json.Number `json:"outVs"`
	InVs     []json.Number `json:"inVs"`
	Document json.Number   `json:"document"`
	Property string        `json:"property,omitempty"`
}

// graph is the mutable payload of an Index. Load builds a fresh graph
// and Index swaps its pointer in under lock, rather than copying field
// by field over a live mutex (which would corrupt the lock held during
// the swap).
type graph struct {
	documents map[string]string // id -> uri
	uriToDoc  map[string]string // uri -> id

	ranges   map[string]Span
	rangeDoc map[string]string // range id -> document id

	rangeToResultSet map[string]string // range id -> resultSet id

	resultSetToDefinitionResult map[string]string
	resultSetToReferenceResult  map[string]string

	definitionResultRanges map[string][]string            // definitionResult id -> range ids
	referenceResultRanges  map[string]map[string][]string // referenceResult id -> property bucket -> range ids

	hoverResults map[string]json.RawMessage // present but intentionally unwired to ranges (open question i)
}

func newGraph() *graph {
	return &graph{
		documents:                   map[string]string{},
		uriToDoc:                    map[string]string{},
		ranges:                      map[string]Span{},
		rangeDoc:                    map[string]string{},
		rangeToResultSet:            map[string]string{},
		resultSetToDefinitionResult: map[string]string{},
		resultSetToReferenceResult:  map[string]string{},
		definitionResultRanges:      map[string][]string{},
		referenceResultRanges:       map[string]map[string][]string{},
		hoverResults:                map[string]json.RawMessage{},
	}
}

// Index is the in-memory graph, built by Load and optionally kept fresh
// by Watch.
type Index struct {
	mu sync.RWMutex
	g  *graph

	loadedPath string
	watcher    *fsnotify.Watcher
	logger     *zap.Logger
}

// New returns an empty index.
func New() *Index {
	return &Index{g: newGraph()}
}

// Load reads an LSIF file (one JSON vertex or edge per line) and
// (re)populates the index, replacing any previous contents.
func (idx *Index) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("lsif: open %s: %w", path, err)
	}
	defer f.Close()

	next := newGraph()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var kind struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &kind); err != nil {
			return fmt.Errorf("lsif: line %d: %w", lineNo, err)
		}
		switch kind.Type {
		case "vertex":
			var v rawVertex
			if err := json.Unmarshal(line, &v); err != nil {
				return fmt.Errorf("lsif: line %d: %w", lineNo, err)
			}
			next.addVertex(v)
		case "edge":
			var e rawEdge
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("lsif: line %d: %w", lineNo, err)
			}
			next.addEdge(e)
		default:
			return fmt.Errorf("lsif: line %d: unknown type %q", lineNo, kind.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("lsif: scan %s: %w", path, err)
	}

	idx.mu.Lock()
	idx.g = next
	idx.loadedPath = path
	idx.mu.Unlock()
	return nil
}

// Watch starts watching the directory containing the most recently
// Loaded file and reloads the index whenever that file is written or
// replaced, logging (rather than failing) reload errors since a
// transient write-in-progress file is expected from some indexers. The
// returned stop function closes the underlying watcher. If Load has not
// set a path yet, Watch returns an error and a no-op stop function.
func (idx *Index) Watch(logger *zap.Logger) (stop func(), err error) {
	idx.mu.RLock()
	path := idx.loadedPath
	idx.mu.RUnlock()
	if path == "" {
		return func() {}, fmt.Errorf("lsif: cannot watch before Load has set a path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return func() {}, fmt.Errorf("lsif: fsnotify: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return func() {}, fmt.Errorf("lsif: watch %s: %w", dir, err)
	}

	idx.mu.Lock()
	idx.watcher = watcher
	idx.logger = logger
	idx.mu.Unlock()

	done := make(chan struct{})
	go idx.watchLoop(watcher, path, done)
	return func() {
		watcher.Close()
		<-done
	}, nil
}

func (idx *Index) watchLoop(watcher *fsnotify.Watcher, path string, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Indexers often write a new file and rename it into place;
			// give that a moment to settle before reloading.
			time.Sleep(50 * time.Millisecond)
			if err := idx.Load(path); err != nil && idx.logger != nil {
				idx.logger.Warn("lsif reload failed", zap.String("path", path), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if idx.logger != nil {
				idx.logger.Warn("lsif watcher error", zap.Error(err))
			}
		}
	}
}

func (g *graph) addVertex(v rawVertex) {
	switch v.Label {
	case "document":
		g.documents[v.ID.String()] = v.URI
		g.uriToDoc[v.URI] = v.ID.String()
	case "range":
		if v.Start != nil && v.End != nil {
			g.ranges[v.ID.String()] = Span{Start: *v.Start, End: *v.End}
		}
	case "resultSet":
		// no payload beyond its id; referenced by edges
	case "hoverResult":
		g.hoverResults[v.ID.String()] = v.Result
	}
}

func (g *graph) addEdge(e rawEdge) {
	switch e.Label {
	case "contains":
		doc := e.OutV.String()
		for _, rv := range e.InVs {
			g.rangeDoc[rv.String()] = doc
		}
	case "next":
		g.rangeToResultSet[e.OutV.String()] = e.InV.String()
	case "textDocument/definition":
		g.resultSetToDefinitionResult[e.OutV.String()] = e.InV.String()
	case "textDocument/references":
		g.resultSetToReferenceResult[e.OutV.String()] = e.InV.String()
	case "item":
		property := e.Property
		if property == "" {
			property = "references"
		}
		target := e.OutV.String()
		// A bare (no-property) item edge is always a definitionResult
		// edge per the LSIF format; everything else also lands in the
		// referenceResult property buckets.
		if e.Property == "" {
			g.definitionResultRanges[target] = append(g.definitionResultRanges[target], idsOf(e.InVs)...)
		}
		if g.referenceResultRanges[target] == nil {
			g.referenceResultRanges[target] = map[string][]string{}
		}
		g.referenceResultRanges[target][property] = append(g.referenceResultRanges[target][property], idsOf(e.InVs)...)
	}
}

func idsOf(ns []json.Number) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.String()
	}
	return out
}

// findBestRange returns the id of the shortest range in docID containing
// pos, or "" if none contains it.
func (g *graph) findBestRange(docID string, pos Pos) string {
	best := ""
	var bestLen int64
	for rangeID, span := range g.ranges {
		if g.rangeDoc[rangeID] != docID {
			continue
		}
		if !contains(span, pos) {
			continue
		}
		l := length(span)
		if best == "" || l < bestLen {
			best = rangeID
			bestLen = l
		}
	}
	return best
}

func (g *graph) locationOf(rangeID string) (map[string]any, bool) {
	span, ok := g.ranges[rangeID]
	if !ok {
		return nil, false
	}
	docID, ok := g.rangeDoc[rangeID]
	if !ok {
		return nil, false
	}
	uri, ok := g.documents[docID]
	if !ok {
		return nil, false
	}
	return map[string]any{
		"uri": uri,
		"range": map[string]any{
			"start": span.Start,
			"end":   span.End,
		},
	}, true
}

// QueryDefinition resolves the definition(s) of the symbol at uri/line/
// character, per §8 scenario 6 (shortest containing range).
func (idx *Index) QueryDefinition(uri string, line, character uint32) ([]map[string]any, error) {
	idx.mu.RLock()
	g := idx.g
	idx.mu.RUnlock()

	docID, ok := g.uriToDoc[uri]
	if !ok {
		return nil, fmt.Errorf("lsif: unknown document %s", uri)
	}
	rangeID := g.findBestRange(docID, Pos{Line: line, Character: character})
	if rangeID == "" {
		return nil, fmt.Errorf("lsif: no range contains %s:%d:%d", uri, line, character)
	}
	resultSet, ok := g.rangeToResultSet[rangeID]
	if !ok {
		return nil, fmt.Errorf("lsif: range has no result set")
	}
	defResult, ok := g.resultSetToDefinitionResult[resultSet]
	if !ok {
		return nil, fmt.Errorf("lsif: no definition result for this position")
	}
	var out []map[string]any
	for _, rid := range g.definitionResultRanges[defResult] {
		if loc, ok := g.locationOf(rid); ok {
			out = append(out, loc)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("lsif: definition result resolved to no ranges")
	}
	return out, nil
}

// QueryReferences resolves references (and, optionally, declarations)
// of the symbol at uri/line/character.
func (idx *Index) QueryReferences(uri string, line, character uint32, includeDeclarations bool) ([]map[string]any, error) {
	idx.mu.RLock()
	g := idx.g
	idx.mu.RUnlock()

	docID, ok := g.uriToDoc[uri]
	if !ok {
		return nil, fmt.Errorf("lsif: unknown document %s", uri)
	}
	rangeID := g.findBestRange(docID, Pos{Line: line, Character: character})
	if rangeID == "" {
		return nil, fmt.Errorf("lsif: no range contains %s:%d:%d", uri, line, character)
	}
	resultSet, ok := g.rangeToResultSet[rangeID]
	if !ok {
		return nil, fmt.Errorf("lsif: range has no result set")
	}
	refResult, ok := g.resultSetToReferenceResult[resultSet]
	if !ok {
		return nil, fmt.Errorf("lsif: no reference result for this position")
	}
	buckets := g.referenceResultRanges[refResult]
	var ids []string
	ids = append(ids, buckets["references"]...)
	ids = append(ids, buckets["definitions"]...)
	if includeDeclarations {
		ids = append(ids, buckets["declarations"]...)
	}
	seen := map[string]bool{}
	var out []map[string]any
	for _, rid := range ids {
		if seen[rid] {
			continue
		}
		seen[rid] = true
		if loc, ok := g.locationOf(rid); ok {
			out = append(out, loc)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("lsif: reference result resolved to no ranges")
	}
	return out, nil
}

// QueryHover always fails: the index never links a hoverResult to a
// range via an edge, so there is nothing to resolve. This is a
// deliberate open question carried from the original design, not a
// missing feature.
func (idx *Index) QueryHover(uri string, line, character uint32) (json.RawMessage, error) {
	return nil, fmt.Errorf("lsif: hover is not resolvable from this index (no hover edge is ever ingested)")
}
