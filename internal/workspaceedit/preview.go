// Package workspaceedit renders a human-readable preview of a
// workspace/applyEdit request the LSP bridge has declined, using the
// teacher's own diff library. The bridge never applies edits; this is
// diagnostic only, attached to the upstream event the bridge emits for
// the declined request (the downstream refusal reply carries no
// preview), so a caller can see what was being asked for.
package workspaceedit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type textEdit struct {
	Range struct {
		Start struct{ Line, Character int } `json:"start"`
		End   struct{ Line, Character int } `json:"end"`
	} `json:"range"`
	NewText string `json:"newText"`
}

type textDocumentEdit struct {
	TextDocument struct {
		URI string `json:"uri"`
	} `json:"textDocument"`
	Edits []textEdit `json:"edits"`
}

type workspaceEditParams struct {
	Edit struct {
		Changes map[string][]textEdit `json:"changes"`
		// DocumentChanges is only partially modeled: bridges never apply
		// edits, so only enough structure to render a preview is kept.
		DocumentChanges []textDocumentEdit `json:"documentChanges"`
	} `json:"edit"`
}

// Preview renders a best-effort unified-diff-flavored summary of the
// edits a workspace/applyEdit request asked for, for inclusion in the
// upstream event's preview field. It never fails hard: if the payload
// doesn't parse as a recognizable edit shape, it returns a short notice
// instead of an error, since this is a diagnostic aid, not a required
// operation.
func Preview(params json.RawMessage) string {
	var p workspaceEditParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "(edit preview unavailable: could not parse applyEdit params)"
	}

	var b strings.Builder
	dmp := diffmatchpatch.New()

	render := func(uri string, edits []textEdit) {
		fmt.Fprintf(&b, "--- %s\n", uri)
		for _, e := range edits {
			diffs := dmp.DiffMain("", e.NewText, false)
			fmt.Fprintf(&b, "@@ %d:%d-%d:%d @@\n%s\n",
				e.Range.Start.Line, e.Range.Start.Character,
				e.Range.End.Line, e.Range.End.Character,
				dmp.DiffPrettyText(diffs))
		}
	}

	for uri, edits := range p.Edit.Changes {
		render(uri, edits)
	}
	for _, dc := range p.Edit.DocumentChanges {
		render(dc.TextDocument.URI, dc.Edits)
	}

	if b.Len() == 0 {
		return "(no recognizable edits in applyEdit params)"
	}
	return b.String()
}
