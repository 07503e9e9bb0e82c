// Package pool implements the language-server pool and document routing
// described in spec §4.3: a collection of per-command-line lspclient
// helpers plus the routing tables that decide which helper serves a
// given request.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
	"github.com/codex-bridges/mcp-bridges/internal/lspclient"
	"github.com/codex-bridges/mcp-bridges/internal/pooluri"
	"github.com/codex-bridges/mcp-bridges/internal/transport"
)

const maxDocumentBytes = 2 * 1024 * 1024 // 2 MiB, per §4.3 "ensure document open"

// builtinLanguageCommand is the default routing table for common
// languages, ported from the original language-server pool's built-in
// server map.
var builtinLanguageCommand = map[string]string{
	"shell":            "bash-language-server start",
	"c":                "clangd",
	"cpp":              "clangd",
	"go":               "gopls",
	"javascript":       "typescript-language-server --stdio",
	"javascriptreact":  "typescript-language-server --stdio",
	"typescript":       "typescript-language-server --stdio",
	"typescriptreact":  "typescript-language-server --stdio",
	"json":             "vscode-json-language-server --stdio",
	"markdown":         "marksman",
	"python":           "pylsp",
	"rust":             "rust-analyzer",
	"toml":             "taplo lsp stdio",
	"yaml":             "yaml-language-server --stdio",
	"zig":              "zls",
}

// builtinExtensionLanguage maps a file extension to its canonical
// languageId, used both to derive the default extension routing table
// and to infer a languageId for synthesized opens.
var builtinExtensionLanguage = map[string]string{
	"sh":   "shell",
	"bash": "shell",
	"c":    "c",
	"h":    "c",
	"cpp":  "cpp",
	"cc":   "cpp",
	"cxx":  "cpp",
	"hpp":  "cpp",
	"go":   "go",
	"js":   "javascript",
	"jsx":  "javascriptreact",
	"ts":   "typescript",
	"tsx":  "typescriptreact",
	"json": "json",
	"md":   "markdown",
	"py":   "python",
	"rs":   "rust",
	"toml": "toml",
	"yaml": "yaml",
	"yml":  "yaml",
	"zig":  "zig",
}

// Pool owns the routing tables and the map of live helpers, one per
// resolved command line.
type Pool struct {
	mu sync.Mutex

	managers       map[string]*lspclient.Client
	helperLocks    map[string]*sync.Mutex // resolved command line -> call lock
	docServers     map[string]string      // uri -> command line
	langMap        map[string]string      // languageId -> command line
	extMap         map[string]string      // extension -> command line
	extLanguageMap map[string]string      // extension -> languageId
	lastServer     string

	defaultCommand string
	writePref      transport.WritePreference
	logger         *zap.Logger
	notifySink     lspclient.NotifySink
}

// New builds a Pool seeded with the built-in routing defaults, a write
// framing preference, and an optional default command line (from the
// environment).
func New(defaultCommand string, writePref transport.WritePreference, logger *zap.Logger, sink lspclient.NotifySink) *Pool {
	p := &Pool{
		managers:       map[string]*lspclient.Client{},
		helperLocks:    map[string]*sync.Mutex{},
		docServers:     map[string]string{},
		langMap:        map[string]string{},
		extMap:         map[string]string{},
		extLanguageMap: map[string]string{},
		defaultCommand: defaultCommand,
		writePref:      writePref,
		logger:         logger,
		notifySink:     sink,
	}
	for lang, cmd := range builtinLanguageCommand {
		p.langMap[lang] = cmd
	}
	for ext, lang := range builtinExtensionLanguage {
		p.extLanguageMap[ext] = lang
		if cmd, ok := builtinLanguageCommand[lang]; ok {
			p.extMap[ext] = cmd
		}
	}
	return p
}

// serverMapOverrides is the shape of the environment's server-map JSON
// blob (§6): {"languages":{id:cmd}, "extensions":{ext:cmd},
// "lang:<id>":cmd, "ext:<e>":cmd, ".<e>":cmd}.
type serverMapOverrides struct {
	Languages  map[string]string `json:"languages"`
	Extensions map[string]string `json:"extensions"`
	Rest       map[string]string `json:"-"`
}

// LoadServerMapOverrides parses the environment's server-map JSON and
// augments the routing tables. Unparsable configuration is logged and
// ignored, per §4.3.
func (p *Pool) LoadServerMapOverrides(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		if p.logger != nil {
			p.logger.Warn("ignoring unparsable server map", zap.Error(err))
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if langsRaw, ok := generic["languages"]; ok {
		var langs map[string]string
		if err := json.Unmarshal(langsRaw, &langs); err == nil {
			for id, cmd := range langs {
				p.langMap[id] = cmd
			}
		}
	}
	if extsRaw, ok := generic["extensions"]; ok {
		var exts map[string]string
		if err := json.Unmarshal(extsRaw, &exts); err == nil {
			for ext, cmd := range exts {
				p.extMap[strings.ToLower(ext)] = cmd
			}
		}
	}
	for key, valRaw := range generic {
		var val string
		if err := json.Unmarshal(valRaw, &val); err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(key, "lang:"):
			p.langMap[strings.TrimPrefix(key, "lang:")] = val
		case strings.HasPrefix(key, "ext:"):
			p.extMap[strings.ToLower(strings.TrimPrefix(key, "ext:"))] = val
		case strings.HasPrefix(key, "."):
			p.extMap[strings.ToLower(strings.TrimPrefix(key, "."))] = val
		}
	}
}

// ResolveCommand implements §4.3's precedence: explicit override >
// document-URI ownership > language id > extension > environment
// default > failure.
func (p *Pool) ResolveCommand(explicit string, uri string, language string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolveCommandLocked(explicit, uri, language)
}

func (p *Pool) resolveCommandLocked(explicit, uri, language string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if uri != "" {
		normalized := pooluri.Normalize(uri)
		if cmd, ok := p.docServers[normalized]; ok {
			return cmd, nil
		}
	}
	if language != "" {
		if cmd, ok := p.langMap[language]; ok {
			return cmd, nil
		}
	}
	if uri != "" {
		ext := pooluri.ExtensionOf(uri)
		if cmd, ok := p.extMap[ext]; ok {
			return cmd, nil
		}
	}
	if p.defaultCommand != "" {
		return p.defaultCommand, nil
	}
	return "", bridgeerr.ConfigMissing("no server registered for this request")
}

// ClientFor returns (creating if necessary) the helper for a resolved
// command line.
func (p *Pool) ClientFor(resolved string) *lspclient.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.managers[resolved]; ok {
		p.lastServer = resolved
		return c
	}
	c := lspclient.New(resolved, p.writePref, p.logger, p.notifySink)
	p.managers[resolved] = c
	p.lastServer = resolved
	return c
}

// helperLock returns (creating if necessary) the call-serialization lock
// for a resolved command line.
func (p *Pool) helperLock(resolved string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.helperLocks[resolved]
	if !ok {
		lock = &sync.Mutex{}
		p.helperLocks[resolved] = lock
	}
	return lock
}

// Execute lends resolved's client to fn under that helper's call lock, so
// a multi-step sequence against one document (synthesize the auto-open,
// then issue the triggering request) runs atomically with respect to any
// other call dispatched against the same helper. Without this, a second
// goroutine's dispatch for the same document could interleave between the
// synthesized didOpen and the request it is meant to precede.
func (p *Pool) Execute(ctx context.Context, resolved string, fn func(ctx context.Context, client *lspclient.Client) (json.RawMessage, error)) (json.RawMessage, error) {
	client := p.ClientFor(resolved)
	lock := p.helperLock(resolved)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx, client)
}

// LastServer returns the most recently used command line, the tiebreak
// mentioned in §3's data model (not otherwise consulted by
// ResolveCommand, which never needs a tiebreak given its precedence
// order, but exposed for diagnostics/tests).
func (p *Pool) LastServer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastServer
}

// AssociateDocument records that uri is now owned by the helper running
// resolved. Opening the same URI again does not create a second
// association (§8 "Open/close accounting").
func (p *Pool) AssociateDocument(uri, resolved string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docServers[pooluri.Normalize(uri)] = resolved
}

// ReleaseDocument removes a document's association, e.g. on close.
func (p *Pool) ReleaseDocument(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.docServers, pooluri.Normalize(uri))
}

// HasDocument reports whether uri is already associated with resolved.
func (p *Pool) HasDocument(uri, resolved string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.docServers[pooluri.Normalize(uri)] == resolved
}

// LanguageForExtension infers a canonical languageId from a URI's
// extension, falling back to "plaintext".
func (p *Pool) LanguageForExtension(uri string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ext := pooluri.ExtensionOf(uri)
	if lang, ok := p.extLanguageMap[ext]; ok {
		return lang
	}
	return "plaintext"
}

// EnsureDocumentOpen synthesizes a textDocument/didOpen notification for
// uri against resolved's helper if the pool hasn't already associated
// the two, reading the file from disk and rejecting anything over
// maxDocumentBytes.
func (p *Pool) EnsureDocumentOpen(ctx context.Context, resolved, uri, languageHint string) error {
	if p.HasDocument(uri, resolved) {
		return nil
	}
	path, err := pooluri.FileURIToPath(pooluri.Normalize(uri))
	if err != nil {
		return bridgeerr.InvalidParams("auto-open", fmt.Sprintf("cannot resolve path for %s: %v", uri, err))
	}
	info, err := os.Stat(path)
	if err != nil {
		return bridgeerr.InvalidParams("auto-open", fmt.Sprintf("document not on disk: %s", uri))
	}
	if info.Size() > maxDocumentBytes {
		return bridgeerr.InvalidParams("auto-open", fmt.Sprintf("document %s exceeds the 2 MiB auto-open size limit", uri))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return bridgeerr.InvalidParams("auto-open", fmt.Sprintf("cannot read document: %s", uri))
	}

	language := languageHint
	if language == "" {
		language = p.LanguageForExtension(uri)
	}

	client := p.ClientFor(resolved)
	params := map[string]any{
		"textDocument": map[string]any{
			"uri":        pooluri.Normalize(uri),
			"languageId": language,
			"version":    1,
			"text":       string(data),
		},
	}
	if err := client.Notify(ctx, "textDocument/didOpen", params, resolved); err != nil {
		return err
	}
	p.AssociateDocument(uri, resolved)
	return nil
}

// ShutdownAll orderly-shuts-down every helper, aggregating every failure
// (not just the first) via go-multierror, and clears all routing tables.
func (p *Pool) ShutdownAll(ctx context.Context) error {
	p.mu.Lock()
	managers := make([]*lspclient.Client, 0, len(p.managers))
	for _, c := range p.managers {
		managers = append(managers, c)
	}
	p.managers = map[string]*lspclient.Client{}
	p.helperLocks = map[string]*sync.Mutex{}
	p.docServers = map[string]string{}
	p.langMap = map[string]string{}
	p.extMap = map[string]string{}
	p.extLanguageMap = map[string]string{}
	p.lastServer = ""
	p.mu.Unlock()

	var result error
	for _, c := range managers {
		if err := c.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
