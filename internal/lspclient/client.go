// Package lspclient implements the per-helper client state machine for
// an LSP-speaking language server: handshake, capability capture,
// request/response correlation via an inline wait loop (only one client
// request is ever in flight against a single LSP helper, per spec §9),
// server-initiated request defaults, and graceful/forceful shutdown.
package lspclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
	"github.com/codex-bridges/mcp-bridges/internal/childlog"
	"github.com/codex-bridges/mcp-bridges/internal/shellsplit"
	"github.com/codex-bridges/mcp-bridges/internal/sysproc"
	"github.com/codex-bridges/mcp-bridges/internal/transport"
	"github.com/codex-bridges/mcp-bridges/internal/workspaceedit"
)

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const errMethodNotFound = -32601

// NotifySink receives every notification and server-initiated request
// observed outside of a direct correlation match, for upstream
// forwarding (events), not required to be non-nil.
type NotifySink func(method string, params json.RawMessage)

// Client owns one language server child process. mu serializes every
// operation against this helper's streams: "at most one request is in
// flight on a single helper at a time" (spec §4.3/§5).
type Client struct {
	mu sync.Mutex

	label      string
	writePref  transport.WritePreference
	logger     *zap.Logger
	notifySink NotifySink

	command string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stream  *transport.Stream
	nextID  int64
	caps    json.RawMessage
	done    chan struct{} // closed when the child's Wait() returns
}

// New constructs a Client. label is used in error messages (the
// "resolved server label").
func New(label string, writePref transport.WritePreference, logger *zap.Logger, sink NotifySink) *Client {
	return &Client{label: label, writePref: writePref, logger: logger, notifySink: sink}
}

// Command returns the command line currently (or most recently) running.
func (c *Client) Command() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.command
}

func (c *Client) running() bool {
	if c.cmd == nil || c.cmd.Process == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// EnsureStarted spawns the child if necessary (or restarts it if
// override differs from the currently running command, or the child has
// exited), then performs the handshake.
func (c *Client) EnsureStarted(ctx context.Context, override string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureStartedLocked(ctx, override)
}

func (c *Client) ensureStartedLocked(ctx context.Context, override string) error {
	resolved := override
	if resolved == "" {
		resolved = c.command
	}
	if resolved == "" {
		return bridgeerr.ConfigMissing("no command resolved for " + c.label)
	}

	if c.running() && c.stream != nil && resolved == c.command {
		return nil
	}
	if c.running() {
		_ = c.shutdownLocked(ctx)
	}
	return c.start(ctx, resolved)
}

func (c *Client) start(ctx context.Context, commandLine string) error {
	args, err := shellsplit.Split(commandLine)
	if err != nil {
		return bridgeerr.SpawnFailed(commandLine, err)
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = sysproc.AttrForGroup()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return bridgeerr.SpawnFailed(commandLine, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return bridgeerr.SpawnFailed(commandLine, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return bridgeerr.SpawnFailed(commandLine, err)
	}
	if err := cmd.Start(); err != nil {
		return bridgeerr.SpawnFailed(commandLine, err)
	}
	go childlog.Pipe(c.label, stderr, c.logger)

	c.cmd = cmd
	c.stdin = stdin
	c.stream = transport.New(stdin, stdout, c.writePref)
	c.command = commandLine
	c.nextID = 1
	c.caps = nil
	c.done = make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(c.done)
	}()

	if err := c.handshake(ctx); err != nil {
		_ = c.shutdownLocked(ctx)
		return err
	}
	return nil
}

// handshake implements §4.2.1: send "initialize", tolerate interleaved
// notifications and server-initiated requests while waiting for the
// matching reply, then send "initialized".
func (c *Client) handshake(ctx context.Context) error {
	id := c.nextID
	c.nextID++

	params := clientCapabilitiesParams()
	if err := c.writeRequest(id, "initialize", params); err != nil {
		return bridgeerr.Transport(err)
	}

	for {
		msg, err := c.stream.ReadMessage()
		if err != nil {
			return bridgeerr.Transport(err)
		}
		var m rpcMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}
		switch {
		case m.ID != nil && m.Method == "" && *m.ID == id:
			if m.Error != nil {
				return bridgeerr.FormatProtocolError("initialize", c.label, m.Error.Code, m.Error.Message, m.Error.Data)
			}
			c.caps = m.Result
			return c.notifyRaw("initialized", json.RawMessage(`{}`))
		case m.ID != nil && m.Method != "":
			c.replyServerRequest(m)
		case m.ID != nil:
			// response to an id we no longer track during handshake: discard
		default:
			c.forwardNotification(m)
		}
	}
}

// Request writes a request and blocks, servicing any interleaved
// notifications or server-initiated requests, until the matching
// response arrives.
func (c *Client) Request(ctx context.Context, method string, params any, override string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureStartedLocked(ctx, override); err != nil {
		return nil, err
	}

	id := c.nextID
	c.nextID++

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, bridgeerr.Internal(fmt.Errorf("marshal params for %s: %w", method, err))
	}
	if err := c.writeRequest(id, method, raw); err != nil {
		c.markDead()
		return nil, bridgeerr.Transport(err)
	}

	for {
		msg, err := c.stream.ReadMessage()
		if err != nil {
			c.markDead()
			return nil, bridgeerr.Transport(err)
		}
		var m rpcMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}
		switch {
		case m.ID != nil && m.Method == "" && *m.ID == id:
			if m.Error != nil {
				return nil, bridgeerr.FormatProtocolError(method, c.label, m.Error.Code, m.Error.Message, m.Error.Data).WithHints(method, "", c.label)
			}
			return m.Result, nil
		case m.ID != nil && m.Method != "":
			c.replyServerRequest(m)
		case m.ID != nil:
			// stale/unknown id: discard
		default:
			c.forwardNotification(m)
		}
	}
}

// Notify writes a notification; no reply is awaited.
func (c *Client) Notify(ctx context.Context, method string, params any, override string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureStartedLocked(ctx, override); err != nil {
		return err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return bridgeerr.Internal(fmt.Errorf("marshal params for %s: %w", method, err))
	}
	if err := c.notifyRaw(method, raw); err != nil {
		c.markDead()
		return bridgeerr.Transport(err)
	}
	return nil
}

// Capabilities returns the stored capability record, starting the helper
// if necessary. If no command is configured at all, it returns nil
// rather than failing ("no capabilities" per §4.2).
func (c *Client) Capabilities(ctx context.Context, override string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resolved := override
	if resolved == "" {
		resolved = c.command
	}
	if resolved == "" {
		return nil, nil
	}
	if err := c.ensureStartedLocked(ctx, override); err != nil {
		return nil, err
	}
	return c.caps, nil
}

// Shutdown performs the orderly-then-forceful teardown described in
// §4.2's "Shutdown" operation.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdownLocked(ctx)
}

func (c *Client) shutdownLocked(ctx context.Context) error {
	if c.cmd == nil || c.cmd.Process == nil {
		c.reset()
		return nil
	}
	pid := c.cmd.Process.Pid

	if c.stream != nil {
		id := c.nextID
		_ = c.writeRequest(id, "shutdown", json.RawMessage(`null`))
		_ = c.notifyRaw("exit", json.RawMessage(`null`))
	}
	if c.stdin != nil {
		_ = c.stdin.Close()
	}

	for i := 0; i < 10; i++ {
		if !c.running() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if c.running() {
		_ = sysproc.KillProcessGroup(pid)
	}

	c.reset()
	return nil
}

func (c *Client) reset() {
	c.cmd = nil
	c.stdin = nil
	c.stream = nil
	c.caps = nil
	c.nextID = 1
}

func (c *Client) markDead() {
	// A transport failure means the helper is unusable; the next call
	// will see running()==false (once done closes) or an immediate
	// restart via EnsureStarted. We proactively drop our handle so a
	// lingering but wedged process doesn't look "running" forever.
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	c.stream = nil
}

func (c *Client) writeRequest(id int64, method string, params json.RawMessage) error {
	m := rpcMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	return c.stream.WriteMessage(m)
}

func (c *Client) notifyRaw(method string, params json.RawMessage) error {
	m := rpcMessage{JSONRPC: "2.0", Method: method, Params: params}
	return c.stream.WriteMessage(m)
}

func (c *Client) forwardNotification(m rpcMessage) {
	if c.notifySink != nil {
		c.notifySink(m.Method, m.Params)
	}
}

// replyServerRequest implements the default-response table in §4.2.2.
func (c *Client) replyServerRequest(m rpcMessage) {
	if c.notifySink != nil {
		c.notifySink(m.Method, c.eventParamsFor(m.Method, m.Params))
	}
	result, rpcErr := defaultServerResponse(m.Method, m.Params)
	reply := rpcMessage{JSONRPC: "2.0", ID: m.ID}
	if rpcErr != nil {
		reply.Error = rpcErr
	} else {
		reply.Result = result
	}
	_ = c.stream.WriteMessage(reply)
}

// eventParamsFor enriches the upstream-facing event payload for methods
// the bridge is about to refuse, without altering the downstream wire
// reply. workspace/applyEdit gets a rendered diff preview attached so a
// human watching the event stream can see what was declined.
func (c *Client) eventParamsFor(method string, params json.RawMessage) json.RawMessage {
	if method != "workspace/applyEdit" {
		return params
	}
	enriched := map[string]any{
		"params":  params,
		"preview": workspaceedit.Preview(params),
	}
	b, err := json.Marshal(enriched)
	if err != nil {
		return params
	}
	return b
}

func defaultServerResponse(method string, params json.RawMessage) (json.RawMessage, *rpcError) {
	switch method {
	case "workspace/configuration":
		var req struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(params, &req)
		arr := make([]any, len(req.Items))
		b, _ := json.Marshal(arr)
		return b, nil
	case "client/registerCapability", "client/unregisterCapability",
		"window/workDoneProgress/create", "workspace/workDoneProgress/create",
		"workspace/workspaceFolders", "window/showMessageRequest",
		"workspace/codeLens/refresh", "workspace/semanticTokens/refresh",
		"workspace/inlineValue/refresh", "workspace/inlayHint/refresh",
		"workspace/diagnostic/refresh":
		return json.RawMessage("null"), nil
	case "workspace/applyEdit":
		b, _ := json.Marshal(map[string]any{
			"applied":       false,
			"failureReason": "bridge cannot apply workspace edits",
		})
		return b, nil
	default:
		return nil, &rpcError{Code: errMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
	}
}

func clientCapabilitiesParams() json.RawMessage {
	// A conservative but broad capability set; servers are expected to
	// ignore anything they don't implement.
	const tmpl = `{
		"processId": null,
		"rootUri": null,
		"capabilities": {
			"workspace": {"configuration": true, "workspaceFolders": true, "applyEdit": true},
			"textDocument": {
				"synchronization": {"didSave": true},
				"hover": {"contentFormat": ["markdown", "plaintext"]},
				"completion": {"completionItem": {"snippetSupport": false}},
				"definition": {}, "references": {}, "documentSymbol": {},
				"codeAction": {}, "rename": {}, "formatting": {}
			}
		}
	}`
	return json.RawMessage(tmpl)
}
