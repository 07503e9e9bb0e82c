// Package dapclient implements the per-helper client state machine for a
// Debug Adapter Protocol adapter process. The wire shape differs from
// JSON-RPC 2.0: requests carry seq/command/arguments, responses carry
// request_seq/success/body, and events carry event/body. DAP always
// frames with Content-Length (no newline variant, no auto-detection).
package dapclient

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
)

type dapMessage struct {
	Seq        int64           `json:"seq"`
	Type       string          `json:"type"`
	Command    string          `json:"command,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	RequestSeq int64           `json:"request_seq,omitempty"`
	Success    bool            `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	Event      string          `json:"event,omitempty"`
}

// NotifySink receives every event observed, including ones seen while a
// request is outstanding (which are otherwise dropped for correlation
// purposes).
type NotifySink func(event string, body json.RawMessage)

// Client owns one debug adapter child process.
type Client struct {
	mu sync.Mutex

	label      string
	logger     *zap.Logger
	notifySink NotifySink

	command string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stream  *transport.Stream
	nextSeq int64
	caps    json.RawMessage
	done    chan struct{}
}

func New(label string, logger *zap.Logger, sink NotifySink) *Client {
	return &Client{label: label, logger: logger, notifySink: sink}
}

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
		return bridgeerr.ConfigMissing("no adapter command resolved for " + c.label)
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
	c.stream = transport.New(stdin, stdout, transport.WriteLengthPrefixed)
	c.command = commandLine
	c.nextSeq = 1
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

func (c *Client) handshake(ctx context.Context) error {
	args, _ := json.Marshal(map[string]any{
		"clientID":                     "mcp-bridges",
		"adapterID":                    c.label,
		"pathFormat":                   "path",
		"linesStartAt1":                true,
		"columnsStartAt1":              true,
		"supportsRunInTerminalRequest": false,
	})
	result, err := c.requestLocked(ctx, "initialize", args)
	if err != nil {
		return err
	}
	c.caps = result
	return nil
}

// Request sends a DAP request and waits for its matching response,
// dropping (but forwarding to the notify sink) any events observed in
// between.
func (c *Client) Request(ctx context.Context, command string, arguments any, override string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureStartedLocked(ctx, override); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(arguments)
	if err != nil {
		return nil, bridgeerr.Internal(fmt.Errorf("marshal arguments for %s: %w", command, err))
	}
	return c.requestLocked(ctx, command, raw)
}

func (c *Client) requestLocked(ctx context.Context, command string, arguments json.RawMessage) (json.RawMessage, error) {
	seq := c.nextSeq
	c.nextSeq++
	req := dapMessage{Seq: seq, Type: "request", Command: command, Arguments: arguments}
	if err := c.stream.WriteMessage(req); err != nil {
		c.markDead()
		return nil, bridgeerr.Transport(err)
	}

	for {
		raw, err := c.stream.ReadMessage()
		if err != nil {
			c.markDead()
			return nil, bridgeerr.Transport(err)
		}
		var m dapMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		switch m.Type {
		case "response":
			if m.RequestSeq != seq {
				continue // response to a different in-flight seq: cannot happen with our single-flight discipline, but be defensive
			}
			if !m.Success {
				return nil, bridgeerr.FormatProtocolError(command, c.label, 0, m.Message, m.Body).WithHints(command, "", c.label)
			}
			return m.Body, nil
		case "event":
			if c.notifySink != nil {
				c.notifySink(m.Event, m.Body)
			}
		default:
			// requests from the adapter (reverse requests) are not part
			// of this spec's contract; ignore.
		}
	}
}

// Capabilities returns the stored capability record, starting the
// adapter if necessary. Nil if no command is configured.
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
		_ = c.stream.WriteMessage(dapMessage{Seq: c.nextSeq, Type: "request", Command: "disconnect"})
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
	c.nextSeq = 1
}

func (c *Client) markDead() {
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	c.stream = nil
}
