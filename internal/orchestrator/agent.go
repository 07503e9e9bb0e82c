package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
	"github.com/codex-bridges/mcp-bridges/internal/sysproc"
	"github.com/codex-bridges/mcp-bridges/internal/transport"
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

type pendingCall struct {
	reply chan callReply
}

type callReply struct {
	result json.RawMessage
	err    *rpcError
}

// agent owns one nested-agent child process: its transport, its
// correlation map, and the last conversation id it reported.
type agent struct {
	id  string
	cwd string

	writeMu sync.Mutex // serializes writes to stream, per §5 "writers still serialize via a mutex"
	stream  *transport.Stream
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan struct{}

	idMu   sync.Mutex
	nextID int64

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall

	approvalsMu sync.Mutex
	approvals   map[int64]chan string

	lastConvMu         sync.Mutex
	lastConversationID string

	logger *zap.Logger
	events func(agentID, method string, params json.RawMessage)
}

func newAgent(id, cwd string, logger *zap.Logger, events func(agentID, method string, params json.RawMessage)) *agent {
	return &agent{
		id:        id,
		cwd:       cwd,
		nextID:    1,
		pending:   map[int64]*pendingCall{},
		approvals: map[int64]chan string{},
		logger:    logger,
		events:    events,
	}
}

func (a *agent) allocID() int64 {
	a.idMu.Lock()
	defer a.idMu.Unlock()
	id := a.nextID
	a.nextID++
	return id
}

// start spawns the child, wires its transport, and launches the
// demultiplexer goroutine. It does not perform the handshake; callers
// do that via call() once start succeeds so the handshake itself flows
// through the same machinery as any other request.
func (a *agent) start(bin string, args []string) error {
	cmd := exec.Command(bin, args...)
	cmd.SysProcAttr = sysproc.AttrForGroup()
	if a.cwd != "" {
		cmd.Dir = a.cwd
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return bridgeerr.SpawnFailed(bin, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return bridgeerr.SpawnFailed(bin, err)
	}
	if err := cmd.Start(); err != nil {
		return bridgeerr.SpawnFailed(bin, err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.stream = transport.New(stdin, stdout, transport.WriteNewline)
	a.done = make(chan struct{})

	go a.readLoop()
	return nil
}

// readLoop is the dedicated per-agent demultiplexer described in §4.2.3.
func (a *agent) readLoop() {
	defer close(a.done)
	for {
		raw, err := a.stream.ReadMessage()
		if err != nil {
			a.drainAll(fmt.Errorf("agent %s terminated: %w", a.id, err))
			return
		}
		var m rpcMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		switch {
		case m.ID != nil && m.Method == "":
			a.deliver(*m.ID, m.Result, m.Error)
		case m.ID != nil && m.Method != "":
			a.handleServerRequest(m)
		default:
			if a.events != nil {
				a.events(a.id, m.Method, m.Params)
			}
		}
	}
}

func (a *agent) deliver(id int64, result json.RawMessage, rpcErr *rpcError) {
	a.pendingMu.Lock()
	p, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	a.pendingMu.Unlock()
	if ok {
		p.reply <- callReply{result: result, err: rpcErr}
	}
}

func (a *agent) drainAll(err error) {
	a.pendingMu.Lock()
	pending := a.pending
	a.pending = map[int64]*pendingCall{}
	a.pendingMu.Unlock()
	for _, p := range pending {
		p.reply <- callReply{err: &rpcError{Code: -1, Message: err.Error()}}
	}
}

const approvalTimeout = 60 * time.Second

var approvalKinds = map[string]bool{
	"applyPatchApproval":  true,
	"execCommandApproval": true,
}

func (a *agent) handleServerRequest(m rpcMessage) {
	if !approvalKinds[m.Method] {
		if a.events != nil {
			a.events(a.id, m.Method, m.Params)
		}
		a.writeReply(*m.ID, json.RawMessage(`{}`), nil)
		return
	}

	ch := make(chan string, 1)
	a.approvalsMu.Lock()
	a.approvals[*m.ID] = ch
	a.approvalsMu.Unlock()

	if a.events != nil {
		envelope, _ := json.Marshal(map[string]any{
			"kind":      "approval_request",
			"requestId": *m.ID,
			"method":    m.Method,
			"params":    json.RawMessage(m.Params),
		})
		a.events(a.id, "approval_request", envelope)
	}

	decision := "deny"
	select {
	case d := <-ch:
		decision = d
	case <-time.After(approvalTimeout):
	}

	a.approvalsMu.Lock()
	delete(a.approvals, *m.ID)
	a.approvalsMu.Unlock()

	result, _ := json.Marshal(map[string]string{"decision": decision})
	a.writeReply(*m.ID, result, nil)
}

// decide delivers a human decision to a pending approval, if any is
// still waiting. Returns false if the key is unknown (already decided,
// timed out, or never existed).
func (a *agent) decide(requestID int64, decision string) bool {
	a.approvalsMu.Lock()
	ch, ok := a.approvals[requestID]
	if ok {
		delete(a.approvals, requestID)
	}
	a.approvalsMu.Unlock()
	if !ok {
		return false
	}
	ch <- decision
	return true
}

func (a *agent) pendingApprovalKeys() []int64 {
	a.approvalsMu.Lock()
	defer a.approvalsMu.Unlock()
	keys := make([]int64, 0, len(a.approvals))
	for k := range a.approvals {
		keys = append(keys, k)
	}
	return keys
}

func (a *agent) writeReply(id int64, result json.RawMessage, rpcErr *rpcError) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = a.stream.WriteMessage(rpcMessage{JSONRPC: "2.0", ID: &id, Result: result, Error: rpcErr})
}

// call sends a request and blocks for its matching reply, honoring
// ctx cancellation and the supervisor's call timeout.
func (a *agent) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	id := a.allocID()
	p := &pendingCall{reply: make(chan callReply, 1)}

	a.pendingMu.Lock()
	a.pending[id] = p
	a.pendingMu.Unlock()

	a.writeMu.Lock()
	err := a.stream.WriteMessage(rpcMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	a.writeMu.Unlock()
	if err != nil {
		a.pendingMu.Lock()
		delete(a.pending, id)
		a.pendingMu.Unlock()
		return nil, bridgeerr.Transport(err)
	}

	select {
	case r := <-p.reply:
		if r.err != nil {
			return nil, bridgeerr.FormatProtocolError(method, a.id, r.err.Code, r.err.Message, r.err.Data)
		}
		return r.result, nil
	case <-ctx.Done():
		a.pendingMu.Lock()
		delete(a.pending, id)
		a.pendingMu.Unlock()
		return nil, bridgeerr.Internal(ctx.Err())
	}
}

func (a *agent) notify(method string, params json.RawMessage) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.stream.WriteMessage(rpcMessage{JSONRPC: "2.0", Method: method, Params: params})
}

func (a *agent) setLastConversationID(id string) {
	a.lastConvMu.Lock()
	a.lastConversationID = id
	a.lastConvMu.Unlock()
}

func (a *agent) getLastConversationID() string {
	a.lastConvMu.Lock()
	defer a.lastConvMu.Unlock()
	return a.lastConversationID
}

// kill terminates the child forcefully and waits briefly for it to
// actually exit.
func (a *agent) kill() {
	if a.cmd == nil || a.cmd.Process == nil {
		return
	}
	pid := a.cmd.Process.Pid
	if a.stdin != nil {
		_ = a.stdin.Close()
	}
	_ = sysproc.KillProcessGroup(pid)
	select {
	case <-a.done:
	case <-time.After(1 * time.Second):
	}
}
