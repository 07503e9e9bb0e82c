// Package orchestrator implements the nested-agent supervisor (§4.5):
// spawning agent subprocesses that themselves speak a JSON-RPC MCP-like
// protocol, multiplexing many in-flight calls per agent over one duplex
// pipe, and mediating approval callbacks.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codex-bridges/mcp-bridges/internal/bridgeerr"
)

const (
	envAgentBinary  = "AGENT_BRIDGE_BIN"
	primaryBinary   = "agent"
	fallbackBinary  = "nested-agent"
	agentSubcommand = "mcp"
)

// EventSink receives every notification and approval-request event
// observed from any agent, for upstream forwarding as logging-message
// notifications carrying {agentId, event}.
type EventSink func(agentID, method string, params json.RawMessage)

// Supervisor owns every live agent, keyed by id.
type Supervisor struct {
	mu     sync.RWMutex
	agents map[string]*agent

	logger      *zap.Logger
	events      EventSink
	callTimeout time.Duration
}

// New builds a Supervisor. callTimeout bounds how long a conversation
// call waits for its agent to reply (distinct from the fixed ~60s
// approval timeout, which is not configurable).
func New(logger *zap.Logger, events EventSink, callTimeout time.Duration) *Supervisor {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Supervisor{
		agents:      map[string]*agent{},
		logger:      logger,
		events:      events,
		callTimeout: callTimeout,
	}
}

func resolveAgentBinary() (string, error) {
	if v := os.Getenv(envAgentBinary); v != "" {
		return v, nil
	}
	for _, name := range []string{primaryBinary, fallbackBinary} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", bridgeerr.ConfigMissing("no agent binary found: set " + envAgentBinary + " or put " + primaryBinary + "/" + fallbackBinary + " on PATH")
}

// generateID produces the client-supplied-or-auto-generated id scheme
// from §3: wall-clock microseconds, falling back to a uuid suffix on the
// rare chance two spawns land in the same microsecond tick.
func (s *Supervisor) generateID() string {
	id := fmt.Sprintf("agent-%d", time.Now().UnixMicro())
	s.mu.RLock()
	_, collision := s.agents[id]
	s.mu.RUnlock()
	if collision {
		id = id + "-" + uuid.NewString()[:8]
	}
	return id
}

// SpawnAgent locates the agent binary, starts the child, runs the
// handshake, and registers it.
func (s *Supervisor) SpawnAgent(ctx context.Context, requestedID, cwd string) (string, error) {
	bin, err := resolveAgentBinary()
	if err != nil {
		return "", err
	}

	id := requestedID
	if id == "" {
		id = s.generateID()
	}

	s.mu.Lock()
	if _, exists := s.agents[id]; exists {
		s.mu.Unlock()
		return "", bridgeerr.InvalidParams("spawn_agent", fmt.Sprintf("agent id %q already in use", id))
	}
	a := newAgent(id, cwd, s.logger, s.events)
	s.agents[id] = a
	s.mu.Unlock()

	if err := a.start(bin, []string{agentSubcommand}); err != nil {
		s.mu.Lock()
		delete(s.agents, id)
		s.mu.Unlock()
		return "", err
	}

	if err := s.handshake(ctx, a); err != nil {
		a.kill()
		s.mu.Lock()
		delete(s.agents, id)
		s.mu.Unlock()
		return "", err
	}

	return id, nil
}

func (s *Supervisor) handshake(ctx context.Context, a *agent) error {
	hctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	params, _ := json.Marshal(map[string]any{"clientName": "mcp-bridges"})
	if _, err := a.call(hctx, "initialize", params); err != nil {
		return err
	}
	return a.notify("initialized", json.RawMessage(`{}`))
}

// ListAgents returns every registered agent id.
func (s *Supervisor) ListAgents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	return ids
}

// KillAgent terminates the child and removes the record.
func (s *Supervisor) KillAgent(agentID string) error {
	s.mu.Lock()
	a, ok := s.agents[agentID]
	if ok {
		delete(s.agents, agentID)
	}
	s.mu.Unlock()
	if !ok {
		return bridgeerr.InvalidParams("kill_agent", "unknown agent id: "+agentID)
	}
	a.kill()
	return nil
}

func (s *Supervisor) getAgent(agentID string) (*agent, error) {
	s.mu.RLock()
	a, ok := s.agents[agentID]
	s.mu.RUnlock()
	if !ok {
		return nil, bridgeerr.InvalidParams("agent call", "unknown agent id: "+agentID)
	}
	return a, nil
}

func (s *Supervisor) callAgent(ctx context.Context, agentID, method string, params json.RawMessage) (json.RawMessage, error) {
	a, err := s.getAgent(agentID)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return a.call(cctx, method, params)
}

// conversationIDFromResult extracts a conversationId (camelCase or
// snake_case), whichever is found first, per §4.5's last-conversation
// tracking rule.
func conversationIDFromResult(result json.RawMessage) string {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(result, &generic); err != nil {
		return ""
	}
	for _, key := range []string{"conversationId", "conversation_id"} {
		if raw, ok := generic[key]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s
			}
		}
	}
	return ""
}

// NewConversation forwards to the agent's new-conversation method and
// remembers the returned conversation id.
func (s *Supervisor) NewConversation(ctx context.Context, agentID string, rawParams any) (json.RawMessage, error) {
	a, err := s.getAgent(agentID)
	if err != nil {
		return nil, err
	}
	params := normalizeParams(rawParams)
	raw, _ := json.Marshal(params)
	result, err := s.callAgent(ctx, agentID, "newConversation", raw)
	if err != nil {
		return nil, err
	}
	if id := conversationIDFromResult(result); id != "" {
		a.setLastConversationID(id)
	}
	return result, nil
}

// ResumeConversation forwards to the agent's resume method and updates
// the remembered conversation id the same way NewConversation does.
func (s *Supervisor) ResumeConversation(ctx context.Context, agentID string, rawParams any) (json.RawMessage, error) {
	a, err := s.getAgent(agentID)
	if err != nil {
		return nil, err
	}
	params := normalizeParams(rawParams)
	injectConversationID(params, a)
	raw, _ := json.Marshal(params)
	result, err := s.callAgent(ctx, agentID, "resumeConversation", raw)
	if err != nil {
		return nil, err
	}
	if id := conversationIDFromResult(result); id != "" {
		a.setLastConversationID(id)
	}
	return result, nil
}

// SendUserMessage normalizes params, folding text/message/prompt into an
// items array, injecting a remembered conversation id if needed.
func (s *Supervisor) SendUserMessage(ctx context.Context, agentID string, rawParams any) (json.RawMessage, error) {
	a, err := s.getAgent(agentID)
	if err != nil {
		return nil, err
	}
	params := normalizeParams(rawParams)
	foldTextFields(params)
	injectConversationID(params, a)
	raw, _ := json.Marshal(params)
	return s.callAgent(ctx, agentID, "sendUserMessage", raw)
}

// SendUserTurn normalizes params the same way as SendUserMessage, then
// fills the §4.5 safe defaults for any of working directory, approval
// policy, sandbox policy, model, and summary mode that are missing.
func (s *Supervisor) SendUserTurn(ctx context.Context, agentID string, rawParams any) (json.RawMessage, error) {
	a, err := s.getAgent(agentID)
	if err != nil {
		return nil, err
	}
	params := normalizeParams(rawParams)
	foldTextFields(params)
	injectConversationID(params, a)
	fillSendUserTurnDefaults(params)
	raw, _ := json.Marshal(params)
	return s.callAgent(ctx, agentID, "sendUserTurn", raw)
}

// Interrupt and ArchiveConversation follow the common
// normalize-then-inject-then-forward shape but need no method-specific
// defaults. ListConversations normalizes and forwards without injecting
// a remembered conversation id.
func (s *Supervisor) Interrupt(ctx context.Context, agentID string, rawParams any) (json.RawMessage, error) {
	return s.forwardWithConversationID(ctx, agentID, "interruptConversation", rawParams)
}

func (s *Supervisor) ListConversations(ctx context.Context, agentID string, rawParams any) (json.RawMessage, error) {
	params := normalizeParams(rawParams)
	raw, _ := json.Marshal(params)
	return s.callAgent(ctx, agentID, "listConversations", raw)
}

func (s *Supervisor) ArchiveConversation(ctx context.Context, agentID string, rawParams any) (json.RawMessage, error) {
	return s.forwardWithConversationID(ctx, agentID, "archiveConversation", rawParams)
}

func (s *Supervisor) forwardWithConversationID(ctx context.Context, agentID, method string, rawParams any) (json.RawMessage, error) {
	a, err := s.getAgent(agentID)
	if err != nil {
		return nil, err
	}
	params := normalizeParams(rawParams)
	injectConversationID(params, a)
	raw, _ := json.Marshal(params)
	return s.callAgent(ctx, agentID, method, raw)
}

// ListPendingApprovals returns every undecided approval key
// "<agentId>:<requestId>" across all agents.
func (s *Supervisor) ListPendingApprovals() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for id, a := range s.agents {
		for _, reqID := range a.pendingApprovalKeys() {
			keys = append(keys, id+":"+strconv.FormatInt(reqID, 10))
		}
	}
	return keys
}

// DecideApproval looks up a pending approval by its "<agentId>:<requestId>"
// key and delivers the decision.
func (s *Supervisor) DecideApproval(key, decision string) error {
	agentID, requestID, err := splitApprovalKey(key)
	if err != nil {
		return bridgeerr.InvalidParams("decide_approval", err.Error())
	}
	a, err := s.getAgent(agentID)
	if err != nil {
		return err
	}
	if !a.decide(requestID, decision) {
		return bridgeerr.InvalidParams("decide_approval", "unknown or already-resolved approval key: "+key)
	}
	return nil
}

func splitApprovalKey(key string) (string, int64, error) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed approval key: %s", key)
	}
	reqID, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed approval key: %s", key)
	}
	return key[:idx], reqID, nil
}

// ShutdownAll kills every agent and clears the registry.
func (s *Supervisor) ShutdownAll() {
	s.mu.Lock()
	agents := make([]*agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	s.agents = map[string]*agent{}
	s.mu.Unlock()
	for _, a := range agents {
		a.kill()
	}
}
