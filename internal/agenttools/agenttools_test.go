package agenttools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codex-bridges/mcp-bridges/internal/orchestrator"
)

func newTestSupervisor() *orchestrator.Supervisor {
	return orchestrator.New(nil, func(string, string, json.RawMessage) {}, time.Second)
}

func TestListAgentsEmpty(t *testing.T) {
	sup := newTestSupervisor()
	raw, err := Dispatch(context.Background(), sup, "list_agents", map[string]any{})
	if err != nil {
		t.Fatalf("list_agents: %v", err)
	}
	var got struct{ Agents []string }
	json.Unmarshal(raw, &got)
	if len(got.Agents) != 0 {
		t.Fatalf("expected no agents, got %v", got.Agents)
	}
}

func TestKillAgentUnknownID(t *testing.T) {
	sup := newTestSupervisor()
	if _, err := Dispatch(context.Background(), sup, "kill_agent", map[string]any{"agentId": "does-not-exist"}); err == nil {
		t.Fatalf("expected error for unknown agent id")
	}
}

func TestNewConversationRequiresAgentID(t *testing.T) {
	sup := newTestSupervisor()
	if _, err := Dispatch(context.Background(), sup, "new_conversation", map[string]any{}); err == nil {
		t.Fatalf("expected error for missing agentId")
	}
}

func TestDecideApprovalRequiresFields(t *testing.T) {
	sup := newTestSupervisor()
	if _, err := Dispatch(context.Background(), sup, "decide_approval", map[string]any{"approvalKey": "a:1"}); err == nil {
		t.Fatalf("expected error for missing decision")
	}
}

func TestListPendingApprovalsEmpty(t *testing.T) {
	sup := newTestSupervisor()
	raw, err := Dispatch(context.Background(), sup, "list_pending_approvals", map[string]any{})
	if err != nil {
		t.Fatalf("list_pending_approvals: %v", err)
	}
	var got struct{ Approvals []string }
	json.Unmarshal(raw, &got)
	if len(got.Approvals) != 0 {
		t.Fatalf("expected no approvals, got %v", got.Approvals)
	}
}

func TestGetConversationEventsDispatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout.jsonl")
	os.WriteFile(path, []byte("{\"seq\":1}\n{\"seq\":2}\n"), 0o644)

	sup := newTestSupervisor()
	raw, err := Dispatch(context.Background(), sup, "get_conversation_events", map[string]any{"path": path})
	if err != nil {
		t.Fatalf("get_conversation_events: %v", err)
	}
	var got struct {
		Events []json.RawMessage
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got.Events))
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	sup := newTestSupervisor()
	if _, err := Dispatch(context.Background(), sup, "not_a_tool", map[string]any{}); err == nil {
		t.Fatalf("expected error for unknown tool")
	}
}
