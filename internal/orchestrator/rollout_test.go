package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestGetConversationEventsReturnsLastN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout.jsonl")
	var data string
	for i := 0; i < 60; i++ {
		data += `{"seq":` + strconv.Itoa(i) + `}` + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write rollout: %v", err)
	}

	events, err := GetConversationEvents(path, 10)
	if err != nil {
		t.Fatalf("GetConversationEvents: %v", err)
	}
	if len(events) != 10 {
		t.Fatalf("expected 10 events, got %d", len(events))
	}
	var last struct{ Seq int }
	if err := json.Unmarshal(events[len(events)-1], &last); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if last.Seq != 59 {
		t.Fatalf("expected last event seq 59, got %d", last.Seq)
	}
}

func TestGetConversationEventsDefaultLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout.jsonl")
	var data string
	for i := 0; i < 80; i++ {
		data += `{"seq":` + strconv.Itoa(i) + `}` + "\n"
	}
	os.WriteFile(path, []byte(data), 0o644)

	events, err := GetConversationEvents(path, 0)
	if err != nil {
		t.Fatalf("GetConversationEvents: %v", err)
	}
	if len(events) != defaultEventLimit {
		t.Fatalf("expected default limit %d, got %d", defaultEventLimit, len(events))
	}
}

