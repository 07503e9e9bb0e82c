package orchestrator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

const defaultEventLimit = 50

// GetConversationEvents reads a rollout .jsonl file (one JSON event per
// line, read-only collaborator owned by the agent itself) and returns
// the last limit events, defaulting to 50 when limit <= 0. This is a
// supplemented feature: spec §6 only mentions it in passing ("a
// dedicated tool returns the last N events from a given rollout file
// path").
func GetConversationEvents(path string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	defer f.Close()

	var ring []json.RawMessage
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var v json.RawMessage
		if err := json.Unmarshal(line, &v); err != nil {
			continue // skip malformed lines rather than fail the whole read
		}
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		ring = append(ring, cp)
		if len(ring) > limit {
			ring = ring[len(ring)-limit:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("rollout: scan %s: %w", path, err)
	}
	return ring, nil
}
