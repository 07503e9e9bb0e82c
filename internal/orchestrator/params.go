package orchestrator

import (
	"encoding/json"
	"os"

	"github.com/spf13/cast"
)

// normalizeParams implements the normalization rule from §4.5: a string
// is parsed as JSON if possible (an object wins outright; anything else
// that parses is re-wrapped as a text item just like a non-JSON string),
// else wrapped as a text item; an object passes through; null becomes
// empty; other scalars become a text item.
func normalizeParams(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			if obj, ok := parsed.(map[string]any); ok {
				return obj
			}
		}
		return map[string]any{"items": []any{textItem(v)}}
	default:
		return map[string]any{"items": []any{textItem(cast.ToString(v))}}
	}
}

func textItem(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// foldTextFields moves a bare text/message/prompt string field into a
// single-element items array, the shape message/turn calls expect, when
// items is not already present.
func foldTextFields(params map[string]any) {
	if _, ok := params["items"]; ok {
		return
	}
	for _, key := range []string{"text", "message", "prompt"} {
		v, ok := params[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		params["items"] = []any{textItem(s)}
		delete(params, key)
		return
	}
}

// injectConversationID fills conversationId (or conversation_id) from
// the agent's remembered last conversation, when params names neither
// and the agent has one on record.
func injectConversationID(params map[string]any, a *agent) {
	if _, ok := params["conversationId"]; ok {
		return
	}
	if _, ok := params["conversation_id"]; ok {
		return
	}
	if last := a.getLastConversationID(); last != "" {
		params["conversationId"] = last
	}
}

// fillSendUserTurnDefaults fills the safe defaults §4.5 names for
// send-turn calls: working directory, approval policy, sandbox policy,
// model, and summary mode. The working directory default is the bridge
// process's own cwd, not the agent's — the agent may not have one on
// record, and the upstream side resolves relative paths against whatever
// process actually has them.
func fillSendUserTurnDefaults(params map[string]any) {
	if _, ok := params["cwd"]; !ok {
		params["cwd"] = bridgeCwd()
	}
	if _, ok := params["approvalPolicy"]; !ok {
		params["approvalPolicy"] = "never"
	}
	if _, ok := params["sandboxPolicy"]; !ok {
		params["sandboxPolicy"] = map[string]any{"mode": "read-only"}
	}
	if _, ok := params["model"]; !ok {
		params["model"] = "gpt-4"
	}
	if _, ok := params["summary"]; !ok {
		params["summary"] = "auto"
	}
}

// bridgeCwd returns this process's own working directory, falling back
// to /tmp if it cannot be determined.
func bridgeCwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "/tmp"
	}
	return wd
}
