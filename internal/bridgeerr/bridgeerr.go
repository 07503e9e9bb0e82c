// Package bridgeerr renders downstream protocol errors into the single
// error surface described in spec §4.2.4/§7: a human-readable message
// plus a machine-readable envelope upstream callers can inspect.
package bridgeerr

import (
	"encoding/json"
	"fmt"
)

// Kind classifies an error per the taxonomy in §7.
type Kind string

const (
	KindConfigMissing   Kind = "configuration_missing"
	KindSpawnFailed     Kind = "spawn_failed"
	KindTransport       Kind = "transport_failure"
	KindProtocol        Kind = "protocol_error"
	KindInvalidArgs     Kind = "invalid_arguments"
	KindUnknownTool     Kind = "unknown_tool"
	KindTimeout         Kind = "timeout"
	KindInternal        Kind = "internal"
)

// Error is the structured error every tool dispatch path returns.
type Error struct {
	Kind     Kind   `json:"kind"`
	Method   string `json:"method,omitempty"`
	Server   string `json:"server,omitempty"`
	URIHint  string `json:"uriHint,omitempty"`
	Code     int64  `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Data     any    `json:"data,omitempty"`
	Rendered string `json:"rendered"`
}

func (e *Error) Error() string {
	if e.Rendered != "" {
		return e.Rendered
	}
	return e.Message
}

// FormatProtocolError renders a downstream JSON-RPC-style error reply
// into the single message spec §4.2.4 describes: method, resolved
// server label, numeric code, message, and data when present. An empty
// json.RawMessage counts as absent data; the raw reply body is not
// rendered.
func FormatProtocolError(method, server string, code int64, message string, data any) *Error {
	if raw, ok := data.(json.RawMessage); ok && len(raw) == 0 {
		data = nil
	}
	rendered := fmt.Sprintf("%s on %s failed (code %d): %s", method, server, code, message)
	if raw, ok := data.(json.RawMessage); ok {
		rendered = fmt.Sprintf("%s [data: %s]", rendered, raw)
	} else if data != nil {
		rendered = fmt.Sprintf("%s [data: %v]", rendered, data)
	}
	return &Error{
		Kind:     KindProtocol,
		Method:   method,
		Server:   server,
		Code:     code,
		Message:  message,
		Data:     data,
		Rendered: rendered,
	}
}

// InvalidParams builds an "invalid parameters" error naming the tool or
// the missing/invalid field.
func InvalidParams(tool, reason string) *Error {
	return &Error{
		Kind:     KindInvalidArgs,
		Message:  reason,
		Rendered: fmt.Sprintf("invalid parameters for %s: %s", tool, reason),
	}
}

// UnknownTool builds the error dispatch returns for an unrecognized tool
// name.
func UnknownTool(name string) *Error {
	return &Error{
		Kind:     KindUnknownTool,
		Rendered: fmt.Sprintf("unknown tool: %s", name),
	}
}

// SpawnFailed wraps a failure to start a helper child.
func SpawnFailed(command string, err error) *Error {
	return &Error{
		Kind:     KindSpawnFailed,
		Rendered: fmt.Sprintf("failed to start %q: %v", command, err),
	}
}

// ConfigMissing builds the error used when no command line could be
// resolved for an explicit call (capability probing instead collapses
// this to "no capabilities" — see lspclient.Client.Capabilities).
func ConfigMissing(reason string) *Error {
	return &Error{
		Kind:     KindConfigMissing,
		Rendered: reason,
	}
}

// Transport wraps a transport-layer failure (end of stream, malformed
// framing, non-UTF-8 body).
func Transport(err error) *Error {
	return &Error{
		Kind:     KindTransport,
		Rendered: fmt.Sprintf("transport failure: %v", err),
	}
}

// Internal wraps an unexpected internal failure.
func Internal(err error) *Error {
	return &Error{
		Kind:     KindInternal,
		Rendered: err.Error(),
	}
}

// WithHints attaches the machine-readable method/URI/server hints spec
// §4.2.4 asks for, without altering the rendered message.
func (e *Error) WithHints(method, uriHint, server string) *Error {
	e.Method = method
	e.URIHint = uriHint
	e.Server = server
	return e
}
