package transport

import (
	"bytes"
	"strings"
	"testing"
)

func TestReadMessageLengthPrefixed(t *testing.T) {
	raw := "Content-Length: 17\r\n\r\n" + `{"jsonrpc":"2.0"}`
	s := New(&bytes.Buffer{}, strings.NewReader(raw), WriteAuto)
	msg, err := s.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(msg) != `{"jsonrpc":"2.0"}` {
		t.Fatalf("unexpected body: %s", msg)
	}
	if s.DetectedFraming() != FramingLengthPrefixed {
		t.Fatalf("expected length-prefixed detection")
	}
}

func TestReadMessageNewline(t *testing.T) {
	raw := `{"jsonrpc":"2.0"}` + "\n" + `{"jsonrpc":"2.0","id":2}` + "\n"
	s := New(&bytes.Buffer{}, strings.NewReader(raw), WriteAuto)
	msg1, err := s.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage 1: %v", err)
	}
	if string(msg1) != `{"jsonrpc":"2.0"}` {
		t.Fatalf("unexpected first body: %s", msg1)
	}
	if s.DetectedFraming() != FramingNewline {
		t.Fatalf("expected newline detection after first message")
	}
	// Sticky: subsequent reads stay newline-framed even though the body
	// itself also starts with '{'.
	msg2, err := s.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage 2: %v", err)
	}
	if string(msg2) != `{"jsonrpc":"2.0","id":2}` {
		t.Fatalf("unexpected second body: %s", msg2)
	}
}

func TestWriteMessageLengthPrefixed(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, strings.NewReader(""), WriteLengthPrefixed)
	if err := s.WriteMessage(map[string]any{"a": 1}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Content-Length: ") {
		t.Fatalf("expected content-length header, got %q", buf.String())
	}
}

func TestWriteMessageNewline(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, strings.NewReader(""), WriteNewline)
	if err := s.WriteMessage(map[string]any{"a": 1}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "\n") || strings.Contains(buf.String(), "Content-Length") {
		t.Fatalf("expected bare newline-terminated JSON, got %q", buf.String())
	}
}

func TestMalformedHeaderIsProtocolError(t *testing.T) {
	raw := "garbage without colon\r\n\r\n"
	s := New(&bytes.Buffer{}, strings.NewReader(raw), WriteAuto)
	_, err := s.ReadMessage()
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %v (%T)", err, err)
	}
}

func TestEndOfStream(t *testing.T) {
	s := New(&bytes.Buffer{}, strings.NewReader(""), WriteAuto)
	_, err := s.ReadMessage()
	if err != ErrEndOfStream {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
}
