package utils

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestSSEWriterFormatsEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewSSEWriter(rec)

	if err := w.WriteJSON("typing", map[string]bool{"is_typing": true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	want := "event: typing\ndata: {\"is_typing\":true}\n\n: ping\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected stream:\n%q\nwant\n%q", got, want)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !rec.Flushed {
		t.Fatalf("expected writer to flush")
	}
}

func TestNewHTTPClientTimeout(t *testing.T) {
	c := NewHTTPClient(3 * time.Second)
	if c.Timeout != 3*time.Second {
		t.Fatalf("unexpected timeout %v", c.Timeout)
	}
	if c.Transport == nil {
		t.Fatalf("expected a transport")
	}
}
