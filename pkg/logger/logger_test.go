package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitRejectsUnknownLevel(t *testing.T) {
	if err := Init("verbose", "text"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestWithFieldsJSON(t *testing.T) {
	if err := Init("debug", "json"); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { log = nil })

	var buf bytes.Buffer
	SetOutput(&buf)

	WithFields(logrus.Fields{"session_id": "s1"}).Info("reply delivered")

	out := buf.String()
	if !strings.Contains(out, `"session_id":"s1"`) || !strings.Contains(out, `"msg":"reply delivered"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}
