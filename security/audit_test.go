package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCaptureAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditor_LogEvent(t *testing.T) {
	auditor, buf := newCaptureAuditor(true)

	auditor.LogEvent(Event{
		Type:      EventTokenIssued,
		SubjectID: "user-123",
		ClientID:  "client-abc",
		Details:   map[string]any{"scope": "read"},
	})

	out := buf.String()
	if !strings.Contains(out, "security_audit") {
		t.Error("expected security_audit log line")
	}
	if !strings.Contains(out, EventTokenIssued) {
		t.Errorf("expected event type %q in output", EventTokenIssued)
	}
	// PII protection: the raw subject ID must never appear in the log
	if strings.Contains(out, "user-123") {
		t.Error("raw subject ID leaked into audit log")
	}
	if !strings.Contains(out, "client-abc") {
		t.Error("client ID should be logged in the clear")
	}
}

func TestAuditor_Disabled(t *testing.T) {
	auditor, buf := newCaptureAuditor(false)

	auditor.LogAuthFailure("user-123", "client-abc", "bad_secret")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor produced output: %s", buf.String())
	}
}

func TestAuditor_NilReceiver(t *testing.T) {
	// The facade calls the auditor unconditionally; a nil auditor must be a no-op
	var auditor *Auditor
	auditor.LogTokenReplay("user", "client", "refresh_token")
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want <empty>", got)
	}
	h := hashForLogging("sensitive")
	if len(h) != 16 {
		t.Errorf("hashForLogging() length = %d, want 16", len(h))
	}
	if h == "sensitive" {
		t.Error("hashForLogging() returned the input unhashed")
	}
}
