package email

import (
	"strings"
	"testing"
)

func TestRenderTicketEscapesInput(t *testing.T) {
	body, err := renderTicket("alice", "<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("renderTicket failed: %v", err)
	}

	if !strings.Contains(body, "alice") {
		t.Error("Expected body to name the filer")
	}
	if strings.Contains(body, "<script>") {
		t.Error("Expected ticket text to be escaped")
	}
}

func TestNotifyTicketWithoutHost(t *testing.T) {
	s := NewSender("", "", "", "", "noreply@example.com", "admin@example.com")
	if err := s.NotifyTicket("alice", "help"); err != nil {
		t.Errorf("Expected mock delivery to succeed, got %v", err)
	}

	disabled := NewSender("smtp.invalid", "25", "", "", "noreply@example.com", "")
	if err := disabled.NotifyTicket("alice", "help"); err != nil {
		t.Errorf("Expected disabled notifier to be a no-op, got %v", err)
	}
}
