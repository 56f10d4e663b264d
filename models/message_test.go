package models

import "testing"

func TestMessageApplyStatusForwardPath(t *testing.T) {
	m := &Message{ID: "m1", Status: MESSAGE_STATUS_PENDING}

	steps := []string{MESSAGE_STATUS_SENT, MESSAGE_STATUS_DELIVERED, MESSAGE_STATUS_READ}
	for _, next := range steps {
		if err := m.ApplyStatus(next); err != nil {
			t.Fatalf("ApplyStatus(%s) from %s: unexpected error: %v", next, m.Status, err)
		}
	}
	if m.Status != MESSAGE_STATUS_READ {
		t.Fatalf("expected final status %s, got %s", MESSAGE_STATUS_READ, m.Status)
	}
}

func TestMessageApplyStatusRejectsRegression(t *testing.T) {
	m := &Message{ID: "m1", Status: MESSAGE_STATUS_DELIVERED}

	if err := m.ApplyStatus(MESSAGE_STATUS_SENT); err == nil {
		t.Fatalf("expected error regressing DELIVERED -> SENT, got nil")
	}
	if m.Status != MESSAGE_STATUS_DELIVERED {
		t.Fatalf("status must be unchanged after a rejected transition, got %s", m.Status)
	}
}

func TestMessageApplyStatusRejectsDuplicate(t *testing.T) {
	m := &Message{ID: "m1", Status: MESSAGE_STATUS_SENT}

	if err := m.ApplyStatus(MESSAGE_STATUS_SENT); err == nil {
		t.Fatalf("expected error re-applying SENT, got nil")
	}
}

func TestMessageApplyStatusFailedFromAnyNonTerminalState(t *testing.T) {
	for _, start := range []string{MESSAGE_STATUS_PENDING, MESSAGE_STATUS_SENT, MESSAGE_STATUS_DELIVERED} {
		m := &Message{ID: "m1", Status: start}
		if err := m.ApplyStatus(MESSAGE_STATUS_FAILED); err != nil {
			t.Fatalf("ApplyStatus(FAILED) from %s: unexpected error: %v", start, err)
		}
		if m.Status != MESSAGE_STATUS_FAILED {
			t.Fatalf("expected FAILED, got %s", m.Status)
		}
	}
}

func TestMessageApplyStatusFailedIsAbsorbing(t *testing.T) {
	m := &Message{ID: "m1", Status: MESSAGE_STATUS_FAILED}

	if err := m.ApplyStatus(MESSAGE_STATUS_SENT); err == nil {
		t.Fatalf("expected error leaving FAILED, got nil")
	}
	if err := m.ApplyStatus(MESSAGE_STATUS_FAILED); err == nil {
		t.Fatalf("expected error re-applying FAILED, got nil")
	}
}

func TestMessageApplyStatusRejectsReadToFailed(t *testing.T) {
	m := &Message{ID: "m1", Status: MESSAGE_STATUS_READ}

	if err := m.ApplyStatus(MESSAGE_STATUS_FAILED); err == nil {
		t.Fatalf("expected error failing a READ message, got nil")
	}
	if m.Status != MESSAGE_STATUS_READ {
		t.Fatalf("status must be unchanged, got %s", m.Status)
	}
}

func TestConversationIsOpen(t *testing.T) {
	cases := []struct {
		status string
		open   bool
	}{
		{CONVERSATION_STATUS_PENDING, true},
		{CONVERSATION_STATUS_ASSIGNED, true},
		{CONVERSATION_STATUS_COMPLETED, false},
	}
	for _, tc := range cases {
		c := Conversation{Status: tc.status}
		if got := c.IsOpen(); got != tc.open {
			t.Errorf("Conversation{Status: %s}.IsOpen() = %v, want %v", tc.status, got, tc.open)
		}
	}
}
