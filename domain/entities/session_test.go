package entities

import (
	"errors"
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewSession("device-1", "squat")
	if s.State() != SessionStateIdle {
		t.Fatalf("new session state = %s, want idle", s.State())
	}

	if err := s.BeginConnecting(); err != nil {
		t.Fatalf("BeginConnecting failed: %v", err)
	}
	if err := s.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if s.State() != SessionStateActive {
		t.Errorf("state = %s, want active", s.State())
	}

	if !s.BeginClosing() {
		t.Error("first BeginClosing returned false")
	}
	if s.BeginClosing() {
		t.Error("second BeginClosing returned true")
	}

	s.Closed()
	if !s.Ended() {
		t.Error("session not ended after Closed")
	}
}

func TestSecondConnectRejected(t *testing.T) {
	s := NewSession("device-1", "squat")
	if err := s.BeginConnecting(); err != nil {
		t.Fatalf("BeginConnecting failed: %v", err)
	}
	if err := s.BeginConnecting(); !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}
}

func TestEndedSessionIsSpent(t *testing.T) {
	s := NewSession("device-1", "squat")
	if err := s.BeginConnecting(); err != nil {
		t.Fatalf("BeginConnecting failed: %v", err)
	}
	s.Closed()
	if err := s.BeginConnecting(); !errors.Is(err, ErrSessionActive) {
		t.Errorf("spent session accepted a reconnect: %v", err)
	}
}

func TestActivateRequiresConnecting(t *testing.T) {
	s := NewSession("device-1", "squat")
	if err := s.Activate(); err == nil {
		t.Error("Activate from idle succeeded")
	}
}

func TestAnnotationStaleness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 7 * time.Second

	a := Annotation{Part: BodyPartSpine, Status: FormStatusWarning, UpdatedAt: now}

	if a.StaleAfter(now.Add(ttl), ttl) {
		t.Error("annotation exactly ttl old reported stale")
	}
	if !a.StaleAfter(now.Add(ttl+time.Millisecond), ttl) {
		t.Error("annotation past ttl reported fresh")
	}
}

func TestParseBodyPart(t *testing.T) {
	if _, err := ParseBodyPart("knees"); err != nil {
		t.Errorf("valid part rejected: %v", err)
	}
	if _, err := ParseBodyPart("elbows"); err == nil {
		t.Error("unknown part accepted")
	}
}

func TestParseFormStatus(t *testing.T) {
	if _, err := ParseFormStatus("critical"); err != nil {
		t.Errorf("valid status rejected: %v", err)
	}
	if _, err := ParseFormStatus("bad"); err == nil {
		t.Error("unknown status accepted")
	}
}
