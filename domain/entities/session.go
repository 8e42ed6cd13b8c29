package entities

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState tracks the lifecycle of one coaching connection.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateConnecting SessionState = "connecting"
	SessionStateActive     SessionState = "active"
	SessionStateClosing    SessionState = "closing"
)

// Session represents one logical connection lifetime between a device and the
// remote coaching model. Created on explicit start; destroyed on explicit
// stop, remote close, or unrecoverable transport error. At most one session
// is active per device at a time; a second concurrent start is rejected at
// the idle->connecting transition.
type Session struct {
	ID        string
	DeviceID  string
	Exercise  string
	CreatedAt time.Time

	mu      sync.Mutex
	state   SessionState
	endedAt *time.Time
}

// NewSession creates a session in the idle state.
func NewSession(deviceID, exercise string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Exercise:  exercise,
		CreatedAt: time.Now(),
		state:     SessionStateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeginConnecting moves idle -> connecting. Any other source state means a
// start is already in flight or the session is spent.
func (s *Session) BeginConnecting() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStateIdle || s.endedAt != nil {
		return fmt.Errorf("%w: session %s is %s", ErrSessionActive, s.ID, s.state)
	}
	s.state = SessionStateConnecting
	return nil
}

// Activate moves connecting -> active once the remote acknowledges the open.
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStateConnecting {
		return fmt.Errorf("cannot activate session %s from state %s", s.ID, s.state)
	}
	s.state = SessionStateActive
	return nil
}

// BeginClosing marks teardown in progress. Safe from any state; returns true
// only the first time so the caller runs teardown exactly once.
func (s *Session) BeginClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionStateClosing || s.endedAt != nil {
		return false
	}
	s.state = SessionStateClosing
	return true
}

// Closed finalizes the session. The session is terminal: a new Session must
// be created to resume, there is no automatic reconnect.
func (s *Session) Closed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.state = SessionStateIdle
	s.endedAt = &now
}

// Ended reports whether the session has been torn down.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt != nil
}

// Duration returns the session length, or elapsed time while still running.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endedAt != nil {
		return s.endedAt.Sub(s.CreatedAt)
	}
	return time.Since(s.CreatedAt)
}
