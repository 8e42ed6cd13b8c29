package llm

import (
	"context"
	"sync"

	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/domain/repositories"
)

// MockCoach is an offline CoachingModel for development and tests. Each
// connection immediately acknowledges open and then replays nothing; tests
// drive it by emitting events on the returned stream.
type MockCoach struct {
	mu      sync.Mutex
	streams []*MockStream
}

// NewMockCoach creates an offline coaching model.
func NewMockCoach() *MockCoach {
	return &MockCoach{}
}

// Connect implements repositories.CoachingModel.
func (m *MockCoach) Connect(ctx context.Context, cfg repositories.SessionConfig) (repositories.CoachingStream, error) {
	stream := NewMockStream()
	stream.Emit(repositories.StreamEvent{Kind: repositories.StreamOpened})

	m.mu.Lock()
	m.streams = append(m.streams, stream)
	m.mu.Unlock()
	return stream, nil
}

// LastStream returns the most recently opened stream, for test assertions.
func (m *MockCoach) LastStream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// MockStream is a scriptable CoachingStream.
type MockStream struct {
	events chan repositories.StreamEvent

	mu       sync.Mutex
	sent     []repositories.MediaChunk
	acks     []string
	closed   bool
	finished bool
}

// NewMockStream creates an open mock stream.
func NewMockStream() *MockStream {
	return &MockStream{events: make(chan repositories.StreamEvent, eventBuffer)}
}

// Emit injects an inbound event, as if the remote had sent it.
func (m *MockStream) Emit(ev repositories.StreamEvent) {
	m.events <- ev
}

// EmitClosed injects the terminal event and closes the event channel, as if
// the remote had hung up.
func (m *MockStream) EmitClosed(err error) {
	m.finish(err)
}

func (m *MockStream) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished {
		return
	}
	m.finished = true
	m.events <- repositories.StreamEvent{Kind: repositories.StreamClosed, Err: err}
	close(m.events)
}

func (m *MockStream) Events() <-chan repositories.StreamEvent {
	return m.events
}

func (m *MockStream) SendMedia(chunk repositories.MediaChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return entities.ErrStreamClosed
	}
	m.sent = append(m.sent, chunk)
	return nil
}

func (m *MockStream) SendToolAck(ctx context.Context, callID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return entities.ErrStreamClosed
	}
	m.acks = append(m.acks, callID)
	return nil
}

// Close mirrors the live stream: the event channel terminates with a clean
// StreamClosed so the consumer's loop drains.
func (m *MockStream) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.finish(nil)
	return nil
}

// SentMedia returns a copy of everything sent so far.
func (m *MockStream) SentMedia() []repositories.MediaChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repositories.MediaChunk, len(m.sent))
	copy(out, m.sent)
	return out
}

// Acks returns the tool-call ids acknowledged so far.
func (m *MockStream) Acks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.acks))
	copy(out, m.acks)
	return out
}

// Closed reports whether Close was called.
func (m *MockStream) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
