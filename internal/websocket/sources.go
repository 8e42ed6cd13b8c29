package websocket

import "sync"

const (
	micBuffer    = 32
	cameraBuffer = 4
)

// micSource bridges inbound binary PCM chunks into the capture pipeline. A
// slow consumer sheds the oldest data by dropping new chunks; live coaching
// prefers a gap over growing latency.
type micSource struct {
	mu     sync.Mutex
	ch     chan []float32
	closed bool
}

func newMicSource() *micSource {
	return &micSource{ch: make(chan []float32, micBuffer)}
}

func (s *micSource) Chunks() <-chan []float32 { return s.ch }

func (s *micSource) push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- samples:
	default:
	}
}

func (s *micSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// cameraSource bridges decoded JPEG snapshots into the capture pipeline.
// Only the freshest frames matter, so the buffer is small and full means drop.
type cameraSource struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func newCameraSource() *cameraSource {
	return &cameraSource{ch: make(chan []byte, cameraBuffer)}
}

func (s *cameraSource) Frames() <-chan []byte { return s.ch }

func (s *cameraSource) push(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- frame:
	default:
	}
}

func (s *cameraSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
