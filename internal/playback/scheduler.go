// Package playback schedules synthesized audio segments for gapless,
// strictly sequential playback on the device. The cursor tracks the end time
// of the most recently scheduled segment; an interruption performs a hard
// cut and resets the cursor so the next segment schedules against the clock.
package playback

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock used in production.
var SystemClock Clock = systemClock{}

// Segment is one scheduled audio clip: raw 16-bit PCM at 24000 Hz mono plus
// its playback slot.
type Segment struct {
	Seq      int
	StartAt  time.Time
	Duration time.Duration
	PCM      []byte
}

// Sink receives scheduled segments and interruption cuts. Play must not
// block; Stop must immediately halt everything in flight and discard any
// pending queue.
type Sink interface {
	Play(seg Segment)
	Stop()
}

// Scheduler owns the playback cursor for one session.
type Scheduler struct {
	clock  Clock
	sink   Sink
	logger *zap.Logger

	mu     sync.Mutex
	cursor time.Time
	seq    int
}

// NewScheduler creates a scheduler with a zero cursor.
func NewScheduler(clock Clock, sink Sink, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &Scheduler{clock: clock, sink: sink, logger: logger}
}

// Schedule assigns pcm the next playback slot, starting at the later of the
// cursor and the current clock time, then advances the cursor by duration.
// Segments are always scheduled in call order, never reordered, and never
// overlap.
func (s *Scheduler) Schedule(pcm []byte, duration time.Duration) Segment {
	s.mu.Lock()
	start := s.clock.Now()
	if s.cursor.After(start) {
		start = s.cursor
	}
	s.seq++
	seg := Segment{
		Seq:      s.seq,
		StartAt:  start,
		Duration: duration,
		PCM:      pcm,
	}
	s.cursor = start.Add(duration)
	s.mu.Unlock()

	s.sink.Play(seg)
	return seg
}

// Interrupt performs the hard real-time cut: all in-flight playback stops,
// the pending queue is discarded and the cursor resets, so the next segment
// schedules relative to the current clock time rather than the
// pre-interruption watermark.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	s.cursor = time.Time{}
	s.mu.Unlock()

	s.sink.Stop()
	if s.logger != nil {
		s.logger.Debug("Playback interrupted, cursor reset")
	}
}

// Cursor returns the current watermark. A zero time means nothing is
// scheduled ahead of the clock.
func (s *Scheduler) Cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
