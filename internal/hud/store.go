// Package hud holds the per-body-part annotation state that drives the
// on-screen coaching overlay. Annotations are written only by tool calls and
// local form evaluation, expire after a fixed staleness window, and are
// cleared when the session ends.
package hud

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/domain/repositories"
)

const (
	// StaleAfter is how long an annotation survives without a refresh.
	StaleAfter = 7 * time.Second
	// SweepInterval is the cadence of the background expiry sweep while a
	// session is active.
	SweepInterval = time.Second

	persistTimeout = 5 * time.Second
)

// ChangeFunc is notified with a fresh snapshot after every mutation so the
// presentation layer can re-render. It must not mutate the snapshot.
type ChangeFunc func(snapshot map[entities.BodyPart]entities.Annotation)

// Store is an in-memory mapping from body part to its current annotation.
// One Store exists per coaching session.
type Store struct {
	sessionID string
	deviceID  string
	alerts    repositories.AlertRepository
	onChange  ChangeFunc
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.Mutex
	annotations map[entities.BodyPart]entities.Annotation
}

// NewStore creates an empty store bound to one session. alerts and onChange
// may be nil.
func NewStore(sessionID, deviceID string, alerts repositories.AlertRepository, onChange ChangeFunc, logger *zap.Logger) *Store {
	return &Store{
		sessionID:   sessionID,
		deviceID:    deviceID,
		alerts:      alerts,
		onChange:    onChange,
		logger:      logger,
		now:         time.Now,
		annotations: make(map[entities.BodyPart]entities.Annotation),
	}
}

// Upsert inserts or overwrites the annotation for part, stamping it with the
// current time. Non-optimal statuses additionally trigger a fire-and-forget
// persistence write; a failed write is logged and never propagated.
func (s *Store) Upsert(part entities.BodyPart, status entities.FormStatus, feedback string) {
	s.mu.Lock()
	now := s.now()
	s.annotations[part] = entities.Annotation{
		Part:      part,
		Status:    status,
		Feedback:  feedback,
		UpdatedAt: now,
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if status != entities.FormStatusOptimal && s.alerts != nil {
		go s.persistAlert(part, status, feedback, now)
	}

	s.notify(snapshot)
}

func (s *Store) persistAlert(part entities.BodyPart, status entities.FormStatus, feedback string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	alert := &entities.FormAlert{
		SessionID: s.sessionID,
		DeviceID:  s.deviceID,
		Part:      part,
		Status:    status,
		Feedback:  feedback,
		CreatedAt: at,
	}
	if err := s.alerts.RecordAlert(ctx, alert); err != nil {
		s.logger.Warn("Failed to persist form alert",
			zap.String("sessionID", s.sessionID),
			zap.String("part", string(part)),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

// Sweep removes every annotation older than StaleAfter relative to now and
// returns the number removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	removed := 0
	for part, a := range s.annotations {
		if a.StaleAfter(now, StaleAfter) {
			delete(s.annotations, part)
			removed++
		}
	}
	var snapshot map[entities.BodyPart]entities.Annotation
	if removed > 0 {
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if removed > 0 {
		s.notify(snapshot)
	}
	return removed
}

// Clear removes all annotations. Called when the session ends.
func (s *Store) Clear() {
	s.mu.Lock()
	changed := len(s.annotations) > 0
	s.annotations = make(map[entities.BodyPart]entities.Annotation)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.notify(snapshot)
	}
}

// Snapshot returns a copy of the current annotations. Presentation code only
// ever reads these copies; it never mutates the store.
func (s *Store) Snapshot() map[entities.BodyPart]entities.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() map[entities.BodyPart]entities.Annotation {
	out := make(map[entities.BodyPart]entities.Annotation, len(s.annotations))
	for part, a := range s.annotations {
		out[part] = a
	}
	return out
}

func (s *Store) notify(snapshot map[entities.BodyPart]entities.Annotation) {
	if s.onChange != nil {
		s.onChange(snapshot)
	}
}

// RunSweeper drives the expiry sweep at SweepInterval until ctx is cancelled.
// It is scoped to the active session: no sweep activity happens while idle.
func (s *Store) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.logger.Debug("Expired stale annotations",
					zap.String("sessionID", s.sessionID),
					zap.Int("removed", n))
			}
		}
	}
}
