// Package usecase wires media capture, the streaming coaching model, playback
// scheduling and the HUD store into one session lifecycle.
package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/domain/repositories"
	"github.com/formpulse/livecoach/internal/biomech"
	"github.com/formpulse/livecoach/internal/codec"
	"github.com/formpulse/livecoach/internal/hud"
	"github.com/formpulse/livecoach/internal/media"
	"github.com/formpulse/livecoach/internal/playback"
)

// FrameInterval is the fixed cadence of video frame snapshots, independent
// of audio cadence.
const FrameInterval = time.Second

const toolAckTimeout = 5 * time.Second

// StatusKind is a user-visible session status.
type StatusKind string

const (
	StatusConnecting  StatusKind = "connecting"
	StatusActive      StatusKind = "active"
	StatusStopped     StatusKind = "stopped"
	StatusLinkFailure StatusKind = "link_failure"
)

// StatusFunc receives user-visible status transitions.
type StatusFunc func(kind StatusKind, message string)

// CoachService creates and tracks coaching sessions, enforcing at most one
// active session per device.
type CoachService struct {
	model  repositories.CoachingModel
	alerts repositories.AlertRepository
	logger *zap.Logger

	mu     sync.Mutex
	active map[string]*CoachSession
}

// NewCoachService creates the orchestrating service. alerts may be nil when
// persistence is disabled.
func NewCoachService(model repositories.CoachingModel, alerts repositories.AlertRepository, logger *zap.Logger) *CoachService {
	return &CoachService{
		model:  model,
		alerts: alerts,
		logger: logger,
		active: make(map[string]*CoachSession),
	}
}

// SessionOptions parameterizes one session start.
type SessionOptions struct {
	DeviceID string
	Exercise string

	// Capture must already be acquired; Start never acquires media itself
	// and never releases it. Camera teardown stays caller-controlled.
	Capture *media.CaptureAdapter

	// Sink receives scheduled playback segments and interruption cuts.
	Sink playback.Sink

	// Clock defaults to the system clock.
	Clock playback.Clock

	// OnHUDChange receives annotation snapshots after every mutation.
	OnHUDChange hud.ChangeFunc

	// OnStatus receives user-visible status transitions.
	OnStatus StatusFunc
}

// CoachSession is one running coaching session: two outbound media producers,
// one inbound dispatch loop and the sweeper, all scoped to the session
// context so cancellation is guaranteed on every exit path.
type CoachSession struct {
	Entity *entities.Session

	service *CoachService
	stream  repositories.CoachingStream
	handle  *media.Handle
	store   *hud.Store
	sched   *playback.Scheduler
	logger  *zap.Logger

	onStatus StatusFunc

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	stopOnce  sync.Once
	frameBusy atomic.Bool
}

// Start acquires nothing and retries nothing: media must already be acquired
// (ErrPreconditionFailed otherwise), a second start for the same device is
// rejected (ErrSessionActive), and a failed connect surfaces immediately.
func (s *CoachService) Start(ctx context.Context, opts SessionOptions) (*CoachSession, error) {
	handle, ok := opts.Capture.Handle()
	if !ok {
		return nil, fmt.Errorf("%w: media capture not acquired", entities.ErrPreconditionFailed)
	}

	entity := entities.NewSession(opts.DeviceID, opts.Exercise)
	if err := entity.BeginConnecting(); err != nil {
		return nil, err
	}

	// The session outlives the start request; its lifetime is owned by Stop.
	sessCtx, cancel := context.WithCancel(context.Background())

	sess := &CoachSession{
		Entity:   entity,
		service:  s,
		handle:   handle,
		store:    hud.NewStore(entity.ID, opts.DeviceID, s.alerts, opts.OnHUDChange, s.logger),
		sched:    playback.NewScheduler(opts.Clock, opts.Sink, s.logger),
		logger:   s.logger,
		onStatus: opts.OnStatus,
		ctx:      sessCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	// Reserve the device slot before dialing so two concurrent starts cannot
	// both open a channel.
	s.mu.Lock()
	if existing, exists := s.active[opts.DeviceID]; exists && !existing.Entity.Ended() {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: device %s", entities.ErrSessionActive, opts.DeviceID)
	}
	s.active[opts.DeviceID] = sess
	s.mu.Unlock()

	stream, err := s.model.Connect(ctx, repositories.SessionConfig{
		SessionID: entity.ID,
		Exercise:  opts.Exercise,
	})
	if err != nil {
		cancel()
		entity.Closed()
		s.clear(opts.DeviceID, sess)
		return nil, fmt.Errorf("%w: %v", entities.ErrTransportError, err)
	}
	sess.stream = stream

	sess.status(StatusConnecting, "")
	go sess.dispatchLoop()

	s.logger.Info("Coaching session starting",
		zap.String("sessionID", entity.ID),
		zap.String("deviceID", opts.DeviceID),
		zap.String("exercise", opts.Exercise))

	return sess, nil
}

// Get returns the running session for a device, if any.
func (s *CoachService) Get(deviceID string) (*CoachSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.active[deviceID]
	if !ok || sess.Entity.Ended() {
		return nil, false
	}
	return sess, true
}

func (s *CoachService) clear(deviceID string, sess *CoachSession) {
	s.mu.Lock()
	if s.active[deviceID] == sess {
		delete(s.active, deviceID)
	}
	s.mu.Unlock()
}

func (c *CoachSession) status(kind StatusKind, message string) {
	if c.onStatus != nil {
		c.onStatus(kind, message)
	}
}

// dispatchLoop is the session's single intake point: every remote event is
// serialized through here, which preserves arrival order for playback
// scheduling and keeps HUD updates from interleaving mid-operation.
func (c *CoachSession) dispatchLoop() {
	defer close(c.done)

	for ev := range c.stream.Events() {
		switch ev.Kind {
		case repositories.StreamOpened:
			c.onOpened()
		case repositories.StreamAudio:
			c.onAudio(ev.Audio)
		case repositories.StreamToolCall:
			c.onToolCall(ev.Tool)
		case repositories.StreamInterrupted:
			c.sched.Interrupt()
		case repositories.StreamClosed:
			if ev.Err != nil {
				c.logger.Error("Coaching stream failed",
					zap.String("sessionID", c.Entity.ID),
					zap.Error(ev.Err))
				c.status(StatusLinkFailure, "connection to coach lost")
			}
			c.Stop()
			return
		}
	}
}

func (c *CoachSession) onOpened() {
	if err := c.Entity.Activate(); err != nil {
		c.logger.Warn("Unexpected open acknowledgment", zap.Error(err))
		return
	}

	go c.audioPump()
	go c.framePump()
	go c.store.RunSweeper(c.ctx)

	c.status(StatusActive, "")
	c.logger.Info("Coaching session active", zap.String("sessionID", c.Entity.ID))
}

// audioPump forwards microphone chunks to the stream as they become
// available. Chunks produced while the channel is not open are dropped by
// SendMedia; nothing is buffered across a closed channel.
func (c *CoachSession) audioPump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case samples, ok := <-c.handle.Audio.Chunks():
			if !ok {
				return
			}
			err := c.stream.SendMedia(repositories.MediaChunk{
				Data:     codec.EncodePCM16(samples),
				MIMEType: repositories.AudioMIMEType,
			})
			if err != nil {
				return
			}
		}
	}
}

// framePump sends one frame snapshot per FrameInterval. If the previous
// frame's encode and send has not completed when the timer fires, the new
// frame is dropped to bound memory.
func (c *CoachSession) framePump() {
	ticker := time.NewTicker(FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			frame, ok := c.latestFrame()
			if !ok {
				return
			}
			if frame == nil {
				continue
			}
			if !c.frameBusy.CompareAndSwap(false, true) {
				continue
			}
			go func(jpeg []byte) {
				defer c.frameBusy.Store(false)
				err := c.stream.SendMedia(repositories.MediaChunk{
					Data:     jpeg,
					MIMEType: repositories.VideoMIMEType,
				})
				if err != nil {
					c.logger.Debug("Frame dropped on closed stream",
						zap.String("sessionID", c.Entity.ID))
				}
			}(frame)
		}
	}
}

// latestFrame drains the frame source and keeps only the newest snapshot.
// Returns ok=false when the source is gone.
func (c *CoachSession) latestFrame() ([]byte, bool) {
	var frame []byte
	for {
		select {
		case f, ok := <-c.handle.Video.Frames():
			if !ok {
				return nil, false
			}
			frame = f
		default:
			return frame, true
		}
	}
}

// onAudio decodes one synthesized segment and schedules it for gapless
// playback in receipt order. A malformed frame is dropped; the session
// continues.
func (c *CoachSession) onAudio(payload []byte) {
	buf, err := codec.DecodeInbound(payload, codec.OutputSampleRate, 1)
	if err != nil {
		c.logger.Warn("Dropping malformed audio frame",
			zap.String("sessionID", c.Entity.ID),
			zap.Int("bytes", len(payload)),
			zap.Error(err))
		return
	}
	c.sched.Schedule(payload, buf.Duration())
}

// onToolCall applies the HUD update and acknowledges the call. The remote
// cannot observe ordering between the two, but the ack goes out exactly once.
func (c *CoachSession) onToolCall(call *repositories.ToolCall) {
	if call == nil {
		return
	}
	c.store.Upsert(call.Part, call.Status, call.Feedback)

	ctx, cancel := context.WithTimeout(context.Background(), toolAckTimeout)
	defer cancel()
	if err := c.stream.SendToolAck(ctx, call.ID, call.Name); err != nil {
		c.logger.Warn("Failed to acknowledge tool call",
			zap.String("sessionID", c.Entity.ID),
			zap.String("callID", call.ID),
			zap.Error(err))
	}
}

// SubmitJointReadings evaluates pose telemetry locally and folds the
// findings into the HUD, alongside whatever the remote model reports.
func (c *CoachSession) SubmitJointReadings(r biomech.JointReadings) {
	if c.Entity.Ended() {
		return
	}
	for _, finding := range biomech.EvaluateForm(r) {
		c.store.Upsert(finding.Part, finding.Status, finding.Feedback)
	}
}

// Annotations returns the current HUD snapshot.
func (c *CoachSession) Annotations() map[entities.BodyPart]entities.Annotation {
	return c.store.Snapshot()
}

// Stop tears the session down: cancels both producers and the sweeper,
// closes the streaming channel and clears the HUD. Idempotent and safe from
// any state, including after a mid-connect error. Media capture is NOT
// released here; the camera stays on until the caller decides otherwise.
func (c *CoachSession) Stop() {
	c.stopOnce.Do(func() {
		c.Entity.BeginClosing()
		c.cancel()
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("Error closing coaching stream", zap.Error(err))
		}
		c.store.Clear()
		c.Entity.Closed()
		c.service.clear(c.Entity.DeviceID, c)
		c.status(StatusStopped, "")
		c.logger.Info("Coaching session stopped",
			zap.String("sessionID", c.Entity.ID),
			zap.Duration("duration", c.Entity.Duration()))
	})
}

// Done is closed once the dispatch loop has fully drained.
func (c *CoachSession) Done() <-chan struct{} {
	return c.done
}
