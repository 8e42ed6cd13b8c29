// Package media owns camera and microphone access for one device. On the
// gateway the "device" is the connected client's WebSocket feed; tests plug
// in channel-backed sources.
package media

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// AudioSource yields raw float microphone samples in buffer-sized chunks.
type AudioSource interface {
	Chunks() <-chan []float32
	Close() error
}

// FrameSource yields downsampled JPEG camera frames.
type FrameSource interface {
	Frames() <-chan []byte
	Close() error
}

// Handle is an active capture handle bundling both live sources.
type Handle struct {
	Audio AudioSource
	Video FrameSource
}

// Opener acquires the underlying devices. It returns ErrPermissionDenied
// (possibly wrapped) when access is refused or the devices are absent.
type Opener func(ctx context.Context) (*Handle, error)

// CaptureAdapter acquires and releases camera plus microphone access. The
// handle is exclusively owned here; the orchestrator only ever borrows it.
type CaptureAdapter struct {
	open   Opener
	logger *zap.Logger

	mu     sync.Mutex
	handle *Handle
}

// NewCaptureAdapter wraps an opener.
func NewCaptureAdapter(open Opener, logger *zap.Logger) *CaptureAdapter {
	return &CaptureAdapter{open: open, logger: logger}
}

// Acquire requests combined audio and video access. Idempotent: while
// already acquired it returns the existing handle without touching the
// devices. Permission denial is surfaced immediately, never retried; the
// caller owns user-facing remediation.
func (a *CaptureAdapter) Acquire(ctx context.Context) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle != nil {
		return a.handle, nil
	}

	h, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	a.handle = h
	a.logger.Info("Media capture acquired")
	return h, nil
}

// Release stops the underlying sources and clears the handle. Safe to call
// repeatedly; every exit path from an active session must land here so the
// device access indicators go dark.
func (a *CaptureAdapter) Release() {
	a.mu.Lock()
	h := a.handle
	a.handle = nil
	a.mu.Unlock()

	if h == nil {
		return
	}
	if err := h.Audio.Close(); err != nil {
		a.logger.Warn("Failed to close audio source", zap.Error(err))
	}
	if err := h.Video.Close(); err != nil {
		a.logger.Warn("Failed to close video source", zap.Error(err))
	}
	a.logger.Info("Media capture released")
}

// Handle returns the active handle, if any.
func (a *CaptureAdapter) Handle() (*Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle, a.handle != nil
}
