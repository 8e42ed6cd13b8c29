package entities

import "errors"

// Error taxonomy for the coaching pipeline. Callers classify failures with
// errors.Is and decide remediation per class; adapters wrap these with
// context using fmt.Errorf and %w.
var (
	// ErrPermissionDenied means camera or microphone access was refused.
	// Surfaced immediately to the user, never retried automatically.
	ErrPermissionDenied = errors.New("media permission denied")

	// ErrPreconditionFailed means an operation ran before its prerequisites,
	// such as starting a session without acquired media.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrMalformedFrame means an inbound media payload could not be decoded.
	// The frame is dropped; the session continues.
	ErrMalformedFrame = errors.New("malformed media frame")

	// ErrTransportError means the streaming channel failed mid-session. The
	// session is torn down; the user must start a new one.
	ErrTransportError = errors.New("coaching transport error")

	// ErrSessionActive means a session already exists for the device or the
	// session is not in a state that permits the transition.
	ErrSessionActive = errors.New("session already active")

	// ErrStreamClosed means a send was attempted on a closed coaching stream.
	ErrStreamClosed = errors.New("coaching stream closed")
)
