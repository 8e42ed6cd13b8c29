package repositories

import (
	"context"

	"github.com/formpulse/livecoach/domain/entities"
)

// Wire formats for media exchanged with the coaching model.
const (
	AudioMIMEType = "audio/pcm;rate=16000"
	VideoMIMEType = "image/jpeg"
)

// MediaChunk is one outbound media payload: a PCM audio chunk or a JPEG
// frame snapshot. Ownership is transient; the chunk is encoded, queued for
// transmission and discarded.
type MediaChunk struct {
	Data     []byte
	MIMEType string
}

// StreamEventKind enumerates everything the remote side can tell us. Channel
// callbacks are folded into this single event enum so one dispatch loop
// preserves ordering.
type StreamEventKind string

const (
	// StreamOpened: the remote acknowledged the connection.
	StreamOpened StreamEventKind = "opened"
	// StreamAudio: a synthesized audio segment (16-bit PCM, 24000 Hz mono).
	StreamAudio StreamEventKind = "audio"
	// StreamToolCall: the model asked us to update a HUD annotation.
	StreamToolCall StreamEventKind = "tool_call"
	// StreamInterrupted: the user spoke over playback; playback must be cut
	// immediately, not faded.
	StreamInterrupted StreamEventKind = "interrupted"
	// StreamClosed: remote close or transport error; terminal.
	StreamClosed StreamEventKind = "closed"
)

// ToolCall carries a HUD update instruction issued by the model. Each call
// must be acknowledged exactly once via SendToolAck.
type ToolCall struct {
	ID       string
	Name     string
	Part     entities.BodyPart
	Status   entities.FormStatus
	Feedback string
}

// StreamEvent is one inbound event from the coaching stream.
type StreamEvent struct {
	Kind  StreamEventKind
	Audio []byte    // set when Kind == StreamAudio
	Tool  *ToolCall // set when Kind == StreamToolCall
	Err   error     // set when Kind == StreamClosed and the close was an error
}

// CoachingStream is one open bidirectional channel to the coaching model.
//
// State machine: Connecting -> Open -> Closed (terminal). There is no
// automatic reconnect; a new stream must be created through CoachingModel.
type CoachingStream interface {
	// Events delivers inbound events in arrival order. The channel is closed
	// after a StreamClosed event has been delivered.
	Events() <-chan StreamEvent

	// SendMedia queues a chunk for asynchronous transmission. It never blocks
	// waiting for the transmission to complete. Chunks sent while the stream
	// is not open are silently dropped; ErrStreamClosed is returned so the
	// caller can stop producing.
	SendMedia(chunk MediaChunk) error

	// SendToolAck acknowledges one tool call with a fixed success response.
	SendToolAck(ctx context.Context, callID, name string) error

	// Close tears the channel down. Idempotent.
	Close() error
}

// SessionConfig parameterizes one coaching connection.
type SessionConfig struct {
	SessionID string
	Exercise  string
}

// CoachingModel opens streaming sessions with the remote coaching model.
type CoachingModel interface {
	Connect(ctx context.Context, cfg SessionConfig) (CoachingStream, error)
}
