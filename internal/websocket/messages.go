package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/internal/biomech"
	"github.com/formpulse/livecoach/internal/codec"
	"github.com/formpulse/livecoach/internal/playback"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	// Device -> gateway
	MessageTypeMediaReady     MessageType = "media_ready"
	MessageTypeMediaRelease   MessageType = "media_release"
	MessageTypeSessionStart   MessageType = "session_start"
	MessageTypeSessionStop    MessageType = "session_stop"
	MessageTypeVideoFrame     MessageType = "video_frame"
	MessageTypeJointTelemetry MessageType = "joint_telemetry"
	MessageTypePing           MessageType = "ping"

	// Gateway -> device
	MessageTypeHUDUpdate     MessageType = "hud_update"
	MessageTypeStatus        MessageType = "status"
	MessageTypePlaybackStart MessageType = "playback_start"
	MessageTypePlaybackStop  MessageType = "playback_stop"
	MessageTypeError         MessageType = "error"
	MessageTypePong          MessageType = "pong"
)

// Error codes carried on ErrorMessage
const (
	ErrorCodePermissionDenied   = "PERMISSION_DENIED"
	ErrorCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrorCodeSessionActive      = "SESSION_ACTIVE"
	ErrorCodeMalformedFrame     = "MALFORMED_FRAME"
	ErrorCodeTransportError     = "TRANSPORT_ERROR"
	ErrorCodeInternal           = "INTERNAL"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// MediaReadyMessage announces the device has opened camera and microphone and
// will stream binary PCM plus JPEG frames.
type MediaReadyMessage struct {
	BaseMessage
	SampleRate int `json:"sample_rate"` // must be 16000
	Channels   int `json:"channels"`    // must be 1
}

// MediaReleaseMessage announces the device has closed its capture devices.
type MediaReleaseMessage struct {
	BaseMessage
}

// SessionStartMessage requests a coaching session.
type SessionStartMessage struct {
	BaseMessage
	Exercise string `json:"exercise" validate:"required"`
}

// SessionStopMessage ends the current coaching session.
type SessionStopMessage struct {
	BaseMessage
}

// VideoFrameMessage carries one base64-encoded JPEG camera snapshot.
type VideoFrameMessage struct {
	BaseMessage
	Data string `json:"data" validate:"required"` // base64 encoded JPEG
}

// JointTelemetryMessage carries pose estimation readings from the device.
type JointTelemetryMessage struct {
	BaseMessage
	Readings biomech.JointReadings `json:"readings"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// HUDUpdateMessage pushes the full annotation snapshot after every mutation.
// The device replaces its HUD wholesale; there are no deltas.
type HUDUpdateMessage struct {
	BaseMessage
	SessionID   string                `json:"session_id"`
	Annotations []entities.Annotation `json:"annotations"`
	InjuryRisk  int                   `json:"injury_risk"`
}

// StatusMessage reports a user-visible session status transition.
type StatusMessage struct {
	BaseMessage
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// PlaybackStartMessage precedes one binary PCM segment on the socket.
type PlaybackStartMessage struct {
	BaseMessage
	SessionID  string `json:"session_id"`
	Seq        int    `json:"seq"`
	StartAtMs  int64  `json:"start_at_ms"` // unix millis
	DurationMs int64  `json:"duration_ms"`
	SampleRate int    `json:"sample_rate"`
}

// PlaybackStopMessage is the hard cut: discard everything queued and go quiet.
type PlaybackStopMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	// Add timestamp if missing
	if base.Timestamp == "" {
		base.Timestamp = time.Now().Format(time.RFC3339)
	}

	switch base.Type {
	case MessageTypeMediaReady:
		var msg MediaReadyMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid media_ready message: %w", err)
		}
		if err := v.validateMediaReady(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeMediaRelease:
		var msg MediaReleaseMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid media_release message: %w", err)
		}
		return &msg, nil

	case MessageTypeSessionStart:
		var msg SessionStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid session_start message: %w", err)
		}
		if msg.Exercise == "" {
			return nil, fmt.Errorf("exercise is required")
		}
		return &msg, nil

	case MessageTypeSessionStop:
		var msg SessionStopMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid session_stop message: %w", err)
		}
		return &msg, nil

	case MessageTypeVideoFrame:
		var msg VideoFrameMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid video_frame message: %w", err)
		}
		if msg.Data == "" {
			return nil, fmt.Errorf("data is required")
		}
		return &msg, nil

	case MessageTypeJointTelemetry:
		var msg JointTelemetryMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid joint_telemetry message: %w", err)
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateMediaReady pins the audio contract: mono PCM at 16kHz. Devices that
// cannot produce it must resample before announcing readiness.
func (v *MessageValidator) validateMediaReady(msg *MediaReadyMessage) error {
	if msg.SampleRate == 0 {
		msg.SampleRate = codec.InputSampleRate
	}
	if msg.Channels == 0 {
		msg.Channels = 1
	}
	if msg.SampleRate != codec.InputSampleRate {
		return fmt.Errorf("sample_rate must be %d", codec.InputSampleRate)
	}
	if msg.Channels != 1 {
		return fmt.Errorf("channels must be 1")
	}
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Data: data,
	}
}

// CreateHUDUpdateMessage builds the snapshot push for one HUD mutation.
func CreateHUDUpdateMessage(sessionID string, snapshot map[entities.BodyPart]entities.Annotation) *HUDUpdateMessage {
	annotations := make([]entities.Annotation, 0, len(snapshot))
	for _, a := range snapshot {
		annotations = append(annotations, a)
	}
	return &HUDUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeHUDUpdate,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		SessionID:   sessionID,
		Annotations: annotations,
		InjuryRisk:  biomech.SnapshotRisk(snapshot),
	}
}

// CreateStatusMessage creates a session status message
func CreateStatusMessage(sessionID, status, message string) *StatusMessage {
	return &StatusMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStatus,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		SessionID: sessionID,
		Status:    status,
		Message:   message,
	}
}

// CreatePlaybackStartMessage creates the JSON header for one audio segment.
func CreatePlaybackStartMessage(sessionID string, seg playback.Segment) *PlaybackStartMessage {
	return &PlaybackStartMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePlaybackStart,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		SessionID:  sessionID,
		Seq:        seg.Seq,
		StartAtMs:  seg.StartAt.UnixMilli(),
		DurationMs: seg.Duration.Milliseconds(),
		SampleRate: codec.OutputSampleRate,
	}
}

// CreatePlaybackStopMessage creates the hard-cut message.
func CreatePlaybackStopMessage(sessionID string) *PlaybackStopMessage {
	return &PlaybackStopMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePlaybackStop,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		SessionID: sessionID,
	}
}
