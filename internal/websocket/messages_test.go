package websocket

import (
	"fmt"
	"testing"
	"time"

	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/internal/playback"
)

func TestMessageValidator_ValidateMediaReady(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name:    "valid media ready",
			message: `{"type": "media_ready", "sample_rate": 16000, "channels": 1}`,
			wantErr: false,
		},
		{
			name:    "defaults applied when omitted",
			message: `{"type": "media_ready"}`,
			wantErr: false,
		},
		{
			name:    "wrong sample rate",
			message: `{"type": "media_ready", "sample_rate": 44100, "channels": 1}`,
			wantErr: true,
		},
		{
			name:    "stereo rejected",
			message: `{"type": "media_ready", "sample_rate": 16000, "channels": 2}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidator_ValidateSessionStart(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type": "session_start", "exercise": "squat"}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	msg, ok := result.(*SessionStartMessage)
	if !ok {
		t.Fatalf("Expected *SessionStartMessage, got %T", result)
	}
	if msg.Exercise != "squat" {
		t.Errorf("Expected exercise 'squat', got '%s'", msg.Exercise)
	}

	if _, err := validator.ValidateMessage([]byte(`{"type": "session_start"}`)); err == nil {
		t.Error("Expected error for missing exercise, got nil")
	}
}

func TestMessageValidator_ValidateJointTelemetry(t *testing.T) {
	validator := NewMessageValidator()

	message := `{
		"type": "joint_telemetry",
		"readings": {"spine_angle": 150.0, "knee_alignment": "valgus"}
	}`

	result, err := validator.ValidateMessage([]byte(message))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	msg, ok := result.(*JointTelemetryMessage)
	if !ok {
		t.Fatalf("Expected *JointTelemetryMessage, got %T", result)
	}
	if msg.Readings.SpineAngle == nil || *msg.Readings.SpineAngle != 150.0 {
		t.Errorf("Unexpected spine angle: %v", msg.Readings.SpineAngle)
	}
	if msg.Readings.KneeAlignment != "valgus" {
		t.Errorf("Expected knee alignment 'valgus', got '%s'", msg.Readings.KneeAlignment)
	}
}

func TestMessageValidator_InvalidJSON(t *testing.T) {
	validator := NewMessageValidator()

	invalidMessages := []string{
		`{invalid json}`,
		`{"type": "video_frame", "data":}`,
		``,
		`null`,
	}

	for i, msg := range invalidMessages {
		t.Run(fmt.Sprintf("invalid_json_%d", i), func(t *testing.T) {
			if _, err := validator.ValidateMessage([]byte(msg)); err == nil {
				t.Errorf("Expected error for invalid JSON, got nil")
			}
		})
	}
}

func TestMessageValidator_UnsupportedMessageType(t *testing.T) {
	validator := NewMessageValidator()

	if _, err := validator.ValidateMessage([]byte(`{"type": "unsupported_type"}`)); err == nil {
		t.Errorf("Expected error for unsupported message type, got nil")
	}
}

func TestCreateErrorMessage(t *testing.T) {
	errorMsg := CreateErrorMessage(ErrorCodePermissionDenied, "camera access denied", "details")

	if errorMsg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, errorMsg.Type)
	}
	if errorMsg.Code != ErrorCodePermissionDenied {
		t.Errorf("Expected code %s, got %s", ErrorCodePermissionDenied, errorMsg.Code)
	}

	timestamp, err := time.Parse(time.RFC3339, errorMsg.Timestamp)
	if err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}
	if time.Since(timestamp) > time.Second {
		t.Errorf("Timestamp is not recent: %s", errorMsg.Timestamp)
	}
}

func TestCreateHUDUpdateMessage(t *testing.T) {
	snapshot := map[entities.BodyPart]entities.Annotation{
		entities.BodyPartSpine: {
			Part:     entities.BodyPartSpine,
			Status:   entities.FormStatusCritical,
			Feedback: "fix it",
		},
		entities.BodyPartKnees: {
			Part:     entities.BodyPartKnees,
			Status:   entities.FormStatusOptimal,
			Feedback: "good",
		},
	}

	msg := CreateHUDUpdateMessage("session-1", snapshot)

	if msg.Type != MessageTypeHUDUpdate {
		t.Errorf("Expected type %s, got %s", MessageTypeHUDUpdate, msg.Type)
	}
	if len(msg.Annotations) != 2 {
		t.Errorf("Expected 2 annotations, got %d", len(msg.Annotations))
	}
	// critical 40 + optimal 0 + 5 floor
	if msg.InjuryRisk != 45 {
		t.Errorf("Expected injury risk 45, got %d", msg.InjuryRisk)
	}
}

func TestCreatePlaybackStartMessage(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seg := playback.Segment{
		Seq:      3,
		StartAt:  start,
		Duration: 1500 * time.Millisecond,
		PCM:      make([]byte, 4),
	}

	msg := CreatePlaybackStartMessage("session-1", seg)

	if msg.Seq != 3 {
		t.Errorf("Expected seq 3, got %d", msg.Seq)
	}
	if msg.StartAtMs != start.UnixMilli() {
		t.Errorf("Expected start %d, got %d", start.UnixMilli(), msg.StartAtMs)
	}
	if msg.DurationMs != 1500 {
		t.Errorf("Expected duration 1500ms, got %d", msg.DurationMs)
	}
	if msg.SampleRate != 24000 {
		t.Errorf("Expected sample rate 24000, got %d", msg.SampleRate)
	}
}
