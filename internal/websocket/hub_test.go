package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/formpulse/livecoach/adapters/llm"
	"github.com/formpulse/livecoach/internal/playback"
	"github.com/formpulse/livecoach/usecase"
)

func setupTestHub(t testing.TB) (*Hub, *llm.MockCoach) {
	t.Helper()
	logger := zap.NewNop() // No-op logger for tests
	coach := llm.NewMockCoach()
	hub := NewHub(usecase.NewCoachService(coach, nil, logger), logger)
	return hub, coach
}

func newTestClient(t testing.TB, hub *Hub) *Client {
	t.Helper()
	return newClient(hub, nil, "test-device-1", zap.NewNop())
}

// nextText pops the next queued outbound JSON message.
func nextText(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.send:
		if data.Type != websocket.TextMessage {
			t.Fatalf("expected text message, got type %d", data.Type)
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(data.Payload, &msg); err != nil {
			t.Fatalf("invalid JSON on send queue: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no outbound message before deadline")
		return nil
	}
}

func TestHub_NewHub(t *testing.T) {
	hub, _ := setupTestHub(t)

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map not initialized")
	}
	if hub.register == nil {
		t.Error("Hub register channel not initialized")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel not initialized")
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub, _ := setupTestHub(t)
	go hub.Run()

	client := newTestClient(t, hub)
	hub.register <- client

	deadline := time.After(time.Second)
	for {
		hub.mu.RLock()
		_, ok := hub.clients[client.deviceID]
		hub.mu.RUnlock()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	hub.unregister <- client
	for {
		hub.mu.RLock()
		_, ok := hub.clients[client.deviceID]
		hub.mu.RUnlock()
		if !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("client never unregistered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSessionStartWithoutMediaReady(t *testing.T) {
	hub, _ := setupTestHub(t)
	client := newTestClient(t, hub)

	client.processMessage([]byte(`{"type": "session_start", "exercise": "squat"}`))

	msg := nextText(t, client)
	if msg["type"] != string(MessageTypeError) {
		t.Fatalf("expected error message, got %v", msg["type"])
	}
	if msg["error_code"] != ErrorCodePermissionDenied {
		t.Errorf("expected %s, got %v", ErrorCodePermissionDenied, msg["error_code"])
	}
}

func TestMediaReadySessionLifecycle(t *testing.T) {
	hub, _ := setupTestHub(t)
	client := newTestClient(t, hub)

	client.processMessage([]byte(`{"type": "media_ready", "sample_rate": 16000, "channels": 1}`))
	if msg := nextText(t, client); msg["status"] != "media_ready" {
		t.Fatalf("expected media_ready ack, got %v", msg)
	}

	client.processMessage([]byte(`{"type": "session_start", "exercise": "squat"}`))

	// connecting status queued synchronously by Start
	if msg := nextText(t, client); msg["status"] != "connecting" {
		t.Fatalf("expected connecting status, got %v", msg)
	}

	client.mutex.Lock()
	session := client.session
	client.mutex.Unlock()
	if session == nil {
		t.Fatal("no session established after session_start")
	}

	client.processMessage([]byte(`{"type": "session_stop"}`))
	if !session.Entity.Ended() {
		t.Error("session not ended after session_stop")
	}

	// Media stays acquired until the device releases it.
	if _, ok := client.capture.Handle(); !ok {
		t.Error("session_stop released media capture")
	}

	client.processMessage([]byte(`{"type": "media_release"}`))
	if _, ok := client.capture.Handle(); ok {
		t.Error("media_release left capture acquired")
	}
}

func TestSecondSessionStartRejected(t *testing.T) {
	hub, _ := setupTestHub(t)
	client := newTestClient(t, hub)

	client.processMessage([]byte(`{"type": "media_ready"}`))
	nextText(t, client) // media_ready ack
	client.processMessage([]byte(`{"type": "session_start", "exercise": "squat"}`))
	nextText(t, client) // connecting

	client.processMessage([]byte(`{"type": "session_start", "exercise": "squat"}`))

	for {
		msg := nextText(t, client)
		if msg["type"] != string(MessageTypeError) {
			continue // skip async status pushes
		}
		if msg["error_code"] != ErrorCodeSessionActive {
			t.Errorf("expected %s, got %v", ErrorCodeSessionActive, msg["error_code"])
		}
		return
	}
}

func TestBinaryAudioBeforeMediaReadyIsDropped(t *testing.T) {
	hub, _ := setupTestHub(t)
	client := newTestClient(t, hub)

	// Must not panic or queue anything.
	client.processBinaryAudioChunk(make([]byte, 320))

	select {
	case data := <-client.send:
		t.Errorf("unexpected outbound message: %v", data)
	default:
	}
}

func TestBinaryAudioReachesMicSource(t *testing.T) {
	hub, _ := setupTestHub(t)
	client := newTestClient(t, hub)

	client.processMessage([]byte(`{"type": "media_ready"}`))
	nextText(t, client)

	client.processBinaryAudioChunk([]byte{0x00, 0x40}) // one sample, 0.5

	select {
	case samples := <-client.mic.Chunks():
		if len(samples) != 1 {
			t.Fatalf("expected 1 sample, got %d", len(samples))
		}
		if samples[0] != 0.5 {
			t.Errorf("sample = %f, want 0.5", samples[0])
		}
	case <-time.After(time.Second):
		t.Fatal("audio chunk never reached mic source")
	}
}

func TestMalformedVideoFrameDropped(t *testing.T) {
	hub, _ := setupTestHub(t)
	client := newTestClient(t, hub)

	client.processMessage([]byte(`{"type": "media_ready"}`))
	nextText(t, client)

	client.processMessage([]byte(`{"type": "video_frame", "data": "%%%not-base64%%%"}`))

	select {
	case frame := <-client.camera.Frames():
		t.Errorf("malformed frame was forwarded: %v", frame)
	default:
	}
}

func TestDeviceLinkPlaySendsHeaderThenPCM(t *testing.T) {
	hub, _ := setupTestHub(t)
	client := newTestClient(t, hub)

	link := &deviceLink{client: client}
	link.bind("session-1")

	pcm := []byte{1, 2, 3, 4}
	link.Play(playback.Segment{
		Seq:      1,
		StartAt:  time.Now(),
		Duration: time.Second,
		PCM:      pcm,
	})

	header := nextText(t, client)
	if header["type"] != string(MessageTypePlaybackStart) {
		t.Fatalf("expected playback_start header, got %v", header["type"])
	}
	if header["session_id"] != "session-1" {
		t.Errorf("header session_id = %v", header["session_id"])
	}

	select {
	case data := <-client.send:
		if data.Type != websocket.BinaryMessage {
			t.Fatalf("expected binary message, got type %d", data.Type)
		}
		if string(data.Payload) != string(pcm) {
			t.Errorf("binary payload = %v, want %v", data.Payload, pcm)
		}
	case <-time.After(time.Second):
		t.Fatal("no binary payload after header")
	}
}
