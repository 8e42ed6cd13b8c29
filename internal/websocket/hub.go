package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/internal/codec"
	"github.com/formpulse/livecoach/internal/media"
	"github.com/formpulse/livecoach/internal/playback"
	"github.com/formpulse/livecoach/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks and JPEG frames
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active device clients.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	coach *usecase.CoachService

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(coach *usecase.CoachService, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		coach:      coach,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.deviceID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("deviceID", client.deviceID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.deviceID]; ok {
				delete(h.clients, client.deviceID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("deviceID", client.deviceID))
		}
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between one device's websocket connection and the
// coaching pipeline: binary inbound is microphone PCM, JSON inbound is
// control, JSON plus binary outbound is HUD state and synthesized speech.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Device ID for this client
	deviceID string

	// Logger
	logger *zap.Logger

	validator *MessageValidator

	// Capture and session state for this device
	capture *media.CaptureAdapter
	mic     *micSource
	camera  *cameraSource
	session *usecase.CoachSession

	mutex sync.Mutex
}

// HandleWebSocketWithAuth handles websocket requests with pre-authenticated device ID
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, deviceID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := newClient(hub, conn, deviceID, logger)
	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

func newClient(hub *Hub, conn *websocket.Conn, deviceID string, logger *zap.Logger) *Client {
	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		deviceID:  deviceID,
		logger:    logger,
		validator: NewMessageValidator(),
	}
	c.capture = media.NewCaptureAdapter(c.openMedia, logger)
	return c
}

// openMedia hands the capture adapter this device's live feeds. Acquisition
// fails until the device has announced media_ready; that is the gateway's
// view of "the user granted camera and microphone access".
func (c *Client) openMedia(ctx context.Context) (*media.Handle, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.mic == nil || c.camera == nil {
		return nil, fmt.Errorf("%w: device has not announced media_ready", entities.ErrPermissionDenied)
	}
	return &media.Handle{Audio: c.mic, Video: c.camera}, nil
}

// readPump pumps messages from the websocket connection to the pipeline.
func (c *Client) readPump() {
	defer func() {
		c.teardown()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			// Process JSON messages (control messages, telemetry, frames)
			c.processMessage(message)
		case websocket.BinaryMessage:
			// Binary inbound is raw microphone PCM
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the pipeline to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage processes incoming JSON messages from the device
func (c *Client) processMessage(message []byte) {
	parsed, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected message", zap.String("deviceID", c.deviceID), zap.Error(err))
		c.enqueueJSON(CreateErrorMessage(ErrorCodeMalformedFrame, "invalid message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *MediaReadyMessage:
		c.handleMediaReady(msg)
	case *MediaReleaseMessage:
		c.handleMediaRelease()
	case *SessionStartMessage:
		c.handleSessionStart(msg)
	case *SessionStopMessage:
		c.handleSessionStop()
	case *VideoFrameMessage:
		c.handleVideoFrame(msg)
	case *JointTelemetryMessage:
		c.handleJointTelemetry(msg)
	case *PingMessage:
		c.enqueueJSON(CreatePongMessage(msg.Data))
	default:
		c.logger.Warn("Unhandled message", zap.String("deviceID", c.deviceID))
	}
}

// processBinaryAudioChunk handles raw microphone PCM from the device
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mutex.Lock()
	mic := c.mic
	c.mutex.Unlock()

	if mic == nil {
		c.logger.Warn("Received audio chunk before media_ready",
			zap.String("deviceID", c.deviceID))
		return
	}

	buf, err := codec.DecodeInbound(data, codec.InputSampleRate, 1)
	if err != nil {
		c.logger.Warn("Dropping malformed audio chunk",
			zap.String("deviceID", c.deviceID),
			zap.Int("size", len(data)),
			zap.Error(err))
		return
	}

	mic.push(buf.Channels[0])
}

// handleMediaReady opens this device's capture feeds.
func (c *Client) handleMediaReady(msg *MediaReadyMessage) {
	c.mutex.Lock()
	if c.mic == nil {
		c.mic = newMicSource()
		c.camera = newCameraSource()
	}
	c.mutex.Unlock()

	c.logger.Info("Media ready",
		zap.String("deviceID", c.deviceID),
		zap.Int("sampleRate", msg.SampleRate))
	c.enqueueJSON(CreateStatusMessage("", "media_ready", ""))
}

// handleMediaRelease closes the capture feeds. An active session cannot
// outlive its media, so it is stopped first.
func (c *Client) handleMediaRelease() {
	c.mutex.Lock()
	session := c.session
	c.session = nil
	c.mutex.Unlock()

	if session != nil {
		session.Stop()
	}
	c.capture.Release()

	c.mutex.Lock()
	c.mic = nil
	c.camera = nil
	c.mutex.Unlock()

	c.enqueueJSON(CreateStatusMessage("", "media_released", ""))
}

// handleSessionStart acquires media and opens a coaching session.
func (c *Client) handleSessionStart(msg *SessionStartMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := c.capture.Acquire(ctx); err != nil {
		c.logger.Warn("Media acquisition failed",
			zap.String("deviceID", c.deviceID),
			zap.Error(err))
		c.enqueueJSON(errorMessageFor(err, "media acquisition failed"))
		return
	}

	link := &deviceLink{client: c}
	session, err := c.hub.coach.Start(ctx, usecase.SessionOptions{
		DeviceID:    c.deviceID,
		Exercise:    msg.Exercise,
		Capture:     c.capture,
		Sink:        link,
		OnHUDChange: link.onHUDChange,
		OnStatus:    link.onStatus,
	})
	if err != nil {
		c.logger.Error("Failed to start coaching session",
			zap.String("deviceID", c.deviceID),
			zap.Error(err))
		c.enqueueJSON(errorMessageFor(err, "failed to start session"))
		return
	}
	link.bind(session.Entity.ID)

	c.mutex.Lock()
	c.session = session
	c.mutex.Unlock()
}

// handleSessionStop ends the session but leaves media acquired; the device's
// indicators stay on until it sends media_release.
func (c *Client) handleSessionStop() {
	c.mutex.Lock()
	session := c.session
	c.session = nil
	c.mutex.Unlock()

	if session == nil {
		c.enqueueJSON(CreateErrorMessage(ErrorCodePreconditionFailed, "no active session", ""))
		return
	}
	session.Stop()
}

// handleVideoFrame pushes one JPEG snapshot into the camera feed.
func (c *Client) handleVideoFrame(msg *VideoFrameMessage) {
	frame, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		c.logger.Warn("Dropping malformed video frame",
			zap.String("deviceID", c.deviceID),
			zap.Error(err))
		return
	}

	c.mutex.Lock()
	camera := c.camera
	c.mutex.Unlock()

	if camera == nil {
		c.logger.Warn("Received video frame before media_ready",
			zap.String("deviceID", c.deviceID))
		return
	}
	camera.push(frame)
}

// handleJointTelemetry folds local pose evaluation into the running session.
func (c *Client) handleJointTelemetry(msg *JointTelemetryMessage) {
	c.mutex.Lock()
	session := c.session
	c.mutex.Unlock()

	if session == nil {
		c.logger.Debug("Joint telemetry without active session",
			zap.String("deviceID", c.deviceID))
		return
	}
	session.SubmitJointReadings(msg.Readings)
}

// teardown runs on disconnect: the session cannot survive its transport.
func (c *Client) teardown() {
	c.mutex.Lock()
	session := c.session
	c.session = nil
	c.mutex.Unlock()

	if session != nil {
		session.Stop()
	}
	c.capture.Release()
}

// enqueueJSON queues one JSON message for the device, dropping on a full
// send buffer rather than blocking the pipeline.
func (c *Client) enqueueJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Send buffer full, dropping message",
			zap.String("deviceID", c.deviceID))
	}
}

func (c *Client) enqueueBinary(payload []byte) {
	select {
	case c.send <- WriteData{Type: websocket.BinaryMessage, Payload: payload}:
	default:
		c.logger.Warn("Send buffer full, dropping audio segment",
			zap.String("deviceID", c.deviceID))
	}
}

// errorMessageFor maps pipeline error classes onto wire error codes.
func errorMessageFor(err error, message string) *ErrorMessage {
	code := ErrorCodeInternal
	switch {
	case errors.Is(err, entities.ErrPermissionDenied):
		code = ErrorCodePermissionDenied
	case errors.Is(err, entities.ErrPreconditionFailed):
		code = ErrorCodePreconditionFailed
	case errors.Is(err, entities.ErrSessionActive):
		code = ErrorCodeSessionActive
	case errors.Is(err, entities.ErrMalformedFrame):
		code = ErrorCodeMalformedFrame
	case errors.Is(err, entities.ErrTransportError):
		code = ErrorCodeTransportError
	}
	return CreateErrorMessage(code, message, err.Error())
}

// deviceLink adapts one client connection into the session's playback sink
// and callback surface. The session id is bound right after start; callbacks
// fired before that carry an empty id, which the device tolerates.
type deviceLink struct {
	client *Client

	mu        sync.Mutex
	sessionID string
}

func (l *deviceLink) bind(id string) {
	l.mu.Lock()
	l.sessionID = id
	l.mu.Unlock()
}

func (l *deviceLink) id() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// Play sends the segment header followed by its raw PCM payload. The device
// queues the PCM into its own playback buffer at the scheduled offset.
func (l *deviceLink) Play(seg playback.Segment) {
	l.client.enqueueJSON(CreatePlaybackStartMessage(l.id(), seg))
	l.client.enqueueBinary(seg.PCM)
}

// Stop is the interruption cut.
func (l *deviceLink) Stop() {
	l.client.enqueueJSON(CreatePlaybackStopMessage(l.id()))
}

func (l *deviceLink) onHUDChange(snapshot map[entities.BodyPart]entities.Annotation) {
	l.client.enqueueJSON(CreateHUDUpdateMessage(l.id(), snapshot))
}

func (l *deviceLink) onStatus(kind usecase.StatusKind, message string) {
	l.client.enqueueJSON(CreateStatusMessage(l.id(), string(kind), message))
}
