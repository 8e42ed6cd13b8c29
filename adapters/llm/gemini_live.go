package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/domain/repositories"
)

const (
	eventBuffer = 64
	sendBuffer  = 32
)

// geminiStream adapts one *genai.Session to the CoachingStream interface:
// low-level channel callbacks become a single ordered event stream, and
// outbound media goes through a buffered queue so senders never block on the
// network.
type geminiStream struct {
	session   *genai.Session
	sessionID string
	logger    *zap.Logger

	events chan repositories.StreamEvent
	sendQ  chan repositories.MediaChunk

	closeOnce sync.Once
	closed    chan struct{}
}

func newGeminiStream(session *genai.Session, sessionID string, logger *zap.Logger) *geminiStream {
	s := &geminiStream{
		session:   session,
		sessionID: sessionID,
		logger:    logger,
		events:    make(chan repositories.StreamEvent, eventBuffer),
		sendQ:     make(chan repositories.MediaChunk, sendBuffer),
		closed:    make(chan struct{}),
	}
	go s.receiveLoop()
	go s.sendLoop()
	return s
}

func (s *geminiStream) Events() <-chan repositories.StreamEvent {
	return s.events
}

// SendMedia queues a chunk for asynchronous transmission. A full queue drops
// the chunk rather than blocking the producer; a closed stream reports
// ErrStreamClosed so producers can stop.
func (s *geminiStream) SendMedia(chunk repositories.MediaChunk) error {
	select {
	case <-s.closed:
		return entities.ErrStreamClosed
	default:
	}

	select {
	case s.sendQ <- chunk:
		return nil
	case <-s.closed:
		return entities.ErrStreamClosed
	default:
		s.logger.Debug("Send queue full, dropping media chunk",
			zap.String("sessionID", s.sessionID),
			zap.String("mimeType", chunk.MIMEType))
		return nil
	}
}

func (s *geminiStream) sendLoop() {
	for {
		select {
		case <-s.closed:
			return
		case chunk := <-s.sendQ:
			err := s.session.SendRealtimeInput(genai.LiveRealtimeInput{
				Media: &genai.Blob{
					Data:     chunk.Data,
					MIMEType: chunk.MIMEType,
				},
			})
			if err != nil {
				s.logger.Error("Failed to send media chunk",
					zap.String("sessionID", s.sessionID),
					zap.Error(err))
				s.Close()
				return
			}
		}
	}
}

func (s *geminiStream) receiveLoop() {
	defer close(s.events)

	for {
		msg, err := s.session.Receive()
		if err != nil {
			select {
			case <-s.closed:
				// Local close; the remote error is just the torn-down socket.
				s.events <- repositories.StreamEvent{Kind: repositories.StreamClosed}
			default:
				s.events <- repositories.StreamEvent{
					Kind: repositories.StreamClosed,
					Err:  fmt.Errorf("%w: %v", entities.ErrTransportError, err),
				}
			}
			return
		}
		s.dispatch(msg)
	}
}

// dispatch folds one server message into the outward event enum. Ordering is
// preserved: everything flows through the single events channel.
func (s *geminiStream) dispatch(msg *genai.LiveServerMessage) {
	if msg.SetupComplete != nil {
		s.events <- repositories.StreamEvent{Kind: repositories.StreamOpened}
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			s.events <- repositories.StreamEvent{Kind: repositories.StreamInterrupted}
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					s.events <- repositories.StreamEvent{
						Kind:  repositories.StreamAudio,
						Audio: part.InlineData.Data,
					}
				}
			}
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			call, err := parseToolCall(fc)
			if err != nil {
				// Malformed tool arguments: skip the HUD update but still
				// acknowledge so the call is answered exactly once.
				s.logger.Warn("Dropping malformed tool call",
					zap.String("sessionID", s.sessionID),
					zap.String("callID", fc.ID),
					zap.Error(err))
				if ackErr := s.SendToolAck(context.Background(), fc.ID, fc.Name); ackErr != nil {
					s.logger.Warn("Failed to ack malformed tool call", zap.Error(ackErr))
				}
				continue
			}
			s.events <- repositories.StreamEvent{
				Kind: repositories.StreamToolCall,
				Tool: call,
			}
		}
	}
}

func parseToolCall(fc *genai.FunctionCall) (*repositories.ToolCall, error) {
	if fc.Name != hudToolName {
		return nil, fmt.Errorf("unexpected tool %q", fc.Name)
	}

	argString := func(key string) (string, error) {
		v, ok := fc.Args[key]
		if !ok {
			return "", fmt.Errorf("missing argument %q", key)
		}
		str, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("argument %q is not a string", key)
		}
		return str, nil
	}

	rawPart, err := argString("part")
	if err != nil {
		return nil, err
	}
	part, err := entities.ParseBodyPart(rawPart)
	if err != nil {
		return nil, err
	}

	rawStatus, err := argString("status")
	if err != nil {
		return nil, err
	}
	status, err := entities.ParseFormStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	feedback, err := argString("feedback")
	if err != nil {
		return nil, err
	}

	return &repositories.ToolCall{
		ID:       fc.ID,
		Name:     fc.Name,
		Part:     part,
		Status:   status,
		Feedback: feedback,
	}, nil
}

// SendToolAck answers one tool call with the fixed success response.
func (s *geminiStream) SendToolAck(ctx context.Context, callID, name string) error {
	select {
	case <-s.closed:
		return entities.ErrStreamClosed
	default:
	}

	err := s.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{
			{
				ID:       callID,
				Name:     name,
				Response: map[string]any{"result": "ok"},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}
	return nil
}

// Close tears the session down. Idempotent; the receive loop delivers the
// terminal StreamClosed event and closes the event channel.
func (s *geminiStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.session.Close(); err != nil {
			s.logger.Warn("Error closing live session",
				zap.String("sessionID", s.sessionID),
				zap.Error(err))
		}
	})
	return nil
}
