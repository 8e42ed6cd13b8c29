package llm

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/formpulse/livecoach/domain/repositories"
)

const (
	defaultLiveModel = "gemini-2.0-flash-live-001"

	// hudToolName is the function the model calls to update a HUD annotation.
	hudToolName = "update_form_hud"

	systemPrompt = `You are a real-time strength coach watching the user exercise ` +
		`through their camera while listening to them. Give short spoken cues. ` +
		`Whenever you observe a form issue or an improvement on a tracked body ` +
		`part (spine, knees, shoulders, head, core), call ` + hudToolName + ` with ` +
		`the part, a status of optimal, warning or critical, and one concise ` +
		`corrective instruction.`
)

// GeminiCoach implements CoachingModel over the Gemini Live API.
type GeminiCoach struct {
	client *genai.Client
	logger *zap.Logger
	model  string
}

// NewGeminiCoach creates the coaching model client from the environment.
func NewGeminiCoach(logger *zap.Logger) (*GeminiCoach, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := os.Getenv("COACH_LIVE_MODEL")
	if model == "" {
		model = defaultLiveModel
	}

	return &GeminiCoach{
		client: client,
		logger: logger,
		model:  model,
	}, nil
}

// hudTool declares the HUD update function exposed to the model.
func hudTool() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        hudToolName,
				Description: "Update the on-screen form annotation for one body part.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"part": {
							Type: genai.TypeString,
							Enum: []string{"spine", "knees", "shoulders", "head", "core"},
						},
						"status": {
							Type: genai.TypeString,
							Enum: []string{"optimal", "warning", "critical"},
						},
						"feedback": {
							Type: genai.TypeString,
						},
					},
					Required: []string{"part", "status", "feedback"},
				},
			},
		},
	}
}

// Connect opens one bidirectional live session with the coaching model.
func (g *GeminiCoach) Connect(ctx context.Context, cfg repositories.SessionConfig) (repositories.CoachingStream, error) {
	prompt := systemPrompt
	if cfg.Exercise != "" {
		prompt += fmt.Sprintf(" The user is currently performing: %s.", cfg.Exercise)
	}

	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  genai.NewContentFromText(prompt, genai.RoleUser),
		Tools:              []*genai.Tool{hudTool()},
	}

	session, err := g.client.Live.Connect(ctx, g.model, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open live session: %w", err)
	}

	g.logger.Info("Live coaching session connected",
		zap.String("sessionID", cfg.SessionID),
		zap.String("model", g.model))

	return newGeminiStream(session, cfg.SessionID, g.logger), nil
}
