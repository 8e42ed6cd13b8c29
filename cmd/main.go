package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/formpulse/livecoach/adapters/llm"
	adaptermongo "github.com/formpulse/livecoach/adapters/mongo"
	"github.com/formpulse/livecoach/adapters/registry"
	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/domain/repositories"
	"github.com/formpulse/livecoach/internal/api"
	"github.com/formpulse/livecoach/internal/websocket"
	"github.com/formpulse/livecoach/usecase"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Alert persistence is optional; without MongoDB the gateway still coaches,
	// it just keeps no session history.
	var alertRepo repositories.AlertRepository
	mongoClient, err := adaptermongo.NewClient(logger)
	if err != nil {
		logger.Warn("MongoDB unavailable, alert persistence disabled", zap.Error(err))
	} else {
		alertRepo = adaptermongo.NewAlertRepository(mongoClient.Database)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(ctx); err != nil {
				logger.Error("Failed to disconnect MongoDB", zap.Error(err))
			}
		}()
	}

	// Coaching model: real Gemini Live when configured, offline mock otherwise
	var coachModel repositories.CoachingModel
	if gemini, err := llm.NewGeminiCoach(logger); err != nil {
		logger.Warn("Gemini unavailable, using offline coach", zap.Error(err))
		coachModel = llm.NewMockCoach()
	} else {
		coachModel = gemini
	}

	// Device registry
	deviceRepo := registry.NewMemoryDeviceRepository()
	seedDevices(deviceRepo, logger)

	// Initialize usecase services
	coachService := usecase.NewCoachService(coachModel, alertRepo, logger)

	// Initialize WebSocket hub with the coaching service
	hub := websocket.NewHub(coachService, logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, deviceRepo, alertRepo, logger)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Live coach gateway started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// seedDevices registers development devices from the environment. Format:
// DEVICE_SEED="serial1:secret1,serial2:secret2"
func seedDevices(repo *registry.MemoryDeviceRepository, logger *zap.Logger) {
	seed := os.Getenv("DEVICE_SEED")
	if seed == "" {
		return
	}

	count := 0
	for _, pair := range strings.Split(seed, ",") {
		serial, secret, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || serial == "" || secret == "" {
			logger.Warn("Skipping malformed device seed entry", zap.String("entry", pair))
			continue
		}
		device := &entities.Device{
			SerialNumber: serial,
			Model:        "dev-seed",
		}
		if err := repo.Register(device, secret); err != nil {
			logger.Warn("Failed to seed device",
				zap.String("serial_number", serial),
				zap.Error(err))
			continue
		}
		count++
	}
	if count > 0 {
		logger.Info("Seeded development devices", zap.Int("count", count))
	}
}
