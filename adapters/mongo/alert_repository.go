package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/formpulse/livecoach/domain/entities"
	"github.com/formpulse/livecoach/domain/repositories"
)

// AlertRepository persists form alerts in the form_alerts collection.
type AlertRepository struct {
	collection *mongo.Collection
}

// NewAlertRepository creates a MongoDB-backed alert repository.
func NewAlertRepository(db *mongo.Database) repositories.AlertRepository {
	return &AlertRepository{
		collection: db.Collection("form_alerts"),
	}
}

// RecordAlert implements repositories.AlertRepository.
func (r *AlertRepository) RecordAlert(ctx context.Context, alert *entities.FormAlert) error {
	if alert == nil {
		return errors.New("alert cannot be nil")
	}
	if alert.SessionID == "" {
		return errors.New("session_id is required")
	}

	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	doc := bson.M{
		"session_id": alert.SessionID,
		"device_id":  alert.DeviceID,
		"part":       alert.Part,
		"status":     alert.Status,
		"feedback":   alert.Feedback,
		"created_at": alert.CreatedAt,
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to record form alert: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		alert.ID = oid.Hex()
	}
	return nil
}

// GetBySessionID returns all alerts recorded for one session, oldest first.
func (r *AlertRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*entities.FormAlert, error) {
	if sessionID == "" {
		return nil, errors.New("session_id is required")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query form alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*entities.FormAlert
	for cursor.Next(ctx) {
		var doc struct {
			ID        primitive.ObjectID  `bson:"_id"`
			SessionID string              `bson:"session_id"`
			DeviceID  string              `bson:"device_id"`
			Part      entities.BodyPart   `bson:"part"`
			Status    entities.FormStatus `bson:"status"`
			Feedback  string              `bson:"feedback"`
			CreatedAt time.Time           `bson:"created_at"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode form alert: %w", err)
		}
		alerts = append(alerts, &entities.FormAlert{
			ID:        doc.ID.Hex(),
			SessionID: doc.SessionID,
			DeviceID:  doc.DeviceID,
			Part:      doc.Part,
			Status:    doc.Status,
			Feedback:  doc.Feedback,
			CreatedAt: doc.CreatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error reading form alerts: %w", err)
	}

	return alerts, nil
}
