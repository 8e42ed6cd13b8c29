package repositories

import (
	"context"

	"github.com/formpulse/livecoach/domain/entities"
)

// AlertRepository persists non-optimal form alerts. Callers treat it as
// fire-and-forget: a failed write is logged and never affects session state.
type AlertRepository interface {
	RecordAlert(ctx context.Context, alert *entities.FormAlert) error
	GetBySessionID(ctx context.Context, sessionID string) ([]*entities.FormAlert, error)
}
