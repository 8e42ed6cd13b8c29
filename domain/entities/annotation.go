package entities

import (
	"fmt"
	"time"
)

// BodyPart identifies a region tracked on the form HUD.
type BodyPart string

const (
	BodyPartSpine     BodyPart = "spine"
	BodyPartKnees     BodyPart = "knees"
	BodyPartShoulders BodyPart = "shoulders"
	BodyPartHead      BodyPart = "head"
	BodyPartCore      BodyPart = "core"
)

// ParseBodyPart validates a wire value against the known set.
func ParseBodyPart(s string) (BodyPart, error) {
	switch p := BodyPart(s); p {
	case BodyPartSpine, BodyPartKnees, BodyPartShoulders, BodyPartHead, BodyPartCore:
		return p, nil
	}
	return "", fmt.Errorf("unknown body part %q", s)
}

// FormStatus grades a body part's current form.
type FormStatus string

const (
	FormStatusOptimal  FormStatus = "optimal"
	FormStatusWarning  FormStatus = "warning"
	FormStatusCritical FormStatus = "critical"
)

// ParseFormStatus validates a wire value against the known set.
func ParseFormStatus(s string) (FormStatus, error) {
	switch st := FormStatus(s); st {
	case FormStatusOptimal, FormStatusWarning, FormStatusCritical:
		return st, nil
	}
	return "", fmt.Errorf("unknown form status %q", s)
}

// Annotation is one live HUD entry for a body part. Later writes for the same
// part replace earlier ones; entries age out once stale.
type Annotation struct {
	Part      BodyPart   `json:"part"`
	Status    FormStatus `json:"status"`
	Feedback  string     `json:"feedback"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// StaleAfter reports whether the annotation has outlived ttl at the given
// instant. An annotation exactly ttl old is still fresh.
func (a Annotation) StaleAfter(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.UpdatedAt) > ttl
}

// FormAlert is the persisted record of a non-optimal annotation, kept for
// post-session review.
type FormAlert struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	SessionID string     `bson:"session_id" json:"sessionId"`
	DeviceID  string     `bson:"device_id" json:"deviceId"`
	Part      BodyPart   `bson:"part" json:"part"`
	Status    FormStatus `bson:"status" json:"status"`
	Feedback  string     `bson:"feedback" json:"feedback"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
}
