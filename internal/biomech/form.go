// Package biomech evaluates joint telemetry into per-body-part form findings
// and an aggregate injury risk score. It runs locally as a complement to the
// remote model's tool calls, so the HUD keeps updating even between model
// turns.
package biomech

import "github.com/formpulse/livecoach/domain/entities"

// Spine angle thresholds in degrees. Below the critical threshold the lumbar
// spine is considered dangerously rounded.
const (
	spineCriticalBelow = 155.0
	spineWarningBelow  = 170.0
	spineNeutral       = 180.0

	kneeDepthWarningAbove = 100.0
)

// Knee alignment values reported by the pose tracker.
const (
	KneeAlignmentNeutral = "neutral"
	KneeAlignmentValgus  = "valgus"
	KneeAlignmentVarus   = "varus"
)

// JointReadings is one frame of pose telemetry from the device. Absent
// readings are nil and fall back to neutral defaults.
type JointReadings struct {
	SpineAngle    *float64 `json:"spine_angle,omitempty"`
	KneeDepth     *float64 `json:"knee_depth,omitempty"`
	KneeAlignment string   `json:"knee_alignment,omitempty"`
}

// Finding is one evaluated body-part status with corrective feedback.
type Finding struct {
	Part     entities.BodyPart
	Status   entities.FormStatus
	Feedback string
}

// EvaluateForm grades spine alignment and knee tracking from joint angles.
func EvaluateForm(r JointReadings) []Finding {
	findings := make([]Finding, 0, 2)

	spineAngle := spineNeutral
	if r.SpineAngle != nil {
		spineAngle = *r.SpineAngle
	}
	switch {
	case spineAngle < spineCriticalBelow:
		findings = append(findings, Finding{
			Part:     entities.BodyPartSpine,
			Status:   entities.FormStatusCritical,
			Feedback: "SEVERE KYPHOSIS DETECTED. Immediately retract scapula and engage core to stabilize lumbar spine.",
		})
	case spineAngle < spineWarningBelow:
		findings = append(findings, Finding{
			Part:     entities.BodyPartSpine,
			Status:   entities.FormStatusWarning,
			Feedback: "Minor spinal rounding. Think about pulling your chest through your arms.",
		})
	default:
		findings = append(findings, Finding{
			Part:     entities.BodyPartSpine,
			Status:   entities.FormStatusOptimal,
			Feedback: "Spinal stack is nominal. Force distribution is optimized.",
		})
	}

	kneeDepth := 0.0
	if r.KneeDepth != nil {
		kneeDepth = *r.KneeDepth
	}
	switch {
	case r.KneeAlignment == KneeAlignmentValgus:
		findings = append(findings, Finding{
			Part:     entities.BodyPartKnees,
			Status:   entities.FormStatusCritical,
			Feedback: "KNEE VALGUS DETECTED. Drive knees outward to align with second toe to prevent ACL stress.",
		})
	case kneeDepth > kneeDepthWarningAbove:
		findings = append(findings, Finding{
			Part:     entities.BodyPartKnees,
			Status:   entities.FormStatusWarning,
			Feedback: "Deep range detected. Ensure heel pressure remains constant.",
		})
	default:
		findings = append(findings, Finding{
			Part:     entities.BodyPartKnees,
			Status:   entities.FormStatusOptimal,
			Feedback: "Patellar tracking within safe kinetic window.",
		})
	}

	return findings
}

var riskWeights = map[entities.FormStatus]int{
	entities.FormStatusOptimal:  0,
	entities.FormStatusWarning:  10,
	entities.FormStatusCritical: 40,
}

// InjuryRisk computes a percentage risk from the statuses currently on the
// HUD: a weighted sum plus a 5% floor, capped at 99.
func InjuryRisk(statuses []entities.FormStatus) int {
	total := 0
	for _, s := range statuses {
		total += riskWeights[s]
	}
	risk := total + 5
	if risk > 99 {
		risk = 99
	}
	return risk
}

// SnapshotRisk is a convenience over a HUD snapshot.
func SnapshotRisk(snapshot map[entities.BodyPart]entities.Annotation) int {
	statuses := make([]entities.FormStatus, 0, len(snapshot))
	for _, a := range snapshot {
		statuses = append(statuses, a.Status)
	}
	return InjuryRisk(statuses)
}
