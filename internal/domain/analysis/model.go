// Package analysis stores retinal image analysis results produced by the AI
// sidecar and publishes their completion as events for downstream workers.
package analysis

import (
	"time"

	"github.com/google/uuid"
)

// Risk levels assigned by the AI pipeline.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

var validRiskLevels = map[string]bool{
	RiskLow: true, RiskModerate: true, RiskHigh: true,
}

// Result is one completed analysis of a retinal image.
type Result struct {
	ID          uuid.UUID `json:"id"`
	PatientID   string    `json:"patient_id"`
	ImageURL    string    `json:"image_url"`
	ImageType   string    `json:"image_type"`
	RiskLevel   string    `json:"risk_level"`
	RiskScore   float64   `json:"risk_score"`
	Confidence  float64   `json:"confidence"`
	CompletedAt time.Time `json:"completed_at"`
}
