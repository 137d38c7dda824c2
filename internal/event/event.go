// Package event defines the domain events carried across the queue bridge.
// Bodies are JSON; routing keys are stable contract, exchange and queue
// names are deployment configuration.
package event

import "time"

// Routing keys.
const (
	AnalysisCompletedKey = "analysis.completed"
	EmailRequestedKey    = "notify.email"
)

// AnalysisCompleted is published on the analysis topic exchange when the AI
// core finishes processing a retinal image.
type AnalysisCompleted struct {
	AnalysisID  string    `json:"analysis_id"`
	PatientID   string    `json:"patient_id"`
	ImageType   string    `json:"image_type"`
	RiskLevel   string    `json:"risk_level"`
	RiskScore   float64   `json:"risk_score"`
	CompletedAt time.Time `json:"completed_at"`
}

// EmailRequested asks the email worker to render a template and send it.
type EmailRequested struct {
	To         string            `json:"to"`
	TemplateID string            `json:"template_id"`
	Data       map[string]string `json:"data,omitempty"`
}
