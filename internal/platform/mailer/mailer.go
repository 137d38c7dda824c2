// Package mailer renders email templates and hands them to a Sender. The
// email worker drives it from queued events, so Send failures surface as
// handler errors and the delivery is retried by the broker.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Template is a reusable email template. Placeholders use {{key}} syntax.
type Template struct {
	ID      string
	Name    string
	Subject string
	Body    string
}

// TemplateEngine holds registered templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "analysis-complete",
			Name:    "Analysis Complete",
			Subject: "Your retinal analysis results are ready",
			Body:    "Dear {{patient_name}}, the analysis of your {{image_type}} scan has completed with a {{risk_level}} risk assessment. Please log in to review the full report.",
		},
		{
			ID:      "appointment-reminder",
			Name:    "Appointment Reminder",
			Subject: "Appointment reminder for {{patient_name}}",
			Body:    "Dear {{patient_name}}, this is a reminder of your appointment on {{date}} at {{time}} with {{provider}}.",
		},
		{
			ID:      "payment-receipt",
			Name:    "Payment Receipt",
			Subject: "Receipt for your payment",
			Body:    "Dear {{patient_name}}, we received your payment of {{amount}} on {{date}}. Reference: {{reference}}.",
		},
		{
			ID:      "password-reset",
			Name:    "Password Reset",
			Subject: "Password reset request",
			Body:    "You requested a password reset. Follow this link to choose a new password: {{reset_link}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// Register adds or replaces a template in the engine.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Mailer renders templates and sends the result.
type Mailer struct {
	sender    Sender
	templates *TemplateEngine
	logger    zerolog.Logger
}

// New constructs a Mailer.
func New(sender Sender, templates *TemplateEngine, logger zerolog.Logger) *Mailer {
	return &Mailer{
		sender:    sender,
		templates: templates,
		logger:    logger.With().Str("component", "mailer").Logger(),
	}
}

// SendTemplate renders templateID with data and delivers it to the address.
func (m *Mailer) SendTemplate(ctx context.Context, to, templateID string, data map[string]string) error {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	if err := m.sender.Send(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	m.logger.Info().Str("to", to).Str("template", templateID).Msg("email sent")
	return nil
}

// LogSender writes outbound mail to the log instead of delivering it. Used
// when no SMTP provider is configured.
type LogSender struct {
	Logger zerolog.Logger
}

// Send logs the message and reports success.
func (s LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Msg("outbound email (log only)")
	return nil
}

// Call records a single delivery through MockSender.
type Call struct {
	To      string
	Subject string
	Body    string
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []Call
	ShouldFail bool
	FailError  string
}

// Send records the call and optionally returns an error.
func (m *MockSender) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded deliveries.
func (m *MockSender) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
