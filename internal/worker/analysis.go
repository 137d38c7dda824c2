// Package worker holds the background consumers that bridge queued events to
// side effects. Delivery is at-least-once, so every handler here tolerates
// redelivery of the same event.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aura-health/aura/internal/domain/notification"
	"github.com/aura-health/aura/internal/event"
	"github.com/aura-health/aura/internal/platform/queue"
)

// AnalysisWorker turns analysis completion events into patient notifications.
type AnalysisWorker struct {
	consumer      queue.Consumer
	queueName     string
	notifications *notification.Service
	logger        zerolog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

func NewAnalysisWorker(consumer queue.Consumer, queueName string, notifications *notification.Service, logger zerolog.Logger) *AnalysisWorker {
	return &AnalysisWorker{
		consumer:      consumer,
		queueName:     queueName,
		notifications: notifications,
		logger:        logger.With().Str("worker", "analysis").Logger(),
		seen:          make(map[string]bool),
	}
}

// Run consumes until ctx is canceled.
func (w *AnalysisWorker) Run(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.queueName, w.Handle)
}

// Handle processes one analysis.completed event. Redeliveries of an already
// handled analysis are acknowledged without creating a second notification.
func (w *AnalysisWorker) Handle(ctx context.Context, body []byte) error {
	var ev event.AnalysisCompleted
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode analysis event: %w", err)
	}

	w.mu.Lock()
	done := w.seen[ev.AnalysisID]
	w.mu.Unlock()
	if done {
		w.logger.Debug().Str("analysis", ev.AnalysisID).Msg("duplicate delivery skipped")
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = w.notifications.Create(ctx, &notification.Notification{
		RecipientID: &ev.PatientID,
		Title:       "Analysis results ready",
		Message:     fmt.Sprintf("Your %s scan analysis has completed with a %s risk assessment.", ev.ImageType, ev.RiskLevel),
		Type:        notification.TypeAnalysisComplete,
		Payload:     payload,
	})
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	w.mu.Lock()
	w.seen[ev.AnalysisID] = true
	w.mu.Unlock()
	return nil
}
