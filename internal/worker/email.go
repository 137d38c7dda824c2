package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aura-health/aura/internal/event"
	"github.com/aura-health/aura/internal/platform/mailer"
	"github.com/aura-health/aura/internal/platform/queue"
)

// EmailWorker renders and sends queued email requests. A send failure
// surfaces as a handler error so the broker redelivers the request.
type EmailWorker struct {
	consumer  queue.Consumer
	queueName string
	mailer    *mailer.Mailer
	logger    zerolog.Logger
}

func NewEmailWorker(consumer queue.Consumer, queueName string, m *mailer.Mailer, logger zerolog.Logger) *EmailWorker {
	return &EmailWorker{
		consumer:  consumer,
		queueName: queueName,
		mailer:    m,
		logger:    logger.With().Str("worker", "email").Logger(),
	}
}

// Run consumes until ctx is canceled.
func (w *EmailWorker) Run(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.queueName, w.Handle)
}

// Handle processes one notify.email event.
func (w *EmailWorker) Handle(ctx context.Context, body []byte) error {
	var ev event.EmailRequested
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode email event: %w", err)
	}
	if ev.To == "" {
		return fmt.Errorf("email event missing recipient")
	}
	return w.mailer.SendTemplate(ctx, ev.To, ev.TemplateID, ev.Data)
}
