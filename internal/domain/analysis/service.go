package analysis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aura-health/aura/internal/event"
	"github.com/aura-health/aura/internal/platform/queue"
)

type Service struct {
	repo      Repository
	publisher queue.Publisher
	exchange  string
	logger    zerolog.Logger
}

func NewService(repo Repository, publisher queue.Publisher, exchange string, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		exchange:  exchange,
		logger:    logger.With().Str("component", "analysis").Logger(),
	}
}

// Complete records a finished analysis and publishes its completion event.
// The event drives patient notification downstream, so a publish failure is
// an error the caller (the AI sidecar) must see and retry.
func (s *Service) Complete(ctx context.Context, r *Result) (*Result, error) {
	if r.PatientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if r.ImageURL == "" {
		return nil, fmt.Errorf("image_url is required")
	}
	if !validRiskLevels[r.RiskLevel] {
		return nil, fmt.Errorf("invalid risk_level: %s", r.RiskLevel)
	}
	r.ID = uuid.New()

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}

	ev := event.AnalysisCompleted{
		AnalysisID:  r.ID.String(),
		PatientID:   r.PatientID,
		ImageType:   r.ImageType,
		RiskLevel:   r.RiskLevel,
		RiskScore:   r.RiskScore,
		CompletedAt: r.CompletedAt,
	}
	if err := s.publisher.Publish(ctx, s.exchange, event.AnalysisCompletedKey, ev); err != nil {
		return nil, fmt.Errorf("publish completion event: %w", err)
	}

	s.logger.Info().Str("id", r.ID.String()).Str("risk", r.RiskLevel).Msg("analysis completed")
	return r, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Result, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Result, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}
