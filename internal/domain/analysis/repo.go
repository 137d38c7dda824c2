package analysis

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists analysis results.
type Repository interface {
	Create(ctx context.Context, r *Result) error
	GetByID(ctx context.Context, id uuid.UUID) (*Result, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Result, int, error)
}
