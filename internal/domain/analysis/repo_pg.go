package analysis

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const resultCols = `id, patient_id, image_url, image_type, risk_level, risk_score, confidence, completed_at`

func scanResult(row pgx.Row) (*Result, error) {
	var r Result
	err := row.Scan(&r.ID, &r.PatientID, &r.ImageURL, &r.ImageType,
		&r.RiskLevel, &r.RiskScore, &r.Confidence, &r.CompletedAt)
	return &r, err
}

func (r *repoPG) Create(ctx context.Context, res *Result) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO analysis_result (id, patient_id, image_url, image_type, risk_level, risk_score, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING completed_at`,
		res.ID, res.PatientID, res.ImageURL, res.ImageType,
		res.RiskLevel, res.RiskScore, res.Confidence,
	).Scan(&res.CompletedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	return scanResult(r.pool.QueryRow(ctx, `SELECT `+resultCols+` FROM analysis_result WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Result, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analysis_result WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+resultCols+` FROM analysis_result
		WHERE patient_id = $1
		ORDER BY completed_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, rows.Err()
}
