package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecture-hub/lecture-hub/internal/domain/control"
)

// ControlRepository implements control.Repository. Append-only.
type ControlRepository struct {
	pool *pgxpool.Pool
}

func NewControlRepository(pool *pgxpool.Pool) *ControlRepository {
	return &ControlRepository{pool: pool}
}

func (r *ControlRepository) Append(ctx context.Context, rec *control.Record) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO step_control_records
		(record_id, session_id, step_id, instructor_id, action, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, rec.RecordID, rec.SessionID, rec.StepID, rec.InstructorID, rec.Action, rec.Message, rec.CreatedAt)
	return row.Scan(&rec.ID)
}

func (r *ControlRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*control.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, record_id, session_id, step_id, instructor_id, action, message, created_at
		FROM step_control_records
		WHERE session_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*control.Record
	for rows.Next() {
		var rec control.Record
		if err := rows.Scan(&rec.ID, &rec.RecordID, &rec.SessionID, &rec.StepID,
			&rec.InstructorID, &rec.Action, &rec.Message, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
