package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecture-hub/lecture-hub/internal/domain/participant"
)

// ParticipantRepository implements participant.Repository. The partial unique
// indexes on (session_id, user_id) and (session_id, device_id) back the
// get-or-create contract; a lost insert race surfaces as a unique violation.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

const participantColumns = `id, participant_id, session_id, user_id, device_id, display_name, status,
	current_step_id, completed_steps, last_completed_at, joined_at, last_active_at, completed_at`

func (r *ParticipantRepository) Create(ctx context.Context, p *participant.Participant) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO session_participants
		(participant_id, session_id, user_id, device_id, display_name, status,
		 current_step_id, completed_steps, last_completed_at, joined_at, last_active_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, p.ParticipantID, p.SessionID, p.UserID, p.DeviceID, p.DisplayName, p.Status,
		p.CurrentStepID, p.CompletedSteps, p.LastCompletedAt, p.JoinedAt, p.LastActiveAt, p.CompletedAt)
	return row.Scan(&p.ID)
}

func (r *ParticipantRepository) GetByID(ctx context.Context, participantID uuid.UUID) (*participant.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants WHERE participant_id=$1
	`, participantID)
	return scanParticipant(row)
}

func (r *ParticipantRepository) GetByUser(ctx context.Context, sessionID, userID uuid.UUID) (*participant.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants WHERE session_id=$1 AND user_id=$2
	`, sessionID, userID)
	return scanParticipant(row)
}

func (r *ParticipantRepository) GetByDevice(ctx context.Context, sessionID uuid.UUID, deviceID string) (*participant.Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants WHERE session_id=$1 AND device_id=$2
	`, sessionID, deviceID)
	return scanParticipant(row)
}

func (r *ParticipantRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*participant.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants WHERE session_id=$1
		ORDER BY joined_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*participant.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ParticipantRepository) Update(ctx context.Context, p *participant.Participant) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE session_participants
		SET display_name=$1, status=$2, current_step_id=$3, completed_steps=$4,
		    last_completed_at=$5, last_active_at=$6, completed_at=$7
		WHERE participant_id=$8
	`, p.DisplayName, p.Status, p.CurrentStepID, p.CompletedSteps,
		p.LastCompletedAt, p.LastActiveAt, p.CompletedAt, p.ParticipantID)
	return err
}

func (r *ParticipantRepository) TouchLastActive(ctx context.Context, participantID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE session_participants SET last_active_at=$1 WHERE participant_id=$2
	`, at, participantID)
	return err
}

func (r *ParticipantRepository) ActivateWaiting(ctx context.Context, sessionID uuid.UUID, stepID int64, at time.Time) (int, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE session_participants
		SET status='ACTIVE', current_step_id=$1, last_active_at=$2
		WHERE session_id=$3 AND status='WAITING'
	`, stepID, at, sessionID)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func (r *ParticipantRepository) SyncActiveStep(ctx context.Context, sessionID uuid.UUID, stepID int64, at time.Time) (int, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE session_participants
		SET current_step_id=$1, last_active_at=$2
		WHERE session_id=$3 AND status='ACTIVE'
	`, stepID, at, sessionID)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func scanParticipant(row pgx.Row) (*participant.Participant, error) {
	var p participant.Participant
	if err := row.Scan(
		&p.ID, &p.ParticipantID, &p.SessionID, &p.UserID, &p.DeviceID, &p.DisplayName, &p.Status,
		&p.CurrentStepID, &p.CompletedSteps, &p.LastCompletedAt, &p.JoinedAt, &p.LastActiveAt, &p.CompletedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if p.CompletedSteps == nil {
		p.CompletedSteps = []int64{}
	}
	return &p, nil
}
