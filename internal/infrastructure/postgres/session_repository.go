package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecture-hub/lecture-hub/internal/domain/session"
)

// SessionRepository implements session.Repository.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, session_id, lecture_id, instructor_id, title, join_code, status,
	current_step_id, scheduled_at, started_at, ended_at, created_at, updated_at`

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO live_sessions
		(session_id, lecture_id, instructor_id, title, join_code, status,
		 current_step_id, scheduled_at, started_at, ended_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, s.SessionID, s.LectureID, s.InstructorID, s.Title, s.JoinCode, s.Status,
		s.CurrentStepID, s.ScheduledAt, s.StartedAt, s.EndedAt, s.CreatedAt, s.UpdatedAt)
	return row.Scan(&s.ID)
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM live_sessions WHERE session_id=$1
	`, sessionID)
	return scanSession(row)
}

func (r *SessionRepository) GetByJoinCode(ctx context.Context, joinCode string) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM live_sessions
		WHERE join_code=$1 AND status NOT IN ('REVIEW_MODE','ENDED')
		ORDER BY created_at DESC
		LIMIT 1
	`, joinCode)
	return scanSession(row)
}

func (r *SessionRepository) Update(ctx context.Context, s *session.Session) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE live_sessions
		SET status=$1, current_step_id=$2, started_at=$3, ended_at=$4, updated_at=$5
		WHERE session_id=$6
	`, s.Status, s.CurrentStepID, s.StartedAt, s.EndedAt, s.UpdatedAt, s.SessionID)
	return err
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	if err := row.Scan(
		&s.ID, &s.SessionID, &s.LectureID, &s.InstructorID, &s.Title, &s.JoinCode, &s.Status,
		&s.CurrentStepID, &s.ScheduledAt, &s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
