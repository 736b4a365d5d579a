package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecture-hub/lecture-hub/internal/domain/curriculum"
)

// CurriculumReader implements curriculum.Reader over the lecture content
// tables. The hub only reads them.
type CurriculumReader struct {
	pool *pgxpool.Pool
}

func NewCurriculumReader(pool *pgxpool.Pool) *CurriculumReader {
	return &CurriculumReader{pool: pool}
}

const stepColumns = `id, lecture_id, step_order, title, target_action, guide_text, voice_guide_text`

func (r *CurriculumReader) FirstStep(ctx context.Context, lectureID uuid.UUID) (*curriculum.Step, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+stepColumns+`
		FROM lecture_steps WHERE lecture_id=$1
		ORDER BY step_order
		LIMIT 1
	`, lectureID)
	return scanStep(row)
}

func (r *CurriculumReader) Step(ctx context.Context, lectureID uuid.UUID, stepID int64) (*curriculum.Step, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+stepColumns+`
		FROM lecture_steps WHERE lecture_id=$1 AND id=$2
	`, lectureID, stepID)
	return scanStep(row)
}

func (r *CurriculumReader) Steps(ctx context.Context, lectureID uuid.UUID) ([]*curriculum.Step, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+stepColumns+`
		FROM lecture_steps WHERE lecture_id=$1
		ORDER BY step_order
	`, lectureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*curriculum.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

func scanStep(row pgx.Row) (*curriculum.Step, error) {
	var s curriculum.Step
	var targetAction, guideText, voiceGuideText *string
	if err := row.Scan(&s.ID, &s.LectureID, &s.Order, &s.Title, &targetAction, &guideText, &voiceGuideText); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if targetAction != nil {
		s.TargetAction = *targetAction
	}
	if guideText != nil {
		s.GuideText = *guideText
	}
	if voiceGuideText != nil {
		s.VoiceGuideText = *voiceGuideText
	}
	return &s, nil
}
