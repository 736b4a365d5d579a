package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lecture-hub/lecture-hub/internal/domain/control"
)

// Publisher ships serialized control records to an external log pipeline.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Service records instructor control actions. Records go to the repository
// synchronously and to the log pipeline asynchronously; the pipeline is
// best-effort and never blocks a control operation.
type Service struct {
	repo      control.Repository
	publisher Publisher
	logger    zerolog.Logger
}

// NewService creates an audit service. publisher may be nil when log shipping
// is disabled.
func NewService(repo control.Repository, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("service", "audit").Logger(),
	}
}

// RecordSync appends a control record and reports persistence failure to the
// caller. The pipeline publish still happens in the background.
func (s *Service) RecordSync(ctx context.Context, rec *control.Record) error {
	if err := s.repo.Append(ctx, rec); err != nil {
		return fmt.Errorf("append control record: %w", err)
	}

	s.logger.Debug().
		Str("recordId", rec.RecordID.String()).
		Str("sessionId", rec.SessionID.String()).
		Str("action", string(rec.Action)).
		Msg("control record appended")

	s.ship(rec)
	return nil
}

// History returns a session's control records, newest first.
func (s *Service) History(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*control.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	records, err := s.repo.ListBySession(ctx, sessionID, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Str("sessionId", sessionID.String()).Msg("failed to list control records")
		return nil, fmt.Errorf("list control records: %w", err)
	}
	return records, nil
}

func (s *Service) ship(rec *control.Record) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode control record for shipping")
		return
	}
	go func() {
		if err := s.publisher.Publish(context.Background(), rec.SessionID.String(), payload); err != nil {
			s.logger.Warn().Err(err).
				Str("recordId", rec.RecordID.String()).
				Msg("control record not shipped")
		}
	}()
}
