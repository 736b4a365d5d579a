package participant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for session participants.
//
// Create must enforce the (session_id, user_id) and (session_id, device_id)
// uniqueness constraints; callers resolve races by re-fetching on a unique
// violation.
type Repository interface {
	Create(ctx context.Context, p *Participant) error
	GetByID(ctx context.Context, participantID uuid.UUID) (*Participant, error)
	GetByUser(ctx context.Context, sessionID, userID uuid.UUID) (*Participant, error)
	GetByDevice(ctx context.Context, sessionID uuid.UUID, deviceID string) (*Participant, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error)
	Update(ctx context.Context, p *Participant) error
	// TouchLastActive is the heartbeat fast lane: it bumps last_active_at
	// without rewriting the row.
	TouchLastActive(ctx context.Context, participantID uuid.UUID, at time.Time) error
	// ActivateWaiting flips every WAITING participant of a session to ACTIVE
	// on the given step, returning how many rows changed.
	ActivateWaiting(ctx context.Context, sessionID uuid.UUID, stepID int64, at time.Time) (int, error)
	// SyncActiveStep moves every ACTIVE participant to the given step.
	SyncActiveStep(ctx context.Context, sessionID uuid.UUID, stepID int64, at time.Time) (int, error)
}
