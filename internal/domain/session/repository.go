package session

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for lecture sessions.
type Repository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	// GetByJoinCode resolves a join code among non-terminal sessions only;
	// codes of ended sessions may be reissued.
	GetByJoinCode(ctx context.Context, joinCode string) (*Session, error)
	Update(ctx context.Context, session *Session) error
}
