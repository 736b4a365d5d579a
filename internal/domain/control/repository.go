package control

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists control records. Append-only: no update or delete.
type Repository interface {
	Append(ctx context.Context, record *Record) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Record, error)
}
