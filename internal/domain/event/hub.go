package event

import "github.com/google/uuid"

// Broadcaster fans events out to a session's live connections.
//
// Publish must be fire-and-forget per connection: a slow or dead connection
// never blocks delivery to its siblings. Callers that need ordered delivery
// publish from a single goroutine per session.
type Broadcaster interface {
	Publish(sessionID uuid.UUID, ev Event)
	// GroupSize reports how many connections the session group holds.
	GroupSize(sessionID uuid.UUID) int
	// InstructorCount reports how many of them carry instructor identity.
	InstructorCount(sessionID uuid.UUID) int
}
