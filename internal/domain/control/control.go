package control

import (
	"time"

	"github.com/google/uuid"
)

// Action is an instructor control action recorded against a session.
type Action string

const (
	ActionStartStep Action = "START_STEP"
	ActionEndStep   Action = "END_STEP"
	ActionPause     Action = "PAUSE"
	ActionResume    Action = "RESUME"
	ActionSkip      Action = "SKIP"
)

// Record is one append-only entry in a session's control history. Records are
// never mutated or deleted.
type Record struct {
	ID           int64     `json:"id"`
	RecordID     uuid.UUID `json:"recordId"`
	SessionID    uuid.UUID `json:"sessionId"`
	StepID       *int64    `json:"stepId,omitempty"`
	InstructorID uuid.UUID `json:"instructorId"`
	Action       Action    `json:"action"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewRecord builds a control record stamped now.
func NewRecord(sessionID, instructorID uuid.UUID, stepID *int64, action Action, message string) *Record {
	return &Record{
		RecordID:     uuid.New(),
		SessionID:    sessionID,
		StepID:       stepID,
		InstructorID: instructorID,
		Action:       action,
		Message:      message,
		CreatedAt:    time.Now().UTC(),
	}
}
