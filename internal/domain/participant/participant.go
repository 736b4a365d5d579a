package participant

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status represents participant lifecycle status within a session.
type Status string

const (
	StatusWaiting      Status = "WAITING"
	StatusActive       Status = "ACTIVE"
	StatusCompleted    Status = "COMPLETED"
	StatusDisconnected Status = "DISCONNECTED"
)

// Presence classifies a participant for dashboard consumers.
type Presence string

const (
	PresenceCompleted  Presence = "completed"
	PresenceNotStarted Presence = "not_started"
	PresenceDelayed    Presence = "delayed"
	PresenceInProgress Presence = "in_progress"
)

// DelayedAfter is how long a participant may stay silent before a dashboard
// shows them as delayed.
const DelayedAfter = 5 * time.Minute

var (
	ErrNotFound   = errors.New("participant not found")
	ErrNoIdentity = errors.New("participant requires a user id or a device id")
)

// Participant is one learner's row in a session. Either UserID or DeviceID is
// set; both may be when an authenticated user joins from a known device.
type Participant struct {
	ID              int64      `json:"id"`
	ParticipantID   uuid.UUID  `json:"participantId"`
	SessionID       uuid.UUID  `json:"sessionId"`
	UserID          *uuid.UUID `json:"userId,omitempty"`
	DeviceID        *string    `json:"deviceId,omitempty"`
	DisplayName     string     `json:"displayName"`
	Status          Status     `json:"status"`
	CurrentStepID   *int64     `json:"currentStepId,omitempty"`
	CompletedSteps  []int64    `json:"completedSubtasks"`
	LastCompletedAt *time.Time `json:"lastCompletedAt,omitempty"`
	JoinedAt        time.Time  `json:"joinedAt"`
	LastActiveAt    time.Time  `json:"lastActiveAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// New creates a WAITING participant. At least one of userID/deviceID must be set.
func New(sessionID uuid.UUID, userID *uuid.UUID, deviceID *string, displayName string) (*Participant, error) {
	if userID == nil && (deviceID == nil || *deviceID == "") {
		return nil, ErrNoIdentity
	}
	now := time.Now().UTC()
	return &Participant{
		ParticipantID:  uuid.New(),
		SessionID:      sessionID,
		UserID:         userID,
		DeviceID:       deviceID,
		DisplayName:    displayName,
		Status:         StatusWaiting,
		CompletedSteps: []int64{},
		JoinedAt:       now,
		LastActiveAt:   now,
	}, nil
}

// Name returns the participant's display name with a fallback for rows
// created before one was collected.
func (p *Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return "anonymous"
}

// Touch records activity.
func (p *Participant) Touch(now time.Time) {
	p.LastActiveAt = now
}

// Activate marks the participant ACTIVE on the given step.
func (p *Participant) Activate(stepID int64, now time.Time) {
	p.Status = StatusActive
	p.CurrentStepID = &stepID
	p.LastActiveAt = now
}

// MarkCompleted records completion of the whole session.
func (p *Participant) MarkCompleted(now time.Time) {
	p.Status = StatusCompleted
	p.CompletedAt = &now
	p.LastActiveAt = now
}

// MarkDisconnected records a transport close. Idempotent.
func (p *Participant) MarkDisconnected(now time.Time) {
	p.Status = StatusDisconnected
	p.LastActiveAt = now
}

// HasCompleted reports whether stepID is in the completed set.
func (p *Participant) HasCompleted(stepID int64) bool {
	return slices.Contains(p.CompletedSteps, stepID)
}

// CompleteStep adds stepID to the completed set. Returns false when the step
// was already present, in which case nothing changes.
func (p *Participant) CompleteStep(stepID int64, now time.Time) bool {
	if p.HasCompleted(stepID) {
		return false
	}
	p.CompletedSteps = append(p.CompletedSteps, stepID)
	p.LastCompletedAt = &now
	p.LastActiveAt = now
	return true
}

// UncompleteStep removes stepID from the completed set. Returns false when the
// step was not present.
func (p *Participant) UncompleteStep(stepID int64, now time.Time) bool {
	idx := slices.Index(p.CompletedSteps, stepID)
	if idx < 0 {
		return false
	}
	p.CompletedSteps = slices.Delete(p.CompletedSteps, idx, idx+1)
	p.LastActiveAt = now
	return true
}

// ClassifyPresence derives the dashboard presence of a participant at `now`.
// Classification order matters: COMPLETED and WAITING win over staleness.
func (p *Participant) ClassifyPresence(now time.Time) Presence {
	switch {
	case p.Status == StatusCompleted:
		return PresenceCompleted
	case p.Status == StatusWaiting:
		return PresenceNotStarted
	case now.Sub(p.LastActiveAt) > DelayedAfter:
		return PresenceDelayed
	default:
		return PresenceInProgress
	}
}
