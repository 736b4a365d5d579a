package session

import (
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Status represents session lifecycle status.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPaused     Status = "PAUSED"
	StatusReviewMode Status = "REVIEW_MODE"
	StatusEnded      Status = "ENDED"
)

var (
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrNotInstructor     = errors.New("caller is not the session instructor")
	ErrNotFound          = errors.New("session not found")
)

// joinCodeAlphabet excludes glyphs that read ambiguously on a projector (0/O, 1/I).
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const joinCodeLength = 6

// Session represents a live lecture room.
type Session struct {
	ID            int64      `json:"id"`
	SessionID     uuid.UUID  `json:"sessionId"`
	LectureID     uuid.UUID  `json:"lectureId"`
	InstructorID  uuid.UUID  `json:"instructorId"`
	Title         string     `json:"title"`
	JoinCode      string     `json:"joinCode"`
	Status        Status     `json:"status"`
	CurrentStepID *int64     `json:"currentStepId,omitempty"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// NewSession creates a WAITING session with a fresh join code.
func NewSession(lectureID, instructorID uuid.UUID, title string, scheduledAt *time.Time) *Session {
	now := time.Now().UTC()
	return &Session{
		SessionID:    uuid.New(),
		LectureID:    lectureID,
		InstructorID: instructorID,
		Title:        title,
		JoinCode:     GenerateJoinCode(),
		Status:       StatusWaiting,
		ScheduledAt:  scheduledAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// GenerateJoinCode returns a short public room code.
func GenerateJoinCode() string {
	buf := make([]byte, joinCodeLength)
	size := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			n = big.NewInt(time.Now().UnixNano() % int64(len(joinCodeAlphabet)))
		}
		buf[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(buf)
}

// CanTransitionTo validates a status transition.
func (s *Session) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusWaiting:    {StatusInProgress, StatusReviewMode, StatusEnded},
		StatusInProgress: {StatusPaused, StatusReviewMode, StatusEnded},
		StatusPaused:     {StatusInProgress, StatusReviewMode, StatusEnded},
		StatusReviewMode: {},
		StatusEnded:      {},
	}
	for _, t := range transitions[s.Status] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session stopped accepting control commands.
func (s *Session) IsTerminal() bool {
	return s.Status == StatusReviewMode || s.Status == StatusEnded
}

// Start moves the session to IN_PROGRESS with the given first step.
func (s *Session) Start(firstStepID int64, now time.Time) error {
	if !s.CanTransitionTo(StatusInProgress) {
		return ErrInvalidTransition
	}
	s.Status = StatusInProgress
	s.CurrentStepID = &firstStepID
	s.StartedAt = &now
	s.UpdatedAt = now
	return nil
}

// Advance replaces the current step. Valid only while IN_PROGRESS.
func (s *Session) Advance(nextStepID int64, now time.Time) error {
	if s.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	s.CurrentStepID = &nextStepID
	s.UpdatedAt = now
	return nil
}

// Pause moves IN_PROGRESS to PAUSED.
func (s *Session) Pause(now time.Time) error {
	if s.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	s.Status = StatusPaused
	s.UpdatedAt = now
	return nil
}

// Resume moves PAUSED back to IN_PROGRESS.
func (s *Session) Resume(now time.Time) error {
	if s.Status != StatusPaused {
		return ErrInvalidTransition
	}
	s.Status = StatusInProgress
	s.UpdatedAt = now
	return nil
}

// End moves any non-terminal session to the target terminal state and clears
// the current step.
func (s *Session) End(target Status, now time.Time) error {
	if target != StatusReviewMode && target != StatusEnded {
		return ErrInvalidTransition
	}
	if !s.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	s.Status = target
	s.CurrentStepID = nil
	s.EndedAt = &now
	s.UpdatedAt = now
	return nil
}

// Duration returns elapsed lecture time, zero when the session never started.
func (s *Session) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}
