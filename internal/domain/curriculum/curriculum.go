// Package curriculum exposes the read side of the lecture content store.
// The hub never writes curriculum data; it only resolves step details when
// advancing a session.
package curriculum

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrStepNotFound = errors.New("curriculum: step not found")

// Step is one ordered unit of a lecture.
type Step struct {
	ID             int64
	LectureID      uuid.UUID
	Order          int
	Title          string
	TargetAction   string
	GuideText      string
	VoiceGuideText string
}

// Reader resolves lecture steps. Implementations return a nil Step and
// ErrStepNotFound when the step does not exist.
type Reader interface {
	// FirstStep returns the lowest-ordered step of a lecture.
	FirstStep(ctx context.Context, lectureID uuid.UUID) (*Step, error)

	// Step returns a step by id, scoped to the lecture.
	Step(ctx context.Context, lectureID uuid.UUID, stepID int64) (*Step, error)

	// Steps lists all steps of a lecture ordered by position.
	Steps(ctx context.Context, lectureID uuid.UUID) ([]*Step, error)
}
