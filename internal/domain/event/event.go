package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type is the wire type of a broadcast event.
type Type string

const (
	TypeStepChanged          Type = "step_changed"
	TypeSessionStatusChanged Type = "session_status_changed"
	TypeParticipantJoined    Type = "participant_joined"
	TypeParticipantLeft      Type = "participant_left"
	TypeProgressUpdated      Type = "progress_updated"
	TypeStudentCompletion    Type = "student_completion"
	TypeHelpRequested        Type = "help_requested"
	TypeInstructorMessage    Type = "instructor_message"
	TypeScreenshotUpdated    Type = "screenshot_updated"
	TypeError                Type = "error"
)

// Audience restricts who inside the session group receives an event.
type Audience string

const (
	AudienceAll            Audience = "ALL"
	AudienceInstructorOnly Audience = "INSTRUCTOR_ONLY"
)

// Event is one broadcast to a session group. Ephemeral: events are fanned out
// and dropped, never stored.
type Event struct {
	Type     Type     `json:"type"`
	Audience Audience `json:"-"`
	// OriginConnID marks the connection that caused the event; join/leave
	// notifications are not echoed back to it.
	OriginConnID string          `json:"-"`
	Data         json.RawMessage `json:"data"`
}

// Envelope is the wire shape shared by commands and broadcasts.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// All payload builders marshal plain structs; this cannot fail at runtime.
		panic(err)
	}
	return b
}

// StepInfo is the step snapshot carried by step_changed broadcasts.
type StepInfo struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Order          int    `json:"order"`
	TargetAction   string `json:"target_action,omitempty"`
	GuideText      string `json:"guide_text,omitempty"`
	VoiceGuideText string `json:"voice_guide_text,omitempty"`
}

// StepChanged notifies the whole group of a new authoritative step.
func StepChanged(step StepInfo) Event {
	return Event{
		Type:     TypeStepChanged,
		Audience: AudienceAll,
		Data:     mustRaw(map[string]any{"subtask": step}),
	}
}

// SessionStatusChanged notifies the whole group of a lifecycle change.
func SessionStatusChanged(status, message string) Event {
	return Event{
		Type:     TypeSessionStatusChanged,
		Audience: AudienceAll,
		Data: mustRaw(map[string]any{
			"status":  status,
			"message": message,
		}),
	}
}

// ParticipantJoined announces a join to everyone except the joiner.
func ParticipantJoined(originConnID string, participantID uuid.UUID, name, role string) Event {
	return Event{
		Type:         TypeParticipantJoined,
		Audience:     AudienceAll,
		OriginConnID: originConnID,
		Data: mustRaw(map[string]any{
			"participant_id": participantID,
			"name":           name,
			"role":           role,
		}),
	}
}

// ParticipantLeft announces a leave to everyone except the leaver.
func ParticipantLeft(originConnID string, participantID uuid.UUID, name string) Event {
	return Event{
		Type:         TypeParticipantLeft,
		Audience:     AudienceAll,
		OriginConnID: originConnID,
		Data: mustRaw(map[string]any{
			"participant_id": participantID,
			"name":           name,
		}),
	}
}

// ProgressUpdated reports one learner's step progress to instructors.
func ProgressUpdated(participantID uuid.UUID, name string, stepID int64, status string) Event {
	return Event{
		Type:     TypeProgressUpdated,
		Audience: AudienceInstructorOnly,
		Data: mustRaw(map[string]any{
			"participant_id": participantID,
			"name":           name,
			"subtask_id":     stepID,
			"status":         status,
		}),
	}
}

// StudentCompletion carries the full updated completion snapshot, not a diff.
func StudentCompletion(participantID uuid.UUID, deviceID *string, name string, stepID int64, completed []int64) Event {
	return Event{
		Type:     TypeStudentCompletion,
		Audience: AudienceInstructorOnly,
		Data: mustRaw(map[string]any{
			"participant_id":     participantID,
			"device_id":          deviceID,
			"student_name":       name,
			"subtask_id":         stepID,
			"completed_subtasks": completed,
			"total_completed":    len(completed),
			"timestamp":          time.Now().UTC(),
		}),
	}
}

// HelpRequested routes a learner's help request to instructors.
func HelpRequested(participantID uuid.UUID, name string, stepID *int64, message string) Event {
	return Event{
		Type:     TypeHelpRequested,
		Audience: AudienceInstructorOnly,
		Data: mustRaw(map[string]any{
			"participant_id": participantID,
			"name":           name,
			"subtask_id":     stepID,
			"message":        message,
			"timestamp":      time.Now().UTC(),
		}),
	}
}

// InstructorMessage carries a free-text announcement to the whole group.
func InstructorMessage(text string) Event {
	return Event{
		Type:     TypeInstructorMessage,
		Audience: AudienceAll,
		Data: mustRaw(map[string]any{
			"message":   text,
			"timestamp": time.Now().UTC(),
		}),
	}
}

// ScreenshotUpdated notifies instructors that a learner screen snapshot is
// available at the given URL.
func ScreenshotUpdated(participantID *uuid.UUID, deviceID, name, imageURL string, capturedAt time.Time) Event {
	return Event{
		Type:     TypeScreenshotUpdated,
		Audience: AudienceInstructorOnly,
		Data: mustRaw(map[string]any{
			"participant_id":   participantID,
			"device_id":        deviceID,
			"participant_name": name,
			"image_url":        imageURL,
			"captured_at":      capturedAt,
		}),
	}
}

// Error is sent to a single connection, never broadcast.
func Error(code, message string) Event {
	return Event{
		Type:     TypeError,
		Audience: AudienceAll,
		Data: mustRaw(map[string]any{
			"code":    code,
			"message": message,
		}),
	}
}

// Marshal renders the event's wire envelope.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(Envelope{Type: string(e.Type), Data: e.Data})
}
