package live

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/lecture-hub/lecture-hub/internal/domain/curriculum"
	"github.com/lecture-hub/lecture-hub/internal/domain/event"
	"github.com/lecture-hub/lecture-hub/internal/domain/identity"
	"github.com/lecture-hub/lecture-hub/internal/domain/participant"
	"github.com/lecture-hub/lecture-hub/internal/domain/session"
)

// Command wire types.
const (
	CmdJoin             = "join"
	CmdHeartbeat        = "heartbeat"
	CmdStepComplete     = "step_complete"
	CmdRequestHelp      = "request_help"
	CmdNextStep         = "next_step"
	CmdPauseSession     = "pause_session"
	CmdResumeSession    = "resume_session"
	CmdEndSession       = "end_session"
	CmdBroadcastMessage = "broadcast_message"
)

// Error frame codes.
const (
	codeAuthorizationDenied = "authorization_denied"
	codeValidationError     = "validation_error"
	codeInvalidTransition   = "invalid_transition"
	codeNotFound            = "not_found"
	codeUnknownCommand      = "unknown_command"
	codeInternalError       = "internal_error"
)

// Client is the per-connection context a frame arrives on. ParticipantID is
// nil until the connection has joined, and stays nil for the instructor.
type Client struct {
	ConnID        string
	SessionID     uuid.UUID
	Identity      identity.Identity
	ParticipantID *uuid.UUID
}

func (c *Client) bindParticipant(p *participant.Participant) {
	if p != nil {
		id := p.ParticipantID
		c.ParticipantID = &id
	}
}

// HandleFrame parses and dispatches one inbound frame. The returned event, if
// any, is an error frame for the sender only; the connection always survives
// a bad frame.
func (s *Service) HandleFrame(ctx context.Context, c *Client, raw []byte) *event.Event {
	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errFrame(codeValidationError, "malformed frame")
	}

	switch env.Type {
	case CmdJoin:
		return s.handleJoin(ctx, c, env.Data)
	case CmdHeartbeat:
		return s.handleHeartbeat(ctx, c)
	case CmdStepComplete:
		return s.handleStepComplete(ctx, c, env.Data)
	case CmdRequestHelp:
		return s.handleRequestHelp(ctx, c, env.Data)
	case CmdNextStep:
		return s.handleNextStep(ctx, c, env.Data)
	case CmdPauseSession:
		return s.instructorToggle(ctx, c, s.Pause)
	case CmdResumeSession:
		return s.instructorToggle(ctx, c, s.Resume)
	case CmdEndSession:
		return s.handleEndSession(ctx, c)
	case CmdBroadcastMessage:
		return s.handleBroadcastMessage(ctx, c, env.Data)
	default:
		s.logger.Debug().Str("type", env.Type).Msg("unknown command")
		return errFrame(codeUnknownCommand, "unknown command type: "+env.Type)
	}
}

func (s *Service) handleJoin(ctx context.Context, c *Client, data json.RawMessage) *event.Event {
	var payload struct {
		StudentName string `json:"student_name"`
		DisplayName string `json:"display_name"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return errFrame(codeValidationError, "malformed join payload")
		}
	}
	name := payload.StudentName
	if name == "" {
		name = payload.DisplayName
	}

	p, err := s.Join(ctx, JoinInput{
		SessionID:   c.SessionID,
		Identity:    c.Identity,
		DisplayName: name,
		ConnID:      c.ConnID,
	})
	if err != nil {
		return s.mapError(err)
	}
	c.bindParticipant(p)
	return nil
}

func (s *Service) handleHeartbeat(ctx context.Context, c *Client) *event.Event {
	if c.ParticipantID == nil {
		return nil
	}
	if err := s.Heartbeat(ctx, *c.ParticipantID); err != nil {
		s.logger.Warn().Err(err).Str("connId", c.ConnID).Msg("heartbeat not persisted")
	}
	return nil
}

func (s *Service) handleStepComplete(ctx context.Context, c *Client, data json.RawMessage) *event.Event {
	if c.Identity.IsInstructor() {
		return errFrame(codeAuthorizationDenied, "step_complete is a participant command")
	}
	if c.ParticipantID == nil {
		return errFrame(codeValidationError, "join before reporting completion")
	}

	var payload struct {
		SubtaskID   *int64 `json:"subtask_id"`
		IsCompleted *bool  `json:"is_completed"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.SubtaskID == nil {
		return errFrame(codeValidationError, "subtask_id is required")
	}
	completed := true
	if payload.IsCompleted != nil {
		completed = *payload.IsCompleted
	}

	if _, err := s.ReportCompletion(ctx, CompletionInput{
		SessionID:     c.SessionID,
		ParticipantID: *c.ParticipantID,
		StepID:        *payload.SubtaskID,
		IsCompleted:   completed,
	}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) handleRequestHelp(ctx context.Context, c *Client, data json.RawMessage) *event.Event {
	if c.Identity.IsInstructor() {
		return errFrame(codeAuthorizationDenied, "request_help is a participant command")
	}
	if c.ParticipantID == nil {
		return errFrame(codeValidationError, "join before requesting help")
	}

	var payload struct {
		SubtaskID *int64 `json:"subtask_id"`
		Message   string `json:"message"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return errFrame(codeValidationError, "malformed request_help payload")
		}
	}

	if err := s.RequestHelp(ctx, c.SessionID, *c.ParticipantID, payload.SubtaskID, payload.Message); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) handleNextStep(ctx context.Context, c *Client, data json.RawMessage) *event.Event {
	if !c.Identity.IsInstructor() {
		return errFrame(codeAuthorizationDenied, "next_step is an instructor command")
	}

	var payload struct {
		NextSubtaskID *int64 `json:"next_subtask_id"`
		SubtaskID     *int64 `json:"subtask_id"`
		Message       string `json:"message"`
		Skip          bool   `json:"skip"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errFrame(codeValidationError, "malformed next_step payload")
	}
	stepID := payload.NextSubtaskID
	if stepID == nil {
		stepID = payload.SubtaskID
	}
	if stepID == nil {
		return errFrame(codeValidationError, "next_subtask_id is required")
	}

	if _, err := s.Advance(ctx, AdvanceInput{
		SessionID:    c.SessionID,
		InstructorID: c.Identity.UserID,
		NextStepID:   *stepID,
		Message:      payload.Message,
		Skip:         payload.Skip,
	}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) instructorToggle(ctx context.Context, c *Client, op func(context.Context, uuid.UUID, uuid.UUID) (*session.Session, error)) *event.Event {
	if !c.Identity.IsInstructor() {
		return errFrame(codeAuthorizationDenied, "instructor command")
	}
	if _, err := op(ctx, c.SessionID, c.Identity.UserID); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) handleEndSession(ctx context.Context, c *Client) *event.Event {
	if !c.Identity.IsInstructor() {
		return errFrame(codeAuthorizationDenied, "end_session is an instructor command")
	}
	if _, err := s.End(ctx, c.SessionID, c.Identity.UserID); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *Service) handleBroadcastMessage(ctx context.Context, c *Client, data json.RawMessage) *event.Event {
	if !c.Identity.IsInstructor() {
		return errFrame(codeAuthorizationDenied, "broadcast_message is an instructor command")
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Message == "" {
		return errFrame(codeValidationError, "message is required")
	}

	if err := s.BroadcastMessage(ctx, c.SessionID, c.Identity.UserID, payload.Message); err != nil {
		return s.mapError(err)
	}
	return nil
}

// mapError translates a command failure into the error frame for the sender.
// Every failure is local to the command; none terminate the connection.
func (s *Service) mapError(err error) *event.Event {
	switch {
	case errors.Is(err, ErrAuthorizationDenied), errors.Is(err, session.ErrNotInstructor):
		return errFrame(codeAuthorizationDenied, "not allowed")
	case errors.Is(err, session.ErrInvalidTransition):
		return errFrame(codeInvalidTransition, "command invalid for current session status")
	case errors.Is(err, session.ErrNotFound), errors.Is(err, participant.ErrNotFound), errors.Is(err, curriculum.ErrStepNotFound):
		return errFrame(codeNotFound, err.Error())
	case errors.Is(err, ErrMessageTooLong), errors.Is(err, ErrSessionClosed):
		return errFrame(codeValidationError, err.Error())
	default:
		s.logger.Error().Err(err).Msg("command failed")
		return errFrame(codeInternalError, "command failed")
	}
}

func errFrame(code, message string) *event.Event {
	ev := event.Error(code, message)
	return &ev
}
