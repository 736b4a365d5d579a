package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lecture-hub/lecture-hub/internal/application/live"
	"github.com/lecture-hub/lecture-hub/internal/domain/curriculum"
	"github.com/lecture-hub/lecture-hub/internal/domain/participant"
	"github.com/lecture-hub/lecture-hub/internal/domain/session"
)

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	if !id.IsInstructor() {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "instructor role required")
		return
	}

	var body struct {
		LectureID   uuid.UUID  `json:"lecture_id"`
		Title       string     `json:"title"`
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	sess, err := s.liveSvc.CreateSession(r.Context(), live.CreateSessionInput{
		LectureID:    body.LectureID,
		InstructorID: id.UserID,
		Title:        body.Title,
		ScheduledAt:  body.ScheduledAt,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	sess, err := s.liveSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) getSessionByCode(w http.ResponseWriter, r *http.Request) {
	sess, err := s.liveSvc.GetSessionByCode(r.Context(), urlParam(r, "joinCode"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	id, _ := identityFromContext(r.Context())

	var body struct {
		FirstStepID *int64 `json:"first_step_id"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
	}

	sess, err := s.liveSvc.Start(r.Context(), sessionID, id.UserID, body.FirstStepID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) advanceStep(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	id, _ := identityFromContext(r.Context())

	var body struct {
		NextStepID *int64 `json:"next_step_id"`
		Message    string `json:"message"`
		Skip       bool   `json:"skip"`
	}
	if err := decodeBody(r, &body); err != nil || body.NextStepID == nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "next_step_id is required")
		return
	}

	sess, err := s.liveSvc.Advance(r.Context(), live.AdvanceInput{
		SessionID:    sessionID,
		InstructorID: id.UserID,
		NextStepID:   *body.NextStepID,
		Message:      body.Message,
		Skip:         body.Skip,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) pauseSession(w http.ResponseWriter, r *http.Request) {
	s.toggleSession(w, r, s.liveSvc.Pause)
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	s.toggleSession(w, r, s.liveSvc.Resume)
}

func (s *Server) toggleSession(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID, uuid.UUID) (*session.Session, error)) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	id, _ := identityFromContext(r.Context())

	sess, err := op(r.Context(), sessionID, id.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	id, _ := identityFromContext(r.Context())

	summary, err := s.liveSvc.End(r.Context(), sessionID, id.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) reportCompletion(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	id, _ := identityFromContext(r.Context())

	var body struct {
		ParticipantID *uuid.UUID `json:"participant_id"`
		StepID        *int64     `json:"step_id"`
		IsCompleted   *bool      `json:"is_completed"`
	}
	if err := decodeBody(r, &body); err != nil || body.StepID == nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "step_id is required")
		return
	}

	participantID := body.ParticipantID
	if participantID == nil {
		p, err := s.liveSvc.FindParticipant(r.Context(), sessionID, id)
		if err != nil {
			s.respondServiceError(w, err)
			return
		}
		if p == nil {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "not a participant of this session")
			return
		}
		participantID = &p.ParticipantID
	}

	completed := true
	if body.IsCompleted != nil {
		completed = *body.IsCompleted
	}

	p, err := s.liveSvc.ReportCompletion(r.Context(), live.CompletionInput{
		SessionID:     sessionID,
		ParticipantID: *participantID,
		StepID:        *body.StepID,
		IsCompleted:   completed,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) getCompletionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	report, err := s.liveSvc.CompletionStatus(r.Context(), sessionID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	id, _ := identityFromContext(r.Context())

	parts, err := s.liveSvc.Roster(r.Context(), sessionID, id.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"participants": parts,
		"count":        len(parts),
	})
}

func (s *Server) recordScreenshot(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	id, _ := identityFromContext(r.Context())

	var body struct {
		ParticipantID *uuid.UUID `json:"participant_id"`
		DeviceID      string     `json:"device_id"`
		ImageURL      string     `json:"image_url"`
		CapturedAt    *time.Time `json:"captured_at"`
	}
	if err := decodeBody(r, &body); err != nil || body.ImageURL == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "image_url is required")
		return
	}

	in := live.ScreenshotInput{
		SessionID:     sessionID,
		ParticipantID: body.ParticipantID,
		DeviceID:      body.DeviceID,
		ImageURL:      body.ImageURL,
	}
	if body.CapturedAt != nil {
		in.CapturedAt = *body.CapturedAt
	}
	if in.ParticipantID == nil && in.DeviceID == "" {
		// A learner uploading its own snapshot.
		if p, ferr := s.liveSvc.FindParticipant(r.Context(), sessionID, id); ferr == nil && p != nil {
			in.ParticipantID = &p.ParticipantID
		}
	}

	if err := s.liveSvc.RecordScreenshot(r.Context(), in); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) listControlRecords(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := s.auditSvc.History(r.Context(), sessionID, limit, offset)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, participant.ErrNotFound),
		errors.Is(err, curriculum.ErrStepNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, session.ErrNotInstructor), errors.Is(err, live.ErrAuthorizationDenied):
		respondError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, session.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, live.ErrSessionClosed), errors.Is(err, live.ErrMessageTooLong):
		respondError(w, http.StatusUnprocessableEntity, "UNPROCESSABLE", err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
