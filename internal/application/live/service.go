package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAudit "github.com/lecture-hub/lecture-hub/internal/application/audit"
	"github.com/lecture-hub/lecture-hub/internal/domain/control"
	"github.com/lecture-hub/lecture-hub/internal/domain/curriculum"
	"github.com/lecture-hub/lecture-hub/internal/domain/event"
	"github.com/lecture-hub/lecture-hub/internal/domain/identity"
	"github.com/lecture-hub/lecture-hub/internal/domain/participant"
	"github.com/lecture-hub/lecture-hub/internal/domain/session"
)

var (
	ErrAuthorizationDenied = errors.New("command not allowed for this role")
	ErrSessionClosed       = errors.New("session no longer accepts joins")
	ErrMessageTooLong      = errors.New("broadcast message exceeds 500 characters")
)

const maxBroadcastMessageLen = 500

const joinCodeRetries = 5

// Service is the authoritative writer for live sessions. Every mutating
// operation for one session runs on that session's mailbox, so broadcast
// order equals mutation order.
type Service struct {
	sessions     session.Repository
	participants participant.Repository
	curriculum   curriculum.Reader
	auditSvc     *appAudit.Service
	hub          event.Broadcaster
	registry     *Registry
	logger       zerolog.Logger
}

func NewService(
	sessions session.Repository,
	participants participant.Repository,
	curriculumReader curriculum.Reader,
	auditSvc *appAudit.Service,
	hub event.Broadcaster,
	registry *Registry,
	logger zerolog.Logger,
) *Service {
	return &Service{
		sessions:     sessions,
		participants: participants,
		curriculum:   curriculumReader,
		auditSvc:     auditSvc,
		hub:          hub,
		registry:     registry,
		logger:       logger.With().Str("service", "live").Logger(),
	}
}

// CreateSessionInput creates a new lecture session.
type CreateSessionInput struct {
	LectureID    uuid.UUID
	InstructorID uuid.UUID
	Title        string
	ScheduledAt  *time.Time
}

// CreateSession opens a WAITING session, regenerating the join code on a
// uniqueness collision.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*session.Session, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	var lastErr error
	for attempt := 0; attempt < joinCodeRetries; attempt++ {
		sess := session.NewSession(in.LectureID, in.InstructorID, in.Title, in.ScheduledAt)
		if err := s.sessions.Create(ctx, sess); err != nil {
			if isUniqueViolation(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("create session: %w", err)
		}
		s.logger.Info().
			Str("sessionId", sess.SessionID.String()).
			Str("joinCode", sess.JoinCode).
			Msg("session created")
		return sess, nil
	}
	return nil, fmt.Errorf("create session: join code collisions exhausted retries: %w", lastErr)
}

// GetSession returns the current session state.
func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

// GetSessionByCode resolves a join code among non-terminal sessions.
func (s *Service) GetSessionByCode(ctx context.Context, joinCode string) (*session.Session, error) {
	sess, err := s.sessions.GetByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(joinCode)))
	if err != nil {
		return nil, fmt.Errorf("get session by code: %w", err)
	}
	if sess == nil {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

// Start moves a WAITING session to IN_PROGRESS on its first step and flips
// every WAITING participant to ACTIVE. Idempotent: starting an already
// running session returns current state and emits nothing.
func (s *Service) Start(ctx context.Context, sessionID, instructorID uuid.UUID, firstStepID *int64) (*session.Session, error) {
	var (
		sess *session.Session
		err  error
	)
	s.registry.Do(sessionID, func() {
		sess, err = s.startLocked(ctx, sessionID, instructorID, firstStepID)
	})
	return sess, err
}

func (s *Service) startLocked(ctx context.Context, sessionID, instructorID uuid.UUID, firstStepID *int64) (*session.Session, error) {
	sess, err := s.loadOwned(ctx, sessionID, instructorID)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusInProgress {
		return sess, nil
	}

	step, err := s.resolveStep(ctx, sess.LectureID, firstStepID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := sess.Start(step.ID, now); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session start: %w", err)
	}

	activated, err := s.participants.ActivateWaiting(ctx, sessionID, step.ID, now)
	if err != nil {
		s.logger.Error().Err(err).Str("sessionId", sessionID.String()).Msg("failed to activate waiting participants")
	}

	s.record(ctx, control.NewRecord(sessionID, instructorID, &step.ID, control.ActionStartStep, "session started"))

	s.hub.Publish(sessionID, event.SessionStatusChanged(string(session.StatusInProgress), "session started"))
	s.hub.Publish(sessionID, event.StepChanged(stepInfo(step)))

	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Int64("stepId", step.ID).
		Int("activated", activated).
		Msg("session started")
	return sess, nil
}

// AdvanceInput moves the session to its next step.
type AdvanceInput struct {
	SessionID    uuid.UUID
	InstructorID uuid.UUID
	NextStepID   int64
	Message      string
	Skip         bool
}

// Advance replaces the current step and moves every ACTIVE participant with
// it. If the session write fails nothing is broadcast.
func (s *Service) Advance(ctx context.Context, in AdvanceInput) (*session.Session, error) {
	var (
		sess *session.Session
		err  error
	)
	s.registry.Do(in.SessionID, func() {
		sess, err = s.advanceLocked(ctx, in)
	})
	return sess, err
}

func (s *Service) advanceLocked(ctx context.Context, in AdvanceInput) (*session.Session, error) {
	sess, err := s.loadOwned(ctx, in.SessionID, in.InstructorID)
	if err != nil {
		return nil, err
	}

	step, err := s.curriculum.Step(ctx, sess.LectureID, in.NextStepID)
	if err != nil {
		return nil, fmt.Errorf("resolve step: %w", err)
	}
	if step == nil {
		return nil, curriculum.ErrStepNotFound
	}

	now := time.Now().UTC()
	if err := sess.Advance(step.ID, now); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist step advance: %w", err)
	}

	if _, err := s.participants.SyncActiveStep(ctx, in.SessionID, step.ID, now); err != nil {
		s.logger.Error().Err(err).Str("sessionId", in.SessionID.String()).Msg("failed to sync participant steps")
	}

	action := control.ActionStartStep
	if in.Skip {
		action = control.ActionSkip
	}
	s.record(ctx, control.NewRecord(in.SessionID, in.InstructorID, &step.ID, action, in.Message))

	s.hub.Publish(in.SessionID, event.StepChanged(stepInfo(step)))
	return sess, nil
}

// Pause suspends a running session.
func (s *Service) Pause(ctx context.Context, sessionID, instructorID uuid.UUID) (*session.Session, error) {
	return s.toggle(ctx, sessionID, instructorID, control.ActionPause)
}

// Resume continues a paused session.
func (s *Service) Resume(ctx context.Context, sessionID, instructorID uuid.UUID) (*session.Session, error) {
	return s.toggle(ctx, sessionID, instructorID, control.ActionResume)
}

func (s *Service) toggle(ctx context.Context, sessionID, instructorID uuid.UUID, action control.Action) (*session.Session, error) {
	var (
		sess *session.Session
		err  error
	)
	s.registry.Do(sessionID, func() {
		sess, err = s.toggleLocked(ctx, sessionID, instructorID, action)
	})
	return sess, err
}

func (s *Service) toggleLocked(ctx context.Context, sessionID, instructorID uuid.UUID, action control.Action) (*session.Session, error) {
	sess, err := s.loadOwned(ctx, sessionID, instructorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	message := "session paused"
	if action == control.ActionPause {
		err = sess.Pause(now)
	} else {
		err = sess.Resume(now)
		message = "session resumed"
	}
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session status: %w", err)
	}

	s.record(ctx, control.NewRecord(sessionID, instructorID, sess.CurrentStepID, action, message))
	s.hub.Publish(sessionID, event.SessionStatusChanged(string(sess.Status), message))
	return sess, nil
}

// EndSummary reports what happened in the session.
type EndSummary struct {
	Session               *session.Session `json:"session"`
	DurationMinutes       int              `json:"durationMinutes"`
	TotalParticipants     int              `json:"totalParticipants"`
	CompletedParticipants int              `json:"completedParticipants"`
}

// End moves any non-terminal session to REVIEW_MODE and reports a summary.
func (s *Service) End(ctx context.Context, sessionID, instructorID uuid.UUID) (*EndSummary, error) {
	var (
		summary *EndSummary
		err     error
	)
	s.registry.Do(sessionID, func() {
		summary, err = s.endLocked(ctx, sessionID, instructorID)
	})
	if err == nil {
		s.maybeRelease(sessionID, summary.Session)
	}
	return summary, err
}

func (s *Service) endLocked(ctx context.Context, sessionID, instructorID uuid.UUID) (*EndSummary, error) {
	sess, err := s.loadOwned(ctx, sessionID, instructorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lastStep := sess.CurrentStepID
	if err := sess.End(session.StatusReviewMode, now); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session end: %w", err)
	}

	s.record(ctx, control.NewRecord(sessionID, instructorID, lastStep, control.ActionEndStep, "session ended"))
	s.hub.Publish(sessionID, event.SessionStatusChanged(string(sess.Status), "session ended"))

	summary := &EndSummary{
		Session:         sess,
		DurationMinutes: int(sess.Duration().Minutes()),
	}
	if parts, err := s.participants.ListBySession(ctx, sessionID); err != nil {
		s.logger.Error().Err(err).Str("sessionId", sessionID.String()).Msg("failed to list participants for summary")
	} else {
		summary.TotalParticipants = len(parts)
		for _, p := range parts {
			if p.Status == participant.StatusCompleted {
				summary.CompletedParticipants++
			}
		}
	}

	s.logger.Info().
		Str("sessionId", sessionID.String()).
		Int("durationMinutes", summary.DurationMinutes).
		Msg("session ended")
	return summary, nil
}

// JoinInput registers an identity as a session participant.
type JoinInput struct {
	SessionID   uuid.UUID
	Identity    identity.Identity
	DisplayName string
	ConnID      string
}

// Join performs the get-or-create for a learner and announces it to the rest
// of the group. A repeat join reuses the existing row, updates the display
// name, and revives a DISCONNECTED participant. Instructors joining their own
// session get no participant row.
func (s *Service) Join(ctx context.Context, in JoinInput) (*participant.Participant, error) {
	var (
		p   *participant.Participant
		err error
	)
	s.registry.Do(in.SessionID, func() {
		p, err = s.joinLocked(ctx, in)
	})
	return p, err
}

func (s *Service) joinLocked(ctx context.Context, in JoinInput) (*participant.Participant, error) {
	sess, err := s.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, session.ErrNotFound
	}

	if in.Identity.IsInstructor() {
		if sess.InstructorID != in.Identity.UserID {
			return nil, ErrAuthorizationDenied
		}
		return nil, nil
	}
	if sess.IsTerminal() {
		return nil, ErrSessionClosed
	}

	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = in.Identity.DisplayName
	}

	p, err := s.findParticipant(ctx, in.SessionID, in.Identity)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if p == nil {
		p, err = s.createParticipant(ctx, in.SessionID, in.Identity, name)
		if err != nil {
			return nil, err
		}
	} else {
		if name != "" {
			p.DisplayName = name
		}
		if p.Status == participant.StatusDisconnected {
			if sess.Status == session.StatusInProgress && sess.CurrentStepID != nil {
				p.Activate(*sess.CurrentStepID, now)
			} else {
				p.Status = participant.StatusWaiting
			}
		}
		p.Touch(now)
		if err := s.participants.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("update participant: %w", err)
		}
	}

	s.hub.Publish(in.SessionID, event.ParticipantJoined(in.ConnID, p.ParticipantID, p.Name(), string(in.Identity.Role)))
	return p, nil
}

func (s *Service) createParticipant(ctx context.Context, sessionID uuid.UUID, id identity.Identity, name string) (*participant.Participant, error) {
	var (
		userID   *uuid.UUID
		deviceID *string
	)
	if id.Kind == identity.KindAuthenticated {
		u := id.UserID
		userID = &u
	} else {
		d := id.DeviceID
		deviceID = &d
	}

	p, err := participant.New(sessionID, userID, deviceID, name)
	if err != nil {
		return nil, err
	}
	if err := s.participants.Create(ctx, p); err != nil {
		if isUniqueViolation(err) {
			// Lost the insert race to a sibling connection; the row exists now.
			existing, ferr := s.findParticipant(ctx, sessionID, id)
			if ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("create participant: %w", err)
	}
	return p, nil
}

// FindParticipant resolves the participant row behind an identity, nil when
// the identity never joined the session.
func (s *Service) FindParticipant(ctx context.Context, sessionID uuid.UUID, id identity.Identity) (*participant.Participant, error) {
	return s.findParticipant(ctx, sessionID, id)
}

func (s *Service) findParticipant(ctx context.Context, sessionID uuid.UUID, id identity.Identity) (*participant.Participant, error) {
	if id.Kind == identity.KindAuthenticated {
		p, err := s.participants.GetByUser(ctx, sessionID, id.UserID)
		if err != nil {
			return nil, fmt.Errorf("get participant by user: %w", err)
		}
		return p, nil
	}
	p, err := s.participants.GetByDevice(ctx, sessionID, id.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("get participant by device: %w", err)
	}
	return p, nil
}

// Leave handles a transport close: the DISCONNECTED persist is best-effort,
// the departure is announced to the rest of the group either way.
func (s *Service) Leave(ctx context.Context, sessionID uuid.UUID, participantID *uuid.UUID, connID string) {
	s.registry.Do(sessionID, func() {
		if participantID == nil {
			return
		}
		p, err := s.participants.GetByID(ctx, *participantID)
		if err != nil || p == nil {
			s.logger.Warn().Err(err).
				Str("participantId", participantID.String()).
				Msg("participant not found on disconnect")
			return
		}
		p.MarkDisconnected(time.Now().UTC())
		if err := s.participants.Update(ctx, p); err != nil {
			s.logger.Warn().Err(err).
				Str("participantId", p.ParticipantID.String()).
				Msg("failed to persist disconnect")
		}
		s.hub.Publish(sessionID, event.ParticipantLeft(connID, p.ParticipantID, p.Name()))
	})

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err == nil && sess != nil {
		s.maybeRelease(sessionID, sess)
	}
}

// Heartbeat is the fast lane: it bumps last_active_at without touching the
// session's mailbox and emits no event.
func (s *Service) Heartbeat(ctx context.Context, participantID uuid.UUID) error {
	if err := s.participants.TouchLastActive(ctx, participantID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	return nil
}

// CompletionInput records a step completion toggle.
type CompletionInput struct {
	SessionID     uuid.UUID
	ParticipantID uuid.UUID
	StepID        int64
	IsCompleted   bool
}

// ReportCompletion is idempotent: repeating the same completion mutates
// nothing and emits nothing. An actual insertion broadcasts the full updated
// snapshot to instructors.
func (s *Service) ReportCompletion(ctx context.Context, in CompletionInput) (*participant.Participant, error) {
	var (
		p   *participant.Participant
		err error
	)
	s.registry.Do(in.SessionID, func() {
		p, err = s.reportCompletionLocked(ctx, in)
	})
	return p, err
}

func (s *Service) reportCompletionLocked(ctx context.Context, in CompletionInput) (*participant.Participant, error) {
	p, err := s.participants.GetByID(ctx, in.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if p == nil {
		return nil, participant.ErrNotFound
	}

	now := time.Now().UTC()
	var changed bool
	if in.IsCompleted {
		changed = p.CompleteStep(in.StepID, now)
	} else {
		changed = p.UncompleteStep(in.StepID, now)
	}
	if !changed {
		return p, nil
	}

	if err := s.participants.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("persist completion: %w", err)
	}

	if in.IsCompleted {
		s.hub.Publish(in.SessionID, event.StudentCompletion(p.ParticipantID, p.DeviceID, p.Name(), in.StepID, p.CompletedSteps))
	} else {
		s.hub.Publish(in.SessionID, event.ProgressUpdated(p.ParticipantID, p.Name(), in.StepID, "in_progress"))
	}
	return p, nil
}

// RequestHelp routes a learner's help request to instructor connections.
func (s *Service) RequestHelp(ctx context.Context, sessionID, participantID uuid.UUID, stepID *int64, message string) error {
	var err error
	s.registry.Do(sessionID, func() {
		var p *participant.Participant
		p, err = s.participants.GetByID(ctx, participantID)
		if err != nil {
			err = fmt.Errorf("get participant: %w", err)
			return
		}
		if p == nil {
			err = participant.ErrNotFound
			return
		}
		s.hub.Publish(sessionID, event.HelpRequested(p.ParticipantID, p.Name(), stepID, message))
		s.logger.Info().
			Str("sessionId", sessionID.String()).
			Str("participantId", participantID.String()).
			Msg("help requested")
	})
	return err
}

// BroadcastMessage sends instructor free text to the whole group.
func (s *Service) BroadcastMessage(ctx context.Context, sessionID, instructorID uuid.UUID, text string) error {
	if utf8.RuneCountInString(text) > maxBroadcastMessageLen {
		return ErrMessageTooLong
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message is required")
	}

	var err error
	s.registry.Do(sessionID, func() {
		if _, err = s.loadOwned(ctx, sessionID, instructorID); err != nil {
			return
		}
		s.hub.Publish(sessionID, event.InstructorMessage(text))
	})
	return err
}

// ScreenshotInput records a learner screen snapshot.
type ScreenshotInput struct {
	SessionID     uuid.UUID
	ParticipantID *uuid.UUID
	DeviceID      string
	ImageURL      string
	CapturedAt    time.Time
}

// RecordScreenshot broadcasts snapshot metadata to instructor connections.
// The image itself lives in external blob storage.
func (s *Service) RecordScreenshot(ctx context.Context, in ScreenshotInput) error {
	if in.ImageURL == "" {
		return fmt.Errorf("image_url is required")
	}
	if in.CapturedAt.IsZero() {
		in.CapturedAt = time.Now().UTC()
	}

	var err error
	s.registry.Do(in.SessionID, func() {
		name := ""
		if in.ParticipantID != nil {
			p, perr := s.participants.GetByID(ctx, *in.ParticipantID)
			if perr != nil {
				err = fmt.Errorf("get participant: %w", perr)
				return
			}
			if p != nil {
				name = p.Name()
				if in.DeviceID == "" && p.DeviceID != nil {
					in.DeviceID = *p.DeviceID
				}
			}
		}
		s.hub.Publish(in.SessionID, event.ScreenshotUpdated(in.ParticipantID, in.DeviceID, name, in.ImageURL, in.CapturedAt))
	})
	return err
}

// ParticipantStatus is one row of the dashboard presence view.
type ParticipantStatus struct {
	ParticipantID  uuid.UUID            `json:"participantId"`
	Name           string               `json:"name"`
	Status         participant.Status   `json:"status"`
	Presence       participant.Presence `json:"presence"`
	CurrentStepID  *int64               `json:"currentStepId,omitempty"`
	CompletedSteps []int64              `json:"completedSubtasks"`
	TotalCompleted int                  `json:"totalCompleted"`
	LastActiveAt   time.Time            `json:"lastActiveAt"`
}

// StatusReport is the presence + completion snapshot for one session.
type StatusReport struct {
	SessionID           uuid.UUID           `json:"sessionId"`
	Status              session.Status      `json:"status"`
	CurrentStepID       *int64              `json:"currentStepId,omitempty"`
	Connections         int                 `json:"connections"`
	InstructorConnected bool                `json:"instructorConnected"`
	Participants        []ParticipantStatus `json:"participants"`
}

// CompletionStatus derives the presence view at query time; nothing is swept
// in the background.
func (s *Service) CompletionStatus(ctx context.Context, sessionID uuid.UUID) (*StatusReport, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	parts, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	now := time.Now().UTC()
	report := &StatusReport{
		SessionID:           sess.SessionID,
		Status:              sess.Status,
		CurrentStepID:       sess.CurrentStepID,
		Connections:         s.hub.GroupSize(sessionID),
		InstructorConnected: s.hub.InstructorCount(sessionID) > 0,
		Participants:        make([]ParticipantStatus, 0, len(parts)),
	}
	for _, p := range parts {
		report.Participants = append(report.Participants, ParticipantStatus{
			ParticipantID:  p.ParticipantID,
			Name:           p.Name(),
			Status:         p.Status,
			Presence:       p.ClassifyPresence(now),
			CurrentStepID:  p.CurrentStepID,
			CompletedSteps: p.CompletedSteps,
			TotalCompleted: len(p.CompletedSteps),
			LastActiveAt:   p.LastActiveAt,
		})
	}
	return report, nil
}

// Roster lists a session's participants for the owning instructor.
func (s *Service) Roster(ctx context.Context, sessionID, instructorID uuid.UUID) ([]*participant.Participant, error) {
	if _, err := s.loadOwned(ctx, sessionID, instructorID); err != nil {
		return nil, err
	}
	parts, err := s.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return parts, nil
}

// CheckAccess validates that an identity may attach to the session: the
// owning instructor always may, learners only while the session is live.
func (s *Service) CheckAccess(ctx context.Context, sess *session.Session, id identity.Identity) error {
	if id.IsInstructor() {
		if sess.InstructorID != id.UserID {
			return ErrAuthorizationDenied
		}
		return nil
	}
	if sess.IsTerminal() {
		return ErrSessionClosed
	}
	return nil
}

// record appends a control record ahead of the broadcast it describes.
// A failed append is logged, not fatal: the live session keeps moving.
func (s *Service) record(ctx context.Context, rec *control.Record) {
	if err := s.auditSvc.RecordSync(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("sessionId", rec.SessionID.String()).Msg("control record not persisted")
	}
}

func (s *Service) loadOwned(ctx context.Context, sessionID, instructorID uuid.UUID) (*session.Session, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, session.ErrNotFound
	}
	if sess.InstructorID != instructorID {
		return nil, session.ErrNotInstructor
	}
	return sess, nil
}

func (s *Service) resolveStep(ctx context.Context, lectureID uuid.UUID, stepID *int64) (*curriculum.Step, error) {
	if stepID != nil {
		step, err := s.curriculum.Step(ctx, lectureID, *stepID)
		if err != nil {
			return nil, fmt.Errorf("resolve step: %w", err)
		}
		if step == nil {
			return nil, curriculum.ErrStepNotFound
		}
		return step, nil
	}
	step, err := s.curriculum.FirstStep(ctx, lectureID)
	if err != nil {
		return nil, fmt.Errorf("resolve first step: %w", err)
	}
	if step == nil {
		return nil, curriculum.ErrStepNotFound
	}
	return step, nil
}

// maybeRelease tears down the session's mailbox once the session is terminal
// and its broadcast group drained.
func (s *Service) maybeRelease(sessionID uuid.UUID, sess *session.Session) {
	if sess.IsTerminal() && s.hub.GroupSize(sessionID) == 0 {
		s.registry.Release(sessionID)
	}
}

func stepInfo(step *curriculum.Step) event.StepInfo {
	return event.StepInfo{
		ID:             step.ID,
		Title:          step.Title,
		Order:          step.Order,
		TargetAction:   step.TargetAction,
		GuideText:      step.GuideText,
		VoiceGuideText: step.VoiceGuideText,
	}
}

// isUniqueViolation sniffs driver errors for uniqueness failures without
// binding the service to a concrete store.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
