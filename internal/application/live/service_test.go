package live

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAudit "github.com/lecture-hub/lecture-hub/internal/application/audit"
	"github.com/lecture-hub/lecture-hub/internal/domain/control"
	"github.com/lecture-hub/lecture-hub/internal/domain/curriculum"
	"github.com/lecture-hub/lecture-hub/internal/domain/event"
	"github.com/lecture-hub/lecture-hub/internal/domain/identity"
	"github.com/lecture-hub/lecture-hub/internal/domain/participant"
	"github.com/lecture-hub/lecture-hub/internal/domain/session"
)

var errDuplicate = errors.New(`duplicate key value violates unique constraint`)

type fakeSessionRepo struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]session.Session
	failCreates int
	failUpdates bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{byID: make(map[uuid.UUID]session.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreates > 0 {
		r.failCreates--
		return errDuplicate
	}
	for _, existing := range r.byID {
		if existing.JoinCode == s.JoinCode && !existing.IsTerminal() {
			return errDuplicate
		}
	}
	r.byID[s.SessionID] = *s
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	c := s
	return &c, nil
}

func (r *fakeSessionRepo) GetByJoinCode(_ context.Context, code string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.JoinCode == code && !s.IsTerminal() {
			c := s
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) Update(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdates {
		return errors.New("connection reset by peer")
	}
	r.byID[s.SessionID] = *s
	return nil
}

type fakeParticipantRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]participant.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{rows: make(map[uuid.UUID]participant.Participant)}
}

func clonePart(p participant.Participant) *participant.Participant {
	p.CompletedSteps = slices.Clone(p.CompletedSteps)
	return &p
}

func (r *fakeParticipantRepo) Create(_ context.Context, p *participant.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.SessionID != p.SessionID {
			continue
		}
		if p.UserID != nil && row.UserID != nil && *row.UserID == *p.UserID {
			return errDuplicate
		}
		if p.DeviceID != nil && row.DeviceID != nil && *row.DeviceID == *p.DeviceID {
			return errDuplicate
		}
	}
	r.rows[p.ParticipantID] = *clonePart(*p)
	return nil
}

func (r *fakeParticipantRepo) GetByID(_ context.Context, id uuid.UUID) (*participant.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	return clonePart(p), nil
}

func (r *fakeParticipantRepo) GetByUser(_ context.Context, sessionID, userID uuid.UUID) (*participant.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.SessionID == sessionID && p.UserID != nil && *p.UserID == userID {
			return clonePart(p), nil
		}
	}
	return nil, nil
}

func (r *fakeParticipantRepo) GetByDevice(_ context.Context, sessionID uuid.UUID, deviceID string) (*participant.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.SessionID == sessionID && p.DeviceID != nil && *p.DeviceID == deviceID {
			return clonePart(p), nil
		}
	}
	return nil, nil
}

func (r *fakeParticipantRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*participant.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*participant.Participant
	for _, p := range r.rows {
		if p.SessionID == sessionID {
			out = append(out, clonePart(p))
		}
	}
	return out, nil
}

func (r *fakeParticipantRepo) Update(_ context.Context, p *participant.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ParticipantID] = *clonePart(*p)
	return nil
}

func (r *fakeParticipantRepo) TouchLastActive(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil
	}
	p.LastActiveAt = at
	r.rows[id] = p
	return nil
}

func (r *fakeParticipantRepo) ActivateWaiting(_ context.Context, sessionID uuid.UUID, stepID int64, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, p := range r.rows {
		if p.SessionID == sessionID && p.Status == participant.StatusWaiting {
			p.Activate(stepID, at)
			r.rows[id] = p
			n++
		}
	}
	return n, nil
}

func (r *fakeParticipantRepo) SyncActiveStep(_ context.Context, sessionID uuid.UUID, stepID int64, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, p := range r.rows {
		if p.SessionID == sessionID && p.Status == participant.StatusActive {
			step := stepID
			p.CurrentStepID = &step
			p.LastActiveAt = at
			r.rows[id] = p
			n++
		}
	}
	return n, nil
}

type fakeControlRepo struct {
	mu      sync.Mutex
	records []*control.Record
}

func (r *fakeControlRepo) Append(_ context.Context, rec *control.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeControlRepo) ListBySession(_ context.Context, sessionID uuid.UUID, limit, offset int) ([]*control.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*control.Record
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeHub struct {
	mu          sync.Mutex
	events      map[uuid.UUID][]event.Event
	groupSize   int
	instructors int
}

func newFakeHub() *fakeHub {
	return &fakeHub{events: make(map[uuid.UUID][]event.Event), groupSize: 1}
}

func (h *fakeHub) Publish(sessionID uuid.UUID, ev event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[sessionID] = append(h.events[sessionID], ev)
}

func (h *fakeHub) GroupSize(uuid.UUID) int       { return h.groupSize }
func (h *fakeHub) InstructorCount(uuid.UUID) int { return h.instructors }

func (h *fakeHub) published(sessionID uuid.UUID) []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.events[sessionID])
}

func (h *fakeHub) typesFor(sessionID uuid.UUID) []event.Type {
	var out []event.Type
	for _, ev := range h.published(sessionID) {
		out = append(out, ev.Type)
	}
	return out
}

type stubCurriculum struct {
	steps []curriculum.Step
}

func (c *stubCurriculum) FirstStep(_ context.Context, lectureID uuid.UUID) (*curriculum.Step, error) {
	var first *curriculum.Step
	for i := range c.steps {
		if c.steps[i].LectureID != lectureID {
			continue
		}
		if first == nil || c.steps[i].Order < first.Order {
			first = &c.steps[i]
		}
	}
	return first, nil
}

func (c *stubCurriculum) Step(_ context.Context, lectureID uuid.UUID, stepID int64) (*curriculum.Step, error) {
	for i := range c.steps {
		if c.steps[i].LectureID == lectureID && c.steps[i].ID == stepID {
			return &c.steps[i], nil
		}
	}
	return nil, nil
}

func (c *stubCurriculum) Steps(_ context.Context, lectureID uuid.UUID) ([]*curriculum.Step, error) {
	var out []*curriculum.Step
	for i := range c.steps {
		if c.steps[i].LectureID == lectureID {
			out = append(out, &c.steps[i])
		}
	}
	return out, nil
}

type fixture struct {
	svc          *Service
	sessions     *fakeSessionRepo
	participants *fakeParticipantRepo
	controls     *fakeControlRepo
	hub          *fakeHub
	lectureID    uuid.UUID
	instructorID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lectureID := uuid.New()
	f := &fixture{
		sessions:     newFakeSessionRepo(),
		participants: newFakeParticipantRepo(),
		controls:     &fakeControlRepo{},
		hub:          newFakeHub(),
		lectureID:    lectureID,
		instructorID: uuid.New(),
	}
	cur := &stubCurriculum{steps: []curriculum.Step{
		{ID: 1, LectureID: lectureID, Order: 1, Title: "Open the editor"},
		{ID: 2, LectureID: lectureID, Order: 2, Title: "Create the project"},
		{ID: 3, LectureID: lectureID, Order: 3, Title: "Run it"},
	}}
	auditSvc := appAudit.NewService(f.controls, nil, zerolog.Nop())
	registry := NewRegistry(zerolog.Nop())
	t.Cleanup(registry.Close)
	f.svc = NewService(f.sessions, f.participants, cur, auditSvc, f.hub, registry, zerolog.Nop())
	return f
}

func (f *fixture) createSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.svc.CreateSession(context.Background(), CreateSessionInput{
		LectureID:    f.lectureID,
		InstructorID: f.instructorID,
		Title:        "Intro to Go",
	})
	require.NoError(t, err)
	return sess
}

func (f *fixture) joinDevice(t *testing.T, sessionID uuid.UUID, deviceID, name string) *participant.Participant {
	t.Helper()
	p, err := f.svc.Join(context.Background(), JoinInput{
		SessionID:   sessionID,
		Identity:    identity.Anonymous(deviceID, name),
		DisplayName: name,
		ConnID:      "conn-" + deviceID,
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestCreateSession_RetriesJoinCodeCollision(t *testing.T) {
	f := newFixture(t)
	f.sessions.failCreates = 2

	sess := f.createSession(t)
	assert.Len(t, sess.JoinCode, 6)
	assert.Equal(t, session.StatusWaiting, sess.Status)
}

func TestCreateSession_CollisionsExhaustRetries(t *testing.T) {
	f := newFixture(t)
	f.sessions.failCreates = joinCodeRetries

	_, err := f.svc.CreateSession(context.Background(), CreateSessionInput{
		LectureID:    f.lectureID,
		InstructorID: f.instructorID,
		Title:        "Intro to Go",
	})
	assert.Error(t, err)
}

func TestStart_ActivatesWaitingParticipants(t *testing.T) {
	// Scenario: three waiting learners, instructor starts on the first step.
	f := newFixture(t)
	sess := f.createSession(t)
	for _, dev := range []string{"dev-1", "dev-2", "dev-3"} {
		f.joinDevice(t, sess.SessionID, dev, dev)
	}

	firstStep := int64(1)
	started, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, &firstStep)
	require.NoError(t, err)
	assert.Equal(t, session.StatusInProgress, started.Status)
	require.NotNil(t, started.CurrentStepID)
	assert.Equal(t, int64(1), *started.CurrentStepID)

	parts, err := f.participants.ListBySession(context.Background(), sess.SessionID)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.Equal(t, participant.StatusActive, p.Status)
		require.NotNil(t, p.CurrentStepID)
		assert.Equal(t, int64(1), *p.CurrentStepID)
	}

	types := f.hub.typesFor(sess.SessionID)
	// Three joins, then status change, then step change, in that order.
	require.Len(t, types, 5)
	assert.Equal(t, event.TypeSessionStatusChanged, types[3])
	assert.Equal(t, event.TypeStepChanged, types[4])
}

func TestStart_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)

	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)
	before := len(f.hub.published(sess.SessionID))

	again, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)
	assert.Equal(t, session.StatusInProgress, again.Status)
	assert.Len(t, f.hub.published(sess.SessionID), before, "second start must not emit")
}

func TestStart_ResolvesFirstStepWhenOmitted(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)

	started, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)
	require.NotNil(t, started.CurrentStepID)
	assert.Equal(t, int64(1), *started.CurrentStepID)
}

func TestStart_RejectsForeignInstructor(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)

	_, err := f.svc.Start(context.Background(), sess.SessionID, uuid.New(), nil)
	assert.ErrorIs(t, err, session.ErrNotInstructor)
}

func TestAdvance_FailedSessionWriteEmitsNothing(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)
	before := len(f.hub.published(sess.SessionID))

	f.sessions.failUpdates = true
	_, err = f.svc.Advance(context.Background(), AdvanceInput{
		SessionID:    sess.SessionID,
		InstructorID: f.instructorID,
		NextStepID:   2,
	})
	require.Error(t, err)
	assert.Len(t, f.hub.published(sess.SessionID), before, "state and notification must not diverge")

	current, err := f.svc.GetSession(context.Background(), sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *current.CurrentStepID)
}

func TestAdvance_MovesActiveParticipants(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	f.joinDevice(t, sess.SessionID, "dev-1", "kim")
	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)

	_, err = f.svc.Advance(context.Background(), AdvanceInput{
		SessionID:    sess.SessionID,
		InstructorID: f.instructorID,
		NextStepID:   2,
	})
	require.NoError(t, err)

	parts, _ := f.participants.ListBySession(context.Background(), sess.SessionID)
	require.Len(t, parts, 1)
	assert.Equal(t, int64(2), *parts[0].CurrentStepID)
}

func TestPause_FromWaitingIsInvalidTransition(t *testing.T) {
	// Scenario: pause before start leaves status untouched.
	f := newFixture(t)
	sess := f.createSession(t)

	_, err := f.svc.Pause(context.Background(), sess.SessionID, f.instructorID)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)

	current, gerr := f.svc.GetSession(context.Background(), sess.SessionID)
	require.NoError(t, gerr)
	assert.Equal(t, session.StatusWaiting, current.Status)
	assert.Empty(t, f.hub.published(sess.SessionID))
}

func TestPauseResume_Toggle(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)

	paused, err := f.svc.Pause(context.Background(), sess.SessionID, f.instructorID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaused, paused.Status)

	resumed, err := f.svc.Resume(context.Background(), sess.SessionID, f.instructorID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusInProgress, resumed.Status)

	types := f.hub.typesFor(sess.SessionID)
	assert.Equal(t, event.TypeSessionStatusChanged, types[len(types)-1])
	assert.Equal(t, event.TypeSessionStatusChanged, types[len(types)-2])
}

func TestEnd_ReportsSummaryAndGoesTerminal(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	p := f.joinDevice(t, sess.SessionID, "dev-1", "kim")
	f.joinDevice(t, sess.SessionID, "dev-2", "lee")
	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)

	p.MarkCompleted(time.Now().UTC())
	require.NoError(t, f.participants.Update(context.Background(), p))

	summary, err := f.svc.End(context.Background(), sess.SessionID, f.instructorID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusReviewMode, summary.Session.Status)
	assert.Nil(t, summary.Session.CurrentStepID)
	assert.Equal(t, 2, summary.TotalParticipants)
	assert.Equal(t, 1, summary.CompletedParticipants)

	_, err = f.svc.Pause(context.Background(), sess.SessionID, f.instructorID)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestJoin_SameDeviceNeverDuplicates(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)

	first := f.joinDevice(t, sess.SessionID, "dev-42", "kim")
	second := f.joinDevice(t, sess.SessionID, "dev-42", "kim hyun")

	assert.Equal(t, first.ParticipantID, second.ParticipantID)
	assert.Equal(t, "kim hyun", second.DisplayName)

	parts, _ := f.participants.ListBySession(context.Background(), sess.SessionID)
	assert.Len(t, parts, 1)
}

func TestJoin_ConcurrentDeviceJoinsCreateOneRow(t *testing.T) {
	// Scenario: two connections for one device race through join.
	f := newFixture(t)
	sess := f.createSession(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Join(context.Background(), JoinInput{
				SessionID:   sess.SessionID,
				Identity:    identity.Anonymous("dev-7", "park"),
				DisplayName: "park",
				ConnID:      "conn-" + string(rune('a'+i)),
			})
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	parts, _ := f.participants.ListBySession(context.Background(), sess.SessionID)
	assert.Len(t, parts, 1)
}

func TestJoin_RevivesDisconnectedParticipant(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	p := f.joinDevice(t, sess.SessionID, "dev-1", "kim")
	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)

	f.svc.Leave(context.Background(), sess.SessionID, &p.ParticipantID, "conn-dev-1")

	gone, _ := f.participants.GetByID(context.Background(), p.ParticipantID)
	assert.Equal(t, participant.StatusDisconnected, gone.Status)

	back := f.joinDevice(t, sess.SessionID, "dev-1", "kim")
	assert.Equal(t, participant.StatusActive, back.Status)
	require.NotNil(t, back.CurrentStepID)
	assert.Equal(t, int64(1), *back.CurrentStepID)
}

func TestJoin_TerminalSessionRejected(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	_, err := f.svc.End(context.Background(), sess.SessionID, f.instructorID)
	require.NoError(t, err)

	_, err = f.svc.Join(context.Background(), JoinInput{
		SessionID: sess.SessionID,
		Identity:  identity.Anonymous("dev-9", "late"),
	})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestJoin_InstructorGetsNoParticipantRow(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)

	p, err := f.svc.Join(context.Background(), JoinInput{
		SessionID: sess.SessionID,
		Identity:  identity.Authenticated(f.instructorID, "prof", identity.RoleInstructor),
		ConnID:    "conn-prof",
	})
	require.NoError(t, err)
	assert.Nil(t, p)

	parts, _ := f.participants.ListBySession(context.Background(), sess.SessionID)
	assert.Empty(t, parts)
}

func TestReportCompletion_Idempotent(t *testing.T) {
	// Scenario: dev-42 reports step 3 done twice, one broadcast results.
	f := newFixture(t)
	sess := f.createSession(t)
	p := f.joinDevice(t, sess.SessionID, "dev-42", "kim")
	base := len(f.hub.published(sess.SessionID))

	for i := 0; i < 2; i++ {
		_, err := f.svc.ReportCompletion(context.Background(), CompletionInput{
			SessionID:     sess.SessionID,
			ParticipantID: p.ParticipantID,
			StepID:        3,
			IsCompleted:   true,
		})
		require.NoError(t, err)
	}

	fresh, _ := f.participants.GetByID(context.Background(), p.ParticipantID)
	assert.Equal(t, []int64{3}, fresh.CompletedSteps)

	completions := 0
	for _, ev := range f.hub.published(sess.SessionID)[base:] {
		if ev.Type == event.TypeStudentCompletion {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestReportCompletion_SnapshotCarriesFullSet(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	p := f.joinDevice(t, sess.SessionID, "dev-1", "kim")

	for _, step := range []int64{1, 2} {
		_, err := f.svc.ReportCompletion(context.Background(), CompletionInput{
			SessionID:     sess.SessionID,
			ParticipantID: p.ParticipantID,
			StepID:        step,
			IsCompleted:   true,
		})
		require.NoError(t, err)
	}

	events := f.hub.published(sess.SessionID)
	last := events[len(events)-1]
	require.Equal(t, event.TypeStudentCompletion, last.Type)
	assert.Equal(t, event.AudienceInstructorOnly, last.Audience)
	assert.Contains(t, string(last.Data), `"completed_subtasks":[1,2]`)
	assert.Contains(t, string(last.Data), `"total_completed":2`)
}

func TestReportCompletion_RemovalIsIdempotentToo(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	p := f.joinDevice(t, sess.SessionID, "dev-1", "kim")

	_, err := f.svc.ReportCompletion(context.Background(), CompletionInput{
		SessionID: sess.SessionID, ParticipantID: p.ParticipantID, StepID: 3, IsCompleted: true,
	})
	require.NoError(t, err)
	base := len(f.hub.published(sess.SessionID))

	for i := 0; i < 2; i++ {
		_, err = f.svc.ReportCompletion(context.Background(), CompletionInput{
			SessionID: sess.SessionID, ParticipantID: p.ParticipantID, StepID: 3, IsCompleted: false,
		})
		require.NoError(t, err)
	}

	fresh, _ := f.participants.GetByID(context.Background(), p.ParticipantID)
	assert.Empty(t, fresh.CompletedSteps)
	assert.Len(t, f.hub.published(sess.SessionID), base+1, "removal emits once, repeat is silent")
}

func TestRequestHelp_RoutedToInstructors(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	p := f.joinDevice(t, sess.SessionID, "dev-1", "kim")

	step := int64(2)
	require.NoError(t, f.svc.RequestHelp(context.Background(), sess.SessionID, p.ParticipantID, &step, "stuck on imports"))

	events := f.hub.published(sess.SessionID)
	last := events[len(events)-1]
	assert.Equal(t, event.TypeHelpRequested, last.Type)
	assert.Equal(t, event.AudienceInstructorOnly, last.Audience)
}

func TestBroadcastMessage_LengthLimit(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)

	long := make([]byte, maxBroadcastMessageLen+1)
	for i := range long {
		long[i] = 'a'
	}
	err := f.svc.BroadcastMessage(context.Background(), sess.SessionID, f.instructorID, string(long))
	assert.ErrorIs(t, err, ErrMessageTooLong)
	assert.Empty(t, f.hub.published(sess.SessionID))

	require.NoError(t, f.svc.BroadcastMessage(context.Background(), sess.SessionID, f.instructorID, "take a break"))
	assert.Len(t, f.hub.published(sess.SessionID), 1)
}

func TestBroadcastMessage_LimitCountsRunesNotBytes(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)

	// 500 Hangul runes are 1500 bytes but still within the limit.
	within := strings.Repeat("공", maxBroadcastMessageLen)
	require.NoError(t, f.svc.BroadcastMessage(context.Background(), sess.SessionID, f.instructorID, within))
	assert.Len(t, f.hub.published(sess.SessionID), 1)

	over := strings.Repeat("공", maxBroadcastMessageLen+1)
	err := f.svc.BroadcastMessage(context.Background(), sess.SessionID, f.instructorID, over)
	assert.ErrorIs(t, err, ErrMessageTooLong)
	assert.Len(t, f.hub.published(sess.SessionID), 1)
}

func TestCompletionStatus_Classification(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	waiting := f.joinDevice(t, sess.SessionID, "dev-wait", "w")
	stale := f.joinDevice(t, sess.SessionID, "dev-stale", "s")
	done := f.joinDevice(t, sess.SessionID, "dev-done", "d")
	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	staleRow, _ := f.participants.GetByID(context.Background(), stale.ParticipantID)
	staleRow.LastActiveAt = now.Add(-10 * time.Minute)
	require.NoError(t, f.participants.Update(context.Background(), staleRow))

	doneRow, _ := f.participants.GetByID(context.Background(), done.ParticipantID)
	doneRow.MarkCompleted(now)
	require.NoError(t, f.participants.Update(context.Background(), doneRow))

	report, err := f.svc.CompletionStatus(context.Background(), sess.SessionID)
	require.NoError(t, err)
	require.Len(t, report.Participants, 3)

	byID := make(map[uuid.UUID]participant.Presence)
	for _, ps := range report.Participants {
		byID[ps.ParticipantID] = ps.Presence
	}
	assert.Equal(t, participant.PresenceInProgress, byID[waiting.ParticipantID])
	assert.Equal(t, participant.PresenceDelayed, byID[stale.ParticipantID])
	assert.Equal(t, participant.PresenceCompleted, byID[done.ParticipantID])
}

func TestLeave_AnnouncesDepartureAndPersistsDisconnect(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	p := f.joinDevice(t, sess.SessionID, "dev-1", "kim")
	base := len(f.hub.published(sess.SessionID))

	f.svc.Leave(context.Background(), sess.SessionID, &p.ParticipantID, "conn-dev-1")

	events := f.hub.published(sess.SessionID)[base:]
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeParticipantLeft, events[0].Type)
	assert.Equal(t, "conn-dev-1", events[0].OriginConnID)

	row, _ := f.participants.GetByID(context.Background(), p.ParticipantID)
	assert.Equal(t, participant.StatusDisconnected, row.Status)
}

func TestLeave_WithoutParticipantIsSilent(t *testing.T) {
	// The instructor connection has no participant row to disconnect.
	f := newFixture(t)
	sess := f.createSession(t)

	f.svc.Leave(context.Background(), sess.SessionID, nil, "conn-prof")
	assert.Empty(t, f.hub.published(sess.SessionID))
}

func TestEnd_ReleasesMailboxWhenGroupEmpty(t *testing.T) {
	f := newFixture(t)
	f.hub.groupSize = 0
	sess := f.createSession(t)

	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.svc.registry.Size())

	_, err = f.svc.End(context.Background(), sess.SessionID, f.instructorID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.svc.registry.Size())
}
