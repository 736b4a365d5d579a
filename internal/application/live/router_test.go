package live

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecture-hub/lecture-hub/internal/domain/event"
	"github.com/lecture-hub/lecture-hub/internal/domain/identity"
	"github.com/lecture-hub/lecture-hub/internal/domain/session"
)

func TestHandleFrame_LearnerNextStepDenied(t *testing.T) {
	// Scenario: a learner connection tries to drive the session forward.
	f := newFixture(t)
	sess := f.createSession(t)
	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)
	base := len(f.hub.published(sess.SessionID))

	c := &Client{
		ConnID:    "conn-learner",
		SessionID: sess.SessionID,
		Identity:  identity.Anonymous("dev-1", "kim"),
	}
	frame := f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"next_step","data":{"next_subtask_id":2}}`))

	require.NotNil(t, frame)
	assert.Equal(t, event.TypeError, frame.Type)
	assert.Contains(t, string(frame.Data), "authorization_denied")

	current, _ := f.svc.GetSession(context.Background(), sess.SessionID)
	assert.Equal(t, int64(1), *current.CurrentStepID, "step must stay unchanged")
	assert.Len(t, f.hub.published(sess.SessionID), base, "no broadcast on denied command")
}

func TestHandleFrame_MalformedPayloadKeepsConnection(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	c := &Client{ConnID: "c1", SessionID: sess.SessionID, Identity: identity.Anonymous("dev-1", "kim")}

	for _, raw := range []string{
		`not json at all`,
		`{"type":"step_complete","data":{}}`,
		`{"type":"next_step","data":"nope"}`,
	} {
		frame := f.svc.HandleFrame(context.Background(), c, []byte(raw))
		require.NotNil(t, frame, raw)
		assert.Equal(t, event.TypeError, frame.Type, raw)
	}
	assert.Empty(t, f.hub.published(sess.SessionID))
}

func TestHandleFrame_UnknownCommandType(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	c := &Client{ConnID: "c1", SessionID: sess.SessionID, Identity: identity.Anonymous("dev-1", "kim")}

	frame := f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"teleport","data":{}}`))
	require.NotNil(t, frame)
	assert.Contains(t, string(frame.Data), "unknown_command")
}

func TestHandleFrame_JoinBindsParticipant(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	c := &Client{ConnID: "c1", SessionID: sess.SessionID, Identity: identity.Anonymous("dev-1", "")}

	frame := f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"join","data":{"student_name":"kim"}}`))
	assert.Nil(t, frame)
	require.NotNil(t, c.ParticipantID)

	p, err := f.participants.GetByID(context.Background(), *c.ParticipantID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "kim", p.DisplayName)
}

func TestHandleFrame_StepCompleteBeforeJoin(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	c := &Client{ConnID: "c1", SessionID: sess.SessionID, Identity: identity.Anonymous("dev-1", "kim")}

	frame := f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"step_complete","data":{"subtask_id":3}}`))
	require.NotNil(t, frame)
	assert.Contains(t, string(frame.Data), "validation_error")
}

func TestHandleFrame_InstructorFlow(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	c := &Client{
		ConnID:    "conn-prof",
		SessionID: sess.SessionID,
		Identity:  identity.Authenticated(f.instructorID, "prof", identity.RoleInstructor),
	}
	_, err := f.svc.Start(context.Background(), sess.SessionID, f.instructorID, nil)
	require.NoError(t, err)

	assert.Nil(t, f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"next_step","data":{"next_subtask_id":2}}`)))
	assert.Nil(t, f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"pause_session","data":{}}`)))
	assert.Nil(t, f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"resume_session","data":{}}`)))
	assert.Nil(t, f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"broadcast_message","data":{"message":"almost done"}}`)))
	assert.Nil(t, f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"end_session"}`)))

	current, _ := f.svc.GetSession(context.Background(), sess.SessionID)
	assert.Equal(t, session.StatusReviewMode, current.Status)
}

func TestHandleFrame_PauseFromWaitingReturnsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	c := &Client{
		ConnID:    "conn-prof",
		SessionID: sess.SessionID,
		Identity:  identity.Authenticated(f.instructorID, "prof", identity.RoleInstructor),
	}

	frame := f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"pause_session","data":{}}`))
	require.NotNil(t, frame)
	assert.Contains(t, string(frame.Data), "invalid_transition")
}

func TestHandleFrame_InstructorCannotStepComplete(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t)
	c := &Client{
		ConnID:    "conn-prof",
		SessionID: sess.SessionID,
		Identity:  identity.Authenticated(f.instructorID, "prof", identity.RoleInstructor),
	}

	frame := f.svc.HandleFrame(context.Background(), c, []byte(`{"type":"step_complete","data":{"subtask_id":1}}`))
	require.NotNil(t, frame)
	assert.Contains(t, string(frame.Data), "authorization_denied")
}
