package participant

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNew(t *testing.T) {
	sessionID := uuid.New()

	t.Run("device identity", func(t *testing.T) {
		p, err := New(sessionID, nil, strPtr("dev-42"), "Mina")
		require.NoError(t, err)
		assert.Equal(t, StatusWaiting, p.Status)
		assert.Equal(t, "dev-42", *p.DeviceID)
		assert.Nil(t, p.UserID)
		assert.Empty(t, p.CompletedSteps)
	})

	t.Run("user identity", func(t *testing.T) {
		userID := uuid.New()
		p, err := New(sessionID, &userID, nil, "Jun")
		require.NoError(t, err)
		assert.Equal(t, userID, *p.UserID)
	})

	t.Run("no identity rejected", func(t *testing.T) {
		_, err := New(sessionID, nil, nil, "ghost")
		assert.ErrorIs(t, err, ErrNoIdentity)

		_, err = New(sessionID, nil, strPtr(""), "ghost")
		assert.ErrorIs(t, err, ErrNoIdentity)
	})
}

func TestParticipant_CompleteStepIdempotent(t *testing.T) {
	p, err := New(uuid.New(), nil, strPtr("dev-42"), "Mina")
	require.NoError(t, err)
	now := time.Now().UTC()

	assert.True(t, p.CompleteStep(3, now))
	for i := 0; i < 5; i++ {
		assert.False(t, p.CompleteStep(3, now))
	}
	assert.Equal(t, []int64{3}, p.CompletedSteps)
	require.NotNil(t, p.LastCompletedAt)
}

func TestParticipant_UncompleteStep(t *testing.T) {
	p, err := New(uuid.New(), nil, strPtr("dev-42"), "Mina")
	require.NoError(t, err)
	now := time.Now().UTC()

	p.CompleteStep(3, now)
	p.CompleteStep(4, now)

	assert.True(t, p.UncompleteStep(3, now))
	assert.False(t, p.UncompleteStep(3, now))
	assert.Equal(t, []int64{4}, p.CompletedSteps)
}

func TestParticipant_ClassifyPresence(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name       string
		status     Status
		lastActive time.Time
		want       Presence
	}{
		{"completed wins over staleness", StatusCompleted, now.Add(-time.Hour), PresenceCompleted},
		{"waiting is not started", StatusWaiting, now.Add(-time.Hour), PresenceNotStarted},
		{"active and recent", StatusActive, now.Add(-time.Minute), PresenceInProgress},
		{"active but silent", StatusActive, now.Add(-6 * time.Minute), PresenceDelayed},
		{"exactly at threshold is not delayed", StatusActive, now.Add(-DelayedAfter), PresenceInProgress},
		{"disconnected but recent", StatusDisconnected, now.Add(-time.Minute), PresenceInProgress},
		{"disconnected and silent", StatusDisconnected, now.Add(-10 * time.Minute), PresenceDelayed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Participant{Status: tt.status, LastActiveAt: tt.lastActive}
			assert.Equal(t, tt.want, p.ClassifyPresence(now))
		})
	}
}

func TestParticipant_Lifecycle(t *testing.T) {
	p, err := New(uuid.New(), nil, strPtr("dev-7"), "Ben")
	require.NoError(t, err)
	now := time.Now().UTC()

	p.Activate(11, now)
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, int64(11), *p.CurrentStepID)

	p.MarkDisconnected(now)
	assert.Equal(t, StatusDisconnected, p.Status)
	// disconnect is idempotent
	p.MarkDisconnected(now)
	assert.Equal(t, StatusDisconnected, p.Status)

	p.MarkCompleted(now)
	assert.Equal(t, StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
}
