package live

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_SerializesPerSession(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	defer r.Close()
	sessionID := uuid.New()

	var mu sync.Mutex
	var order []int
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Do(sessionID, func() {
				// No lock needed for counter: the mailbox is the only writer.
				counter++
				mu.Lock()
				order = append(order, counter)
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	for i, v := range order {
		assert.Equal(t, i+1, v, "tasks must run one at a time")
	}
}

func TestRegistry_DoIsSynchronous(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	defer r.Close()

	done := false
	r.Do(uuid.New(), func() { done = true })
	assert.True(t, done, "Do must not return before fn ran")
}

func TestRegistry_ReleaseAndRecreate(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	defer r.Close()
	sessionID := uuid.New()

	r.Do(sessionID, func() {})
	assert.Equal(t, 1, r.Size())

	r.Release(sessionID)
	assert.Equal(t, 0, r.Size())

	ran := false
	r.Do(sessionID, func() { ran = true })
	assert.True(t, ran)
	assert.Equal(t, 1, r.Size())
}

func TestRegistry_SessionsRunIndependently(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	defer r.Close()

	blocked := make(chan struct{})
	release := make(chan struct{})
	go r.Do(uuid.New(), func() {
		close(blocked)
		<-release
	})
	<-blocked

	// A busy mailbox must not stall other sessions.
	ran := false
	r.Do(uuid.New(), func() { ran = true })
	assert.True(t, ran)
	close(release)
}

func TestRegistry_CloseRunsInline(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Close()

	ran := false
	r.Do(uuid.New(), func() { ran = true })
	assert.True(t, ran)
	assert.Equal(t, 0, r.Size())
}
