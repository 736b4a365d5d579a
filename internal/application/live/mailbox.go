package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type task struct {
	fn   func()
	done chan struct{}
}

// mailbox serializes all mutating work for one session.
type mailbox struct {
	tasks   chan task
	stopped chan struct{}
	pending int // guarded by Registry.mu
}

func newMailbox() *mailbox {
	m := &mailbox{
		tasks:   make(chan task, 64),
		stopped: make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *mailbox) run() {
	for t := range m.tasks {
		t.fn()
		close(t.done)
	}
	close(m.stopped)
}

// Registry owns one mailbox per live session. Mailboxes are created on first
// use and released once the session is terminal and its group is empty.
type Registry struct {
	mu     sync.Mutex
	boxes  map[uuid.UUID]*mailbox
	closed bool
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		boxes:  make(map[uuid.UUID]*mailbox),
		logger: logger.With().Str("component", "mailbox_registry").Logger(),
	}
}

// Do runs fn on the session's mailbox goroutine and waits for it to finish.
// Every caller for the same session observes fn invocations in submission
// order; calls for different sessions run in parallel.
func (r *Registry) Do(sessionID uuid.UUID, fn func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		fn()
		return
	}
	box, ok := r.boxes[sessionID]
	if !ok {
		box = newMailbox()
		r.boxes[sessionID] = box
		r.logger.Debug().Str("sessionId", sessionID.String()).Msg("mailbox created")
	}
	box.pending++
	r.mu.Unlock()

	t := task{fn: fn, done: make(chan struct{})}
	box.tasks <- t
	<-t.done

	r.mu.Lock()
	box.pending--
	r.mu.Unlock()
}

// Release tears the session's mailbox down once no task is in flight. A
// release skipped because of in-flight work is retried by the next caller.
func (r *Registry) Release(sessionID uuid.UUID) {
	r.mu.Lock()
	box, ok := r.boxes[sessionID]
	if !ok || box.pending > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.boxes, sessionID)
	r.mu.Unlock()

	close(box.tasks)
	<-box.stopped
	r.logger.Debug().Str("sessionId", sessionID.String()).Msg("mailbox released")
}

// Close drains every mailbox. Subsequent Do calls run inline.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	boxes := r.boxes
	r.boxes = make(map[uuid.UUID]*mailbox)
	r.mu.Unlock()

	// Callers that passed the closed check before it flipped may still be
	// enqueueing; wait for them before closing the channels.
	for {
		r.mu.Lock()
		inflight := 0
		for _, box := range boxes {
			inflight += box.pending
		}
		r.mu.Unlock()
		if inflight == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	for _, box := range boxes {
		close(box.tasks)
		<-box.stopped
	}
}

// Size reports how many sessions currently hold a mailbox.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boxes)
}
