// Package ws is the WebSocket fan-out layer: one broadcast group per live
// session, non-blocking delivery per connection.
package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lecture-hub/lecture-hub/internal/domain/event"
	"github.com/lecture-hub/lecture-hub/internal/infrastructure/metrics"
)

// Hub tracks session groups and implements event.Broadcaster. Delivery is
// at-most-once: a connection that cannot keep up is dropped, its siblings
// never wait.
type Hub struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]map[string]*Conn
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		groups: make(map[uuid.UUID]map[string]*Conn),
		logger: logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds the connection to its session group.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[c.SessionID]
	if !ok {
		group = make(map[string]*Conn)
		h.groups[c.SessionID] = group
	}
	group[c.ID] = c
	metrics.TotalConnections.Inc()
	metrics.ActiveConnections.Inc()
}

// Unregister removes the connection and closes its send channel. Idempotent.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, "closed")
}

func (h *Hub) removeLocked(c *Conn, reason string) {
	group, ok := h.groups[c.SessionID]
	if !ok {
		return
	}
	if _, ok := group[c.ID]; !ok {
		return
	}
	delete(group, c.ID)
	if len(group) == 0 {
		delete(h.groups, c.SessionID)
	}
	c.close()
	metrics.ActiveConnections.Dec()
	metrics.DroppedConnections.WithLabelValues(reason).Inc()
}

// Publish fans the event out to the session group, honoring the audience
// filter and skipping the originating connection for join/leave events.
func (h *Hub) Publish(sessionID uuid.UUID, ev event.Event) {
	frame, err := ev.Marshal()
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[sessionID]
	var slow []*Conn
	for _, c := range group {
		if ev.Audience == event.AudienceInstructorOnly && !c.Identity.IsInstructor() {
			continue
		}
		if ev.OriginConnID != "" && ev.OriginConnID == c.ID {
			continue
		}
		if !c.TrySend(frame) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.logger.Warn().
			Str("connId", c.ID).
			Str("sessionId", sessionID.String()).
			Msg("send buffer full, dropping connection")
		h.removeLocked(c, "slow_consumer")
	}
	metrics.EventsBroadcast.WithLabelValues(string(ev.Type)).Inc()
}

// SendTo delivers an event to a single connection, for error frames that must
// not reach the rest of the group.
func (h *Hub) SendTo(c *Conn, ev event.Event) {
	frame, err := ev.Marshal()
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to encode event")
		return
	}
	if !c.TrySend(frame) {
		h.mu.Lock()
		h.removeLocked(c, "slow_consumer")
		h.mu.Unlock()
	}
}

// GroupSize reports how many connections the session group holds.
func (h *Hub) GroupSize(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[sessionID])
}

// InstructorCount reports how many group members carry instructor identity.
func (h *Hub) InstructorCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.groups[sessionID] {
		if c.Identity.IsInstructor() {
			n++
		}
	}
	return n
}

// Stop closes every connection. Used on shutdown.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, group := range h.groups {
		for _, c := range group {
			c.close()
			metrics.ActiveConnections.Dec()
		}
		delete(h.groups, sessionID)
	}
}
