package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lecture-hub/lecture-hub/internal/domain/identity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBufferSize = 64
)

// Conn is one live transport connection inside a session group.
type Conn struct {
	ID        string
	SessionID uuid.UUID
	Identity  identity.Identity

	sock   *websocket.Conn
	logger zerolog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewConn(sessionID uuid.UUID, id identity.Identity, sock *websocket.Conn, logger zerolog.Logger) *Conn {
	connID := uuid.NewString()
	return &Conn{
		ID:        connID,
		SessionID: sessionID,
		Identity:  id,
		sock:      sock,
		send:      make(chan []byte, sendBufferSize),
		logger:    logger.With().Str("connId", connID).Logger(),
	}
}

// TrySend enqueues a frame without blocking. False means the connection is
// closed or its buffer is full and it should be dropped. The mutex keeps the
// enqueue ordered against close, so a drop never races a late send.
func (c *Conn) TrySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// WritePump drains the send buffer onto the socket and keeps the peer alive
// with pings. Runs until the send channel closes or a write fails.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump feeds inbound frames to onFrame until the peer goes away.
func (c *Conn) ReadPump(onFrame func(raw []byte)) {
	c.sock.SetReadLimit(maxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("unexpected close")
			}
			return
		}
		onFrame(raw)
	}
}

// close shuts the send channel exactly once; the write pump closes the socket.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
