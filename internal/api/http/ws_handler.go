package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	appIdentity "github.com/lecture-hub/lecture-hub/internal/application/identity"
	"github.com/lecture-hub/lecture-hub/internal/application/live"
	"github.com/lecture-hub/lecture-hub/internal/infrastructure/metrics"
	"github.com/lecture-hub/lecture-hub/internal/infrastructure/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Learner devices connect from classroom networks with arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// attachWebSocket is the live attach point: join code in the path, bearer
// token or device id as credentials. Rejections happen before the handshake.
func (s *Server) attachWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.liveSvc.GetSessionByCode(r.Context(), urlParam(r, "joinCode"))
	if err != nil {
		metrics.AuthRejections.WithLabelValues("unknown_session").Inc()
		s.respondServiceError(w, err)
		return
	}

	query := r.URL.Query()
	token := extractToken(r)
	if token == "" {
		token = query.Get("token")
	}
	id, err := s.resolver.Resolve(appIdentity.ResolveInput{
		Token:       token,
		DeviceID:    query.Get("device_id"),
		DisplayName: query.Get("display_name"),
	})
	if err != nil {
		metrics.AuthRejections.WithLabelValues("credentials").Inc()
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "credentials rejected")
		return
	}
	if err := s.liveSvc.CheckAccess(r.Context(), sess, id); err != nil {
		metrics.AuthRejections.WithLabelValues("access").Inc()
		s.respondServiceError(w, err)
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	conn := ws.NewConn(sess.SessionID, id, sock, s.logger)
	s.hub.Register(conn)
	go conn.WritePump()

	client := &live.Client{
		ConnID:    conn.ID,
		SessionID: sess.SessionID,
		Identity:  id,
	}

	// Register the participant row up front; a later join frame may still
	// refresh the display name.
	ctx := context.Background()
	if p, err := s.liveSvc.Join(ctx, live.JoinInput{
		SessionID:   sess.SessionID,
		Identity:    id,
		DisplayName: id.DisplayName,
		ConnID:      conn.ID,
	}); err != nil {
		s.logger.Warn().Err(err).Str("connId", conn.ID).Msg("join on attach failed")
		s.hub.Unregister(conn)
		return
	} else if p != nil {
		pid := p.ParticipantID
		client.ParticipantID = &pid
	}

	s.logger.Info().
		Str("sessionId", sess.SessionID.String()).
		Str("connId", conn.ID).
		Str("identity", id.Key()).
		Msg("connection attached")

	conn.ReadPump(func(raw []byte) {
		metrics.FramesReceived.WithLabelValues(frameType(raw)).Inc()
		if errEv := s.liveSvc.HandleFrame(ctx, client, raw); errEv != nil {
			s.hub.SendTo(conn, *errEv)
		}
	})

	s.hub.Unregister(conn)
	s.liveSvc.Leave(ctx, sess.SessionID, client.ParticipantID, conn.ID)
	s.logger.Info().
		Str("sessionId", sess.SessionID.String()).
		Str("connId", conn.ID).
		Msg("connection detached")
}

// frameType peeks at the command type for metrics without a full parse.
func frameType(raw []byte) string {
	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil || peek.Type == "" {
		return "invalid"
	}
	return peek.Type
}
