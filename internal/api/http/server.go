// Package httpapi exposes the hub's management endpoints and the WebSocket
// attach point.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	appAudit "github.com/lecture-hub/lecture-hub/internal/application/audit"
	appIdentity "github.com/lecture-hub/lecture-hub/internal/application/identity"
	"github.com/lecture-hub/lecture-hub/internal/application/live"
	"github.com/lecture-hub/lecture-hub/internal/infrastructure/ws"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	liveSvc  *live.Service
	auditSvc *appAudit.Service
	resolver *appIdentity.Resolver
	hub      *ws.Hub
	logger   zerolog.Logger
}

func NewServer(
	liveSvc *live.Service,
	auditSvc *appAudit.Service,
	resolver *appIdentity.Resolver,
	hub *ws.Hub,
	logger zerolog.Logger,
) *Server {
	return &Server{
		liveSvc:  liveSvc,
		auditSvc: auditSvc,
		resolver: resolver,
		hub:      hub,
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// The attach point stays outside the timeout middleware: connections
	// live for the whole lecture.
	r.Get("/v1/live/{joinCode}/ws", s.attachWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/v1/sessions", func(r chi.Router) {
			r.Get("/code/{joinCode}", s.getSessionByCode)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Post("/", s.createSession)

				r.Route("/{sessionId}", func(r chi.Router) {
					r.Get("/", s.getSession)
					r.Get("/status", s.getCompletionStatus)
					r.Post("/completions", s.reportCompletion)
					r.Post("/screenshots", s.recordScreenshot)

					r.Group(func(r chi.Router) {
						r.Use(s.requireInstructor)
						r.Post("/start", s.startSession)
						r.Post("/next", s.advanceStep)
						r.Post("/pause", s.pauseSession)
						r.Post("/resume", s.resumeSession)
						r.Post("/end", s.endSession)
						r.Get("/participants", s.listParticipants)
						r.Get("/controls", s.listControlRecords)
					})
				})
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
