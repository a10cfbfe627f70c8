// Package api exposes the management HTTP surface: room snapshots,
// manual overrides, re-schedule triggers, config reload and probes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/ManuGH/schedy/internal/health"
	"github.com/ManuGH/schedy/internal/room"
)

// Core is the part of the engine the API needs.
type Core interface {
	Rooms() []*room.Room
	Room(name string) *room.Room
}

// Reloader triggers a configuration reload.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Options configures the server.
type Options struct {
	// Token guards the /api routes; empty disables auth.
	Token string
	// RateLimit is requests per minute per client IP; 0 disables.
	RateLimit int
}

// Server is the management API.
type Server struct {
	core     Core
	reloader Reloader
	health   *health.Manager
	opts     Options
}

func New(core Core, reloader Reloader, healthMgr *health.Manager, opts Options) *Server {
	return &Server{core: core, reloader: reloader, health: healthMgr, opts: opts}
}

// Handler builds the chi router with the full middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestID)
	r.Use(securityHeaders)
	r.Use(requestLogger)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)

	r.Route("/api", func(r chi.Router) {
		if s.opts.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.opts.RateLimit, time.Minute))
		}
		if s.opts.Token != "" {
			r.Use(bearerAuth(s.opts.Token))
		}

		r.Get("/rooms", s.listRooms)
		r.Route("/rooms/{room}", func(r chi.Router) {
			r.Get("/", s.getRoom)
			r.Post("/override", s.setOverride)
			r.Delete("/override", s.clearOverride)
			r.Post("/reschedule", s.reschedule)
		})
		r.Post("/reload", s.reload)
	})

	return r
}

func (s *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.core.Rooms()
	out := make([]room.Snapshot, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	rm := s.core.Room(chi.URLParam(r, "room"))
	if rm == nil {
		writeError(w, http.StatusNotFound, "unknown room")
		return
	}
	writeJSON(w, http.StatusOK, rm.Snapshot())
}

// overrideRequest is the body of POST /api/rooms/{room}/override.
type overrideRequest struct {
	// Value is the wanted value, e.g. 21.5 or "OFF".
	Value any `json:"value"`
	// Duration optionally bounds the override, e.g. "2h".
	Duration string `json:"duration,omitempty"`
}

func (s *Server) setOverride(w http.ResponseWriter, r *http.Request) {
	rm := s.core.Room(chi.URLParam(r, "room"))
	if rm == nil {
		writeError(w, http.StatusNotFound, "unknown room")
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	var d time.Duration
	if req.Duration != "" {
		var err error
		if d, err = time.ParseDuration(req.Duration); err != nil {
			writeError(w, http.StatusBadRequest, "invalid duration: "+err.Error())
			return
		}
		if d < 0 {
			writeError(w, http.StatusBadRequest, "duration must be positive")
			return
		}
	}

	if err := rm.SetOverride(r.Context(), req.Value, d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rm.Snapshot())
}

func (s *Server) clearOverride(w http.ResponseWriter, r *http.Request) {
	rm := s.core.Room(chi.URLParam(r, "room"))
	if rm == nil {
		writeError(w, http.StatusNotFound, "unknown room")
		return
	}
	if err := rm.ClearOverride(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rm.Snapshot())
}

func (s *Server) reschedule(w http.ResponseWriter, r *http.Request) {
	rm := s.core.Room(chi.URLParam(r, "room"))
	if rm == nil {
		writeError(w, http.StatusNotFound, "unknown room")
		return
	}
	if err := rm.Reschedule(r.Context(), "api"); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rm.Snapshot())
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		writeError(w, http.StatusNotImplemented, "reload not available")
		return
	}
	if err := s.reloader.Reload(r.Context()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
