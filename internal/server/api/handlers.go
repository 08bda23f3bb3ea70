package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/viz/interact"
	"github.com/systemshift/cypherview/internal/viz/render"
	"github.com/systemshift/cypherview/internal/viz/session"
)

// OpenSessionRequest is the request body for creating a session
type OpenSessionRequest struct {
	Database string `json:"database"`
	Query    string `json:"query"`
	Refresh  bool   `json:"refresh"`
}

// OpenSessionResponse is the response for creating a session
type OpenSessionResponse struct {
	ID     string        `json:"id"`
	Status render.Status `json:"status"`
}

// RequeryRequest replaces a session's query. An empty database keeps the
// current one.
type RequeryRequest struct {
	Database string `json:"database"`
	Query    string `json:"query"`
	Refresh  bool   `json:"refresh"`
}

// EventResponse is the response for a pointer event
type EventResponse struct {
	Hit       interact.Hit       `json:"hit"`
	Inspector interact.Inspector `json:"inspector"`
}

// CreateSession handles POST /api/sessions
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body: "+err.Error())
		return
	}

	sess, err := s.sessions.Open(req.Database, req.Query, req.Refresh)
	if err != nil {
		s.sessionFailed(w, err)
		return
	}

	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, OpenSessionResponse{ID: sess.ID(), Status: render.StatusLoading})
}

// Visualise handles GET /visualise?db=...&query=...
// It opens a session for the shared link and redirects to its drawing.
func (s *Server) Visualise(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	db := q.Get("db")
	if db == "" {
		db = q.Get("database")
	}

	sess, err := s.sessions.Open(db, q.Get("query"), q.Get("refresh") == "true")
	if err != nil {
		s.sessionFailed(w, err)
		return
	}
	http.Redirect(w, r, "/api/sessions/"+sess.ID()+"/svg", http.StatusSeeOther)
}

// GetFrame handles GET /api/sessions/{id}
func (s *Server) GetFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	frame, err := sess.Frame(r.Context())
	if err != nil {
		s.sessionFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

// GetSVG handles GET /api/sessions/{id}/svg
func (s *Server) GetSVG(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	frame, err := sess.Frame(r.Context())
	if err != nil {
		s.sessionFailed(w, err)
		return
	}

	var buf bytes.Buffer
	if err := render.SVG(&buf, frame, s.opts.SVG); err != nil {
		s.logger.Error("Rendering SVG failed", zap.String("session", sess.ID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// GetInspector handles GET /api/sessions/{id}/inspector
func (s *Server) GetInspector(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	in, err := sess.Inspector(r.Context())
	if err != nil {
		s.sessionFailed(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(in.String()))
}

// Requery handles POST /api/sessions/{id}/query
func (s *Server) Requery(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req RequeryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body: "+err.Error())
		return
	}

	db := req.Database
	if db == "" {
		frame, err := sess.Frame(r.Context())
		if err != nil {
			s.sessionFailed(w, err)
			return
		}
		db = frame.Database
	}
	if err := sess.Load(r.Context(), db, req.Query, req.Refresh); err != nil {
		s.sessionFailed(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, OpenSessionResponse{ID: sess.ID(), Status: render.StatusLoading})
}

// PostEvent handles POST /api/sessions/{id}/events
func (s *Server) PostEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var ev session.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body: "+err.Error())
		return
	}

	hit, err := sess.Apply(r.Context(), ev)
	if err != nil {
		s.sessionFailed(w, err)
		return
	}
	in, err := sess.Inspector(r.Context())
	if err != nil {
		s.sessionFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EventResponse{Hit: hit, Inspector: in})
}

// DeleteSession handles DELETE /api/sessions/{id}
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "id")); err != nil {
		s.sessionFailed(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sessionFailed(w, err)
		return nil, false
	}
	return sess, true
}

// sessionFailed maps session errors to status codes.
func (s *Server) sessionFailed(w http.ResponseWriter, err error) {
	var evErr *session.EventError
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, session.ErrNoDatabase):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrTooMany):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, session.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrCommandPanicked):
		s.logger.Error("Session command panicked", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &evErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("Session request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
