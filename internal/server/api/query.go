package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/server/graph"
)

// maxQueryBody caps POST /neo4j/{db} bodies.
const maxQueryBody = 1 << 20

// QueryRequest is the request body for a custom query
type QueryRequest struct {
	Query string `json:"query"`
}

// DefaultQuery handles GET /neo4j/{db}
func (s *Server) DefaultQuery(w http.ResponseWriter, r *http.Request) {
	db := chi.URLParam(r, "db")
	if err := s.pool.Check(db); err != nil {
		s.logger.Warn("Rejected query", zap.String("database", db), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.pool.Run(r.Context(), db, graph.DefaultQuery)
	if err != nil {
		s.queryFailed(w, db, "default data query", err)
		return
	}
	body, err := graph.Encode(records, false)
	if err != nil {
		s.queryFailed(w, db, "default data query", err)
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// CustomQuery handles POST /neo4j/{db}
func (s *Server) CustomQuery(w http.ResponseWriter, r *http.Request) {
	db := chi.URLParam(r, "db")
	if err := s.pool.Check(db); err != nil {
		s.logger.Warn("Rejected query", zap.String("database", db), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxQueryBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON in request body: "+err.Error())
		return
	}
	var req QueryRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON in request body: "+err.Error())
			return
		}
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "No query provided")
		return
	}

	records, err := s.pool.Run(r.Context(), db, req.Query)
	if err != nil {
		s.queryFailed(w, db, "custom query", err)
		return
	}
	body, err := graph.Encode(records, true)
	if err != nil {
		s.queryFailed(w, db, "custom query", err)
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// queryFailed maps a pool error to a response. what names the query kind
// in the message.
func (s *Server) queryFailed(w http.ResponseWriter, db, what string, err error) {
	s.logger.Error("Query failed", zap.String("database", db), zap.String("kind", what), zap.Error(err))

	var cerr *graph.CredentialsError
	var connErr *graph.ConnectError
	switch {
	case errors.As(err, &cerr):
		writeError(w, http.StatusBadRequest, cerr.Error())
	case errors.As(err, &connErr):
		writeError(w, http.StatusInternalServerError, connErr.Error())
	case graph.IsDatabaseError(err):
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Database error during %s: %v", what, err))
	default:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Internal server error during %s: %v", what, err))
	}
}
