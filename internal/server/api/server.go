// Package api serves the Cypher query endpoints and the visualization
// session endpoints over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/metrics"
	"github.com/systemshift/cypherview/internal/server/graph"
	"github.com/systemshift/cypherview/internal/viz/render"
	"github.com/systemshift/cypherview/internal/viz/session"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// MetricsPath mounts the Prometheus handler; empty disables it.
	MetricsPath string
	SVG         render.SVGOptions
}

// Server holds the HTTP server dependencies
type Server struct {
	pool     *graph.Pool
	sessions *session.Manager
	metrics  *metrics.Collector
	logger   *zap.Logger
	opts     Options
}

// New creates an API server. pool may be nil, in which case the /neo4j
// endpoints are not served and sessions read from another query API.
func New(pool *graph.Pool, sessions *session.Manager, m *metrics.Collector, logger *zap.Logger, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.SVG == (render.SVGOptions{}) {
		opts.SVG = render.DefaultSVGOptions()
	}
	return &Server{pool: pool, sessions: sessions, metrics: m, logger: logger, opts: opts}
}

// Router builds the route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(answerOptions)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/health", s.health)
	if s.opts.MetricsPath != "" && s.metrics != nil {
		r.Handle(s.opts.MetricsPath, s.metrics.Handler())
	}

	if s.pool != nil {
		r.Get("/neo4j/{db}", s.DefaultQuery)
		r.Post("/neo4j/{db}", s.CustomQuery)
	}

	if s.sessions != nil {
		r.Get("/visualise", s.Visualise)
		r.Route("/api/sessions", func(r chi.Router) {
			r.Post("/", s.CreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetFrame)
				r.Delete("/", s.DeleteSession)
				r.Get("/svg", s.GetSVG)
				r.Get("/inspector", s.GetInspector)
				r.Post("/query", s.Requery)
				r.Post("/events", s.PostEvent)
			})
		})
	}

	return r
}

// answerOptions replies 200 to OPTIONS requests that are not CORS
// preflights; the cors handler has already answered those.
func answerOptions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.sessions != nil {
		resp["sessions"] = s.sessions.Len()
	}
	if s.pool != nil {
		resp["databases"] = s.pool.Databases()
	}
	writeJSON(w, http.StatusOK, resp)
}

// logRequests writes one log line per request and feeds the HTTP metrics.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveHTTP(r.Method, route, status, elapsed)
		}

		s.logger.Info("HTTP Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
			zap.String("requestID", middleware.GetReqID(r.Context())),
			zap.String("remoteAddr", r.RemoteAddr),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
