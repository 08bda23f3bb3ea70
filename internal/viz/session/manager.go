// Package session runs one live visualization per viewer: the fetched
// model, its layout simulation and the interaction controller, all owned by
// a single event loop goroutine.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/metrics"
	"github.com/systemshift/cypherview/internal/viz/graphmodel"
	"github.com/systemshift/cypherview/internal/viz/interact"
	"github.com/systemshift/cypherview/internal/viz/layout"
	"github.com/systemshift/cypherview/internal/viz/palette"
)

// DefaultQuery is run when a session is opened without a query.
const DefaultQuery = "MATCH (n) RETURN n LIMIT 10"

var (
	ErrNotFound   = errors.New("session not found")
	ErrClosed     = errors.New("session closed")
	ErrNoDatabase = errors.New("database is required")
	ErrTooMany    = errors.New("too many open sessions")

	// ErrCommandPanicked reports a request whose work on the session loop
	// panicked. The loop itself keeps running.
	ErrCommandPanicked = errors.New("session command panicked")
)

// Fetcher returns the raw JSON result of running query against database.
type Fetcher interface {
	Fetch(ctx context.Context, database, query string) ([]byte, error)
}

// Invalidator is implemented by fetchers that cache results. Refreshing a
// query invalidates it first.
type Invalidator interface {
	Invalidate(ctx context.Context, database, query string) error
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, database, query string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, database, query string) ([]byte, error) {
	return f(ctx, database, query)
}

// Options configures sessions created by a Manager.
type Options struct {
	TickInterval time.Duration
	FetchTimeout time.Duration
	// MaxSessions caps live sessions; zero means no limit.
	MaxSessions int
	// ModelCacheSize is how many (database, query) models are kept.
	ModelCacheSize int
	// IdleTimeout closes sessions no request has touched for this long;
	// zero keeps them until closed.
	IdleTimeout time.Duration

	Layout   layout.Options
	Interact interact.Options
	Palette  palette.Options
}

// DefaultOptions ticks at roughly 60 frames per second.
func DefaultOptions() Options {
	return Options{
		TickInterval:   16 * time.Millisecond,
		FetchTimeout:   30 * time.Second,
		ModelCacheSize: 64,
		IdleTimeout:    10 * time.Minute,
		Layout:         layout.DefaultOptions(),
		Interact:       interact.DefaultOptions(),
		Palette:        palette.DefaultOptions(),
	}
}

type modelKey struct {
	database string
	query    string
}

// Manager creates, finds and closes sessions. It also caches normalized
// models so reopening a query skips the fetch unless a refresh is asked for.
type Manager struct {
	fetcher Fetcher
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector

	mu       sync.RWMutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	modelMu    sync.Mutex
	models     map[modelKey]*graphmodel.Model
	modelOrder []modelKey
}

// NewManager creates a session manager.
func NewManager(fetcher Fetcher, opts Options, logger *zap.Logger, m *metrics.Collector) *Manager {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 16 * time.Millisecond
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	mgr := &Manager{
		fetcher:  fetcher,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
		models:   make(map[modelKey]*graphmodel.Model),
	}
	if opts.IdleTimeout > 0 {
		mgr.wg.Add(1)
		go mgr.reapLoop()
	}
	return mgr
}

// reapLoop closes idle sessions until Shutdown.
func (m *Manager) reapLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.reapInterval())
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.reap(now)
		}
	}
}

func (m *Manager) reapInterval() time.Duration {
	interval := m.opts.IdleTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return interval
}

// reap closes every session idle since before now minus IdleTimeout.
func (m *Manager) reap(now time.Time) int {
	cutoff := now.Add(-m.opts.IdleTimeout)

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.lastAccess().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	reaped := 0
	for _, id := range idle {
		if m.Close(id) == nil {
			reaped++
			m.metrics.SessionsExpired.Inc()
			m.logger.Info("Session expired", zap.String("session", id))
		}
	}
	return reaped
}

// Open starts a session and begins loading query from database. The
// session is returned immediately in the loading state.
func (m *Manager) Open(database, query string, refresh bool) (*Session, error) {
	if database == "" {
		return nil, ErrNoDatabase
	}

	m.mu.Lock()
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooMany
	}
	s := newSession(uuid.NewString(), m)
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.metrics.SessionsOpen.Inc()
	go s.run()

	m.logger.Info("Session opened",
		zap.String("session", s.id),
		zap.String("database", database))

	if err := s.Load(context.Background(), database, query, refresh); err != nil {
		m.Close(s.id)
		return nil, err
	}
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close stops a session and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.close()
	m.metrics.SessionsOpen.Dec()
	m.logger.Info("Session closed", zap.String("session", id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops the reaper and closes every session.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}

// Model returns the normalized model for query, from cache unless refresh
// is set. Dangling edges are pruned and logged.
func (m *Manager) Model(ctx context.Context, database, query string, refresh bool) (*graphmodel.Model, error) {
	key := modelKey{database: database, query: query}
	if !refresh {
		m.modelMu.Lock()
		model, ok := m.models[key]
		m.modelMu.Unlock()
		if ok {
			m.metrics.CacheHits.WithLabelValues("model").Inc()
			return model, nil
		}
	}
	m.metrics.CacheMisses.WithLabelValues("model").Inc()

	if inv, ok := m.fetcher.(Invalidator); ok && refresh {
		if err := inv.Invalidate(ctx, database, query); err != nil {
			m.logger.Warn("Failed to invalidate cached result", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	payload, err := m.fetcher.Fetch(ctx, database, query)
	m.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.metrics.Fetches.WithLabelValues("error").Inc()
		return nil, err
	}
	m.metrics.Fetches.WithLabelValues("ok").Inc()

	model, err := graphmodel.NormalizePayload(payload)
	if err != nil {
		m.metrics.NormalizationErrors.Inc()
		return nil, err
	}
	if dropped := model.Prune(); len(dropped) > 0 {
		m.metrics.DanglingEdges.Add(float64(len(dropped)))
		for _, e := range dropped {
			m.logger.Warn("Dropped edge with unknown endpoint",
				zap.String("database", database),
				zap.String("type", e.Type),
				zap.String("source", string(e.Source)),
				zap.String("target", string(e.Target)))
		}
	}

	m.storeModel(key, model)
	return model, nil
}

func (m *Manager) storeModel(key modelKey, model *graphmodel.Model) {
	if m.opts.ModelCacheSize <= 0 {
		return
	}
	m.modelMu.Lock()
	defer m.modelMu.Unlock()

	if _, ok := m.models[key]; !ok {
		m.modelOrder = append(m.modelOrder, key)
	}
	m.models[key] = model
	for len(m.modelOrder) > m.opts.ModelCacheSize {
		delete(m.models, m.modelOrder[0])
		m.modelOrder = m.modelOrder[1:]
	}
}
