package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/viz/graphmodel"
	"github.com/systemshift/cypherview/internal/viz/interact"
	"github.com/systemshift/cypherview/internal/viz/layout"
	"github.com/systemshift/cypherview/internal/viz/palette"
	"github.com/systemshift/cypherview/internal/viz/render"
)

// stepLayout advances a simulation by one tick.
var stepLayout = (*layout.Simulation).Tick

// Session is one live visualization. Its graph state is owned by the run
// loop; other goroutines reach it only by posting closures through do.
type Session struct {
	id      string
	mgr     *Manager
	logger  *zap.Logger
	created time.Time

	lastUsed atomic.Int64

	cmds   chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the loop.
	database   string
	query      string
	generation uint64
	status     render.Status
	message    string
	sim        *layout.Simulation
	ctrl       *interact.Controller
	colors     *palette.Registry
}

func newSession(id string, mgr *Manager) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      id,
		mgr:     mgr,
		logger:  mgr.logger.With(zap.String("session", id)),
		created: time.Now(),
		cmds:    make(chan func()),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  render.StatusLoading,
	}
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time {
	return s.created
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// lastAccess returns when a request last reached the session.
func (s *Session) lastAccess() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Done is closed once the loop has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.mgr.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.cmds:
			s.safely("command", fn)
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Session) close() {
	s.cancel()
	<-s.done
}

// safely runs fn, recovering and logging a panic so the loop survives.
func (s *Session) safely(what string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			s.logger.Error("Recovered from panic in session loop",
				zap.String("in", what),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
	return false
}

func (s *Session) tick() {
	if s.sim == nil || s.sim.Settled() {
		return
	}
	start := time.Now()
	if s.safely("tick", func() { stepLayout(s.sim) }) {
		s.mgr.metrics.TickPanics.Inc()
		return
	}
	s.mgr.metrics.Ticks.Inc()
	s.mgr.metrics.TickDuration.Observe(time.Since(start).Seconds())
}

// do runs fn on the loop and waits for it to finish. A panic in fn is
// recovered on the loop and reported as ErrCommandPanicked.
func (s *Session) do(ctx context.Context, fn func()) error {
	s.touch()
	finished := make(chan struct{})
	var panicked bool
	wrapped := func() {
		defer close(finished)
		panicked = s.safely("command", fn)
	}

	select {
	case s.cmds <- wrapped:
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		if panicked {
			return ErrCommandPanicked
		}
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load replaces the session's query and starts fetching it. Results of any
// earlier load that arrive later are discarded.
func (s *Session) Load(ctx context.Context, database, query string, refresh bool) error {
	if database == "" {
		return ErrNoDatabase
	}
	if query == "" {
		query = DefaultQuery
	}

	var gen uint64
	err := s.do(ctx, func() {
		s.generation++
		gen = s.generation
		s.database, s.query = database, query
		s.status, s.message = render.StatusLoading, render.LoadingMessage
		s.sim, s.ctrl, s.colors = nil, nil, nil
	})
	if err != nil {
		return err
	}

	go s.fetch(gen, database, query, refresh)
	return nil
}

func (s *Session) fetch(gen uint64, database, query string, refresh bool) {
	model, err := s.mgr.Model(s.ctx, database, query, refresh)

	post := func() {
		if gen != s.generation {
			s.logger.Debug("Discarding stale result", zap.Uint64("generation", gen))
			return
		}
		s.install(model, err)
	}
	select {
	case s.cmds <- post:
	case <-s.ctx.Done():
	}
}

func (s *Session) install(model *graphmodel.Model, err error) {
	if err != nil {
		var nerr *graphmodel.NormalizationError
		if errors.As(err, &nerr) {
			s.status = render.StatusInvalid
			s.message = fmt.Sprintf("Unrecognized query result: %v.", nerr)
		} else {
			s.status = render.StatusFailed
			s.message = fmt.Sprintf("Error fetching data: %v.", err)
		}
		s.logger.Warn("Failed to load query",
			zap.String("database", s.database),
			zap.String("status", string(s.status)),
			zap.Error(err))
		return
	}

	opts := s.mgr.opts
	s.colors = palette.NewRegistry(opts.Palette, s.logger)
	s.sim = layout.New(model, opts.Layout)
	s.ctrl = interact.NewController(model, s.sim, s.colors, opts.Interact)
	s.status, s.message = render.StatusReady, ""
	if model.Empty() {
		s.status, s.message = render.StatusEmpty, render.EmptyMessage
	}

	s.logger.Info("Graph loaded",
		zap.String("database", s.database),
		zap.Int("nodes", model.Len()),
		zap.Int("edges", len(model.Edges)))
}

// Status returns the load state.
func (s *Session) Status(ctx context.Context) (render.Status, error) {
	var st render.Status
	err := s.do(ctx, func() { st = s.status })
	return st, err
}

// Frame returns a snapshot for painting.
func (s *Session) Frame(ctx context.Context) (render.Frame, error) {
	var f render.Frame
	err := s.do(ctx, func() {
		if s.sim == nil || s.status != render.StatusReady {
			opts := s.mgr.opts.Layout
			f = render.Placeholder(s.status, s.message, opts.Width, opts.Height)
		} else {
			f = render.Snapshot(s.sim, s.ctrl)
		}
		f.Query, f.Database = s.query, s.database
	})
	return f, err
}

// Inspector returns the detail payload for the current selection.
func (s *Session) Inspector(ctx context.Context) (interact.Inspector, error) {
	in := interact.Inspector{Kind: interact.HitNone}
	err := s.do(ctx, func() {
		if s.ctrl != nil {
			in = s.ctrl.Inspector()
		}
	})
	return in, err
}

// Settle ticks the layout on the loop until it settles or max ticks have
// run. It is used for headless rendering.
func (s *Session) Settle(ctx context.Context, limit int) error {
	return s.do(ctx, func() {
		for i := 0; i < limit && s.sim != nil && !s.sim.Settled(); i++ {
			s.tick()
		}
	})
}

// WaitLoaded blocks until the current load has finished, whatever its
// outcome.
func (s *Session) WaitLoaded(ctx context.Context, poll time.Duration) (render.Status, error) {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		st, err := s.Status(ctx)
		if err != nil || st != render.StatusLoading {
			return st, err
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}
