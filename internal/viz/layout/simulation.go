// Package layout runs the force-directed simulation that positions the
// nodes of a graphmodel.Model.
//
// A Simulation is advanced one Tick at a time by its owner. It is not safe
// for concurrent use; the session loop is the only caller.
package layout

import (
	"math"
	"math/rand/v2"

	"github.com/systemshift/cypherview/internal/viz/graphmodel"
)

// Body is the physical state of one node.
type Body struct {
	X, Y   float64
	VX, VY float64
	// FX, FY hold the pinned position while Fixed is set.
	FX, FY float64
	Fixed  bool
}

// Link is a resolved edge between two bodies.
type Link struct {
	Source int
	Target int
	Type   string
}

type spring struct {
	source, target int
	bias, strength float64
}

// Pinner is the narrow capability handed to interaction code. It can fix
// and release node positions and change the simulation's energy, but never
// touches velocities or integrated positions directly.
type Pinner interface {
	Pin(id graphmodel.NodeID, x, y float64) bool
	Unpin(id graphmodel.NodeID) bool
	Position(id graphmodel.NodeID) (x, y float64, ok bool)
	Reheat()
	Cool()
}

// Simulation integrates link, many-body and centering forces over the nodes
// of one model.
type Simulation struct {
	model *graphmodel.Model
	opts  Options

	bodies  []Body
	links   []Link
	springs []spring
	dropped []graphmodel.Edge

	alpha       float64
	alphaTarget float64
	active      bool
	ticks       uint64

	grid grid
	rng  *rand.Rand
}

var _ Pinner = (*Simulation)(nil)

// New prepares a simulation over model. Bodies start on a phyllotaxis
// spiral around the canvas center. Edges whose endpoints are not in the
// model are left out; Dropped reports them.
func New(model *graphmodel.Model, opts Options) *Simulation {
	opts = opts.withDefaults()
	s := &Simulation{
		model:  model,
		opts:   opts,
		bodies: make([]Body, model.Len()),
		alpha:  opts.Alpha,
		active: model.Len() > 0,
		rng:    rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5851f42d4c957f2d)),
	}

	cx, cy := opts.Width/2, opts.Height/2
	for i := range s.bodies {
		r := initialRadius * math.Sqrt(0.5+float64(i))
		a := float64(i) * initialAngle
		s.bodies[i].X = cx + r*math.Cos(a)
		s.bodies[i].Y = cy + r*math.Sin(a)
	}

	degree := make([]int, len(s.bodies))
	for _, e := range model.Edges {
		si, okS := model.Index(e.Source)
		ti, okT := model.Index(e.Target)
		if !okS || !okT {
			s.dropped = append(s.dropped, e)
			continue
		}
		s.links = append(s.links, Link{Source: si, Target: ti, Type: e.Type})
		if si != ti {
			degree[si]++
			degree[ti]++
		}
	}
	for _, l := range s.links {
		if l.Source == l.Target {
			continue
		}
		ds, dt := float64(degree[l.Source]), float64(degree[l.Target])
		s.springs = append(s.springs, spring{
			source:   l.Source,
			target:   l.Target,
			bias:     ds / (ds + dt),
			strength: 1 / math.Min(ds, dt),
		})
	}
	return s
}

// Model returns the graph being laid out.
func (s *Simulation) Model() *graphmodel.Model {
	return s.model
}

// Options returns the effective parameters.
func (s *Simulation) Options() Options {
	return s.opts
}

// Len returns the number of bodies.
func (s *Simulation) Len() int {
	return len(s.bodies)
}

// Body returns a copy of the state of body i.
func (s *Simulation) Body(i int) Body {
	return s.bodies[i]
}

// Links returns the resolved edges. The slice must not be modified.
func (s *Simulation) Links() []Link {
	return s.links
}

// Dropped returns the edges that referenced unknown nodes.
func (s *Simulation) Dropped() []graphmodel.Edge {
	return s.dropped
}

// Alpha returns the current energy level.
func (s *Simulation) Alpha() float64 {
	return s.alpha
}

// Ticks returns how many steps have been taken.
func (s *Simulation) Ticks() uint64 {
	return s.ticks
}

// Settled reports whether the simulation has cooled below AlphaMin and
// stopped. Reheat starts it again.
func (s *Simulation) Settled() bool {
	return !s.active
}

// KineticEnergy returns the sum of squared speeds of the free bodies.
func (s *Simulation) KineticEnergy() float64 {
	var e float64
	for i := range s.bodies {
		b := &s.bodies[i]
		if b.Fixed {
			continue
		}
		e += b.VX*b.VX + b.VY*b.VY
	}
	return e
}

// MaxSpeed returns the largest speed among free bodies.
func (s *Simulation) MaxSpeed() float64 {
	var m float64
	for i := range s.bodies {
		b := &s.bodies[i]
		if b.Fixed {
			continue
		}
		m = math.Max(m, math.Hypot(b.VX, b.VY))
	}
	return m
}

// Tick advances the simulation by one step. It does nothing for an empty
// model. Ticking a settled simulation still integrates, so callers that
// only want motion while active should check Settled first.
func (s *Simulation) Tick() {
	if len(s.bodies) == 0 {
		s.active = false
		return
	}

	s.alpha += (s.alphaTarget - s.alpha) * s.opts.AlphaDecay

	for k := 0; k < s.opts.LinkIterations; k++ {
		s.applyLinks()
	}
	s.applyCharge()
	s.applyCenter()
	s.integrate()

	s.ticks++
	if s.alpha < s.opts.AlphaMin {
		s.active = false
	}
}

// integrate moves free bodies by their damped velocity and clamps pinned
// bodies to their pin.
func (s *Simulation) integrate() {
	keep := 1 - s.opts.VelocityDecay
	for i := range s.bodies {
		b := &s.bodies[i]
		if b.Fixed {
			b.X, b.Y = b.FX, b.FY
			b.VX, b.VY = 0, 0
			continue
		}
		b.VX *= keep
		b.VY *= keep
		b.X += b.VX
		b.Y += b.VY
	}
}

// Pin fixes the node at (x, y) until Unpin.
func (s *Simulation) Pin(id graphmodel.NodeID, x, y float64) bool {
	i, ok := s.model.Index(id)
	if !ok {
		return false
	}
	b := &s.bodies[i]
	b.Fixed = true
	b.FX, b.FY = x, y
	b.X, b.Y = x, y
	b.VX, b.VY = 0, 0
	return true
}

// Unpin returns the node to free integration.
func (s *Simulation) Unpin(id graphmodel.NodeID) bool {
	i, ok := s.model.Index(id)
	if !ok {
		return false
	}
	b := &s.bodies[i]
	b.Fixed = false
	b.FX, b.FY = 0, 0
	return true
}

// Position returns the node's current position.
func (s *Simulation) Position(id graphmodel.NodeID) (float64, float64, bool) {
	i, ok := s.model.Index(id)
	if !ok {
		return 0, 0, false
	}
	return s.bodies[i].X, s.bodies[i].Y, true
}

// Reheat raises the alpha target so the layout keeps moving, and restarts
// a settled simulation.
func (s *Simulation) Reheat() {
	s.alphaTarget = s.opts.ReheatTarget
	s.active = len(s.bodies) > 0
}

// Cool drops the alpha target back to zero so the layout settles again.
func (s *Simulation) Cool() {
	s.alphaTarget = 0
}

// Restart resets alpha to its initial value.
func (s *Simulation) Restart() {
	s.alpha = s.opts.Alpha
	s.active = len(s.bodies) > 0
}

func (s *Simulation) jiggle() float64 {
	return (s.rng.Float64() - 0.5) * 1e-6
}
