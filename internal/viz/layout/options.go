package layout

import "math"

// Options tunes the simulation. Zero fields take the defaults below.
type Options struct {
	// Width and Height are the canvas size; the centering force pulls the
	// system toward (Width/2, Height/2).
	Width  float64
	Height float64

	// LinkDistance is the rest length of every link spring.
	LinkDistance float64
	// LinkIterations repeats the link constraint per tick for stiffer graphs.
	LinkIterations int

	// ChargeStrength is the many-body strength; negative values repel.
	ChargeStrength float64
	// ChargeDistanceMin bounds the force for nearly coincident bodies.
	ChargeDistanceMin float64
	// ChargeDistanceMax is the cut-off beyond which bodies ignore each other.
	// A negative value removes the cut-off.
	ChargeDistanceMax float64

	// CenterStrength scales how far the centroid moves toward the canvas
	// center per tick; 1 recenters fully.
	CenterStrength float64

	// VelocityDecay is the fraction of velocity lost per tick.
	VelocityDecay float64

	Alpha      float64
	AlphaMin   float64
	AlphaDecay float64
	// ReheatTarget is the alpha target held while a node is dragged.
	ReheatTarget float64

	// Seed drives the jiggle used to separate coincident bodies.
	Seed uint64
}

// Defaults for a 1050x700 canvas.
const (
	DefaultWidth             = 1050
	DefaultHeight            = 700
	DefaultLinkDistance      = 100
	DefaultChargeStrength    = -100
	DefaultChargeDistanceMin = 1
	DefaultChargeDistanceMax = 200
	DefaultCenterStrength    = 1
	DefaultVelocityDecay     = 0.4
	DefaultAlphaMin          = 0.001
	DefaultReheatTarget      = 0.3

	initialRadius = 10
)

var initialAngle = math.Pi * (3 - math.Sqrt(5))

// DefaultOptions returns the stock layout parameters.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.LinkDistance <= 0 {
		o.LinkDistance = DefaultLinkDistance
	}
	if o.LinkIterations <= 0 {
		o.LinkIterations = 1
	}
	if o.ChargeStrength == 0 {
		o.ChargeStrength = DefaultChargeStrength
	}
	if o.ChargeDistanceMin <= 0 {
		o.ChargeDistanceMin = DefaultChargeDistanceMin
	}
	if o.ChargeDistanceMax == 0 {
		o.ChargeDistanceMax = DefaultChargeDistanceMax
	}
	if o.CenterStrength <= 0 {
		o.CenterStrength = DefaultCenterStrength
	}
	if o.VelocityDecay <= 0 || o.VelocityDecay >= 1 {
		o.VelocityDecay = DefaultVelocityDecay
	}
	if o.Alpha <= 0 {
		o.Alpha = 1
	}
	if o.AlphaMin <= 0 {
		o.AlphaMin = DefaultAlphaMin
	}
	if o.AlphaDecay <= 0 || o.AlphaDecay >= 1 {
		// Reach AlphaMin from 1 in about 300 ticks.
		o.AlphaDecay = 1 - math.Pow(o.AlphaMin, 1.0/300)
	}
	if o.ReheatTarget <= 0 {
		o.ReheatTarget = DefaultReheatTarget
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}
