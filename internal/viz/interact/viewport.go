package interact

import "math"

// Viewport is the pan/zoom transform from simulation space to screen
// space: screen = sim*K + (X, Y).
type Viewport struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

// Identity is the untransformed viewport.
var Identity = Viewport{K: 1}

// ToScreen maps a simulation-space point to the screen.
func (v Viewport) ToScreen(x, y float64) (float64, float64) {
	return x*v.K + v.X, y*v.K + v.Y
}

// ToSim maps a screen point back to simulation space.
func (v Viewport) ToSim(px, py float64) (float64, float64) {
	return (px - v.X) / v.K, (py - v.Y) / v.K
}

// Pan shifts the view by a screen-space delta.
func (v Viewport) Pan(dx, dy float64) Viewport {
	v.X += dx
	v.Y += dy
	return v
}

// ZoomAt scales by factor around the screen point (px, py), keeping that
// point fixed, with the scale clamped to [lo, hi].
func (v Viewport) ZoomAt(px, py, factor, lo, hi float64) Viewport {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return v
	}
	k := clamp(v.K*factor, lo, hi)
	sx, sy := v.ToSim(px, py)
	return Viewport{X: px - sx*k, Y: py - sy*k, K: k}
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}
