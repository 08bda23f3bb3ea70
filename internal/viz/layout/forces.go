package layout

import "math"

// applyLinks pulls each linked pair toward LinkDistance. The correction is
// split between the endpoints by degree so hubs move less.
func (s *Simulation) applyLinks() {
	for _, sp := range s.springs {
		src := &s.bodies[sp.source]
		dst := &s.bodies[sp.target]

		x := dst.X + dst.VX - src.X - src.VX
		if x == 0 {
			x = s.jiggle()
		}
		y := dst.Y + dst.VY - src.Y - src.VY
		if y == 0 {
			y = s.jiggle()
		}
		l := math.Sqrt(x*x + y*y)
		l = (l - s.opts.LinkDistance) / l * s.alpha * sp.strength
		x *= l
		y *= l

		dst.VX -= x * sp.bias
		dst.VY -= y * sp.bias
		src.VX += x * (1 - sp.bias)
		src.VY += y * (1 - sp.bias)
	}
}

// applyCharge applies the pairwise many-body force. With a distance cut-off
// only bodies in neighbouring grid cells are compared.
func (s *Simulation) applyCharge() {
	n := len(s.bodies)
	if n < 2 {
		return
	}

	maxD := s.opts.ChargeDistanceMax
	if maxD < 0 {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				s.chargePair(i, j, math.Inf(1))
			}
		}
		return
	}

	maxD2 := maxD * maxD
	s.grid.build(s.bodies, maxD)
	for i := 0; i < n; i++ {
		cx, cy := s.grid.cellOf(i)
		for gy := cy - 1; gy <= cy+1; gy++ {
			for gx := cx - 1; gx <= cx+1; gx++ {
				for _, j := range s.grid.members(gx, gy) {
					if j <= i {
						continue
					}
					s.chargePair(i, j, maxD2)
				}
			}
		}
	}
}

// chargePair applies the many-body impulse between bodies i and j, both
// ways. maxD2 is the squared cut-off.
func (s *Simulation) chargePair(i, j int, maxD2 float64) {
	a := &s.bodies[i]
	b := &s.bodies[j]

	x := b.X - a.X
	y := b.Y - a.Y
	l := x*x + y*y
	if l >= maxD2 {
		return
	}
	if x == 0 {
		x = s.jiggle()
		l += x * x
	}
	if y == 0 {
		y = s.jiggle()
		l += y * y
	}
	minD2 := s.opts.ChargeDistanceMin * s.opts.ChargeDistanceMin
	if l < minD2 {
		l = math.Sqrt(minD2 * l)
	}

	w := s.opts.ChargeStrength * s.alpha / l
	a.VX += x * w
	a.VY += y * w
	b.VX -= x * w
	b.VY -= y * w
}

// applyCenter translates every body so the centroid moves toward the
// canvas center.
func (s *Simulation) applyCenter() {
	n := len(s.bodies)
	if n == 0 {
		return
	}
	var sx, sy float64
	for i := range s.bodies {
		sx += s.bodies[i].X
		sy += s.bodies[i].Y
	}
	dx := (sx/float64(n) - s.opts.Width/2) * s.opts.CenterStrength
	dy := (sy/float64(n) - s.opts.Height/2) * s.opts.CenterStrength
	for i := range s.bodies {
		s.bodies[i].X -= dx
		s.bodies[i].Y -= dy
	}
}
