package layout

import "math"

// grid buckets bodies into square cells at least as wide as the charge
// cut-off, so every interacting pair lies in the same or an adjacent cell.
// Its slices are reused across ticks and only grow.
type grid struct {
	minX, minY float64
	size       float64
	cols, rows int

	cellX, cellY []int
	start        []int
	cursor       []int
	order        []int
}

func (g *grid) build(bodies []Body, cell float64) {
	n := len(bodies)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := range bodies {
		minX = math.Min(minX, bodies[i].X)
		minY = math.Min(minY, bodies[i].Y)
		maxX = math.Max(maxX, bodies[i].X)
		maxY = math.Max(maxY, bodies[i].Y)
	}

	g.cellX = grow(g.cellX, n)
	g.cellY = grow(g.cellY, n)
	g.order = grow(g.order, n)

	w, h := maxX-minX, maxY-minY
	if !finite(w) || !finite(h) {
		// Degenerate coordinates: one cell, every pair compared.
		g.minX, g.minY, g.size, g.cols, g.rows = 0, 0, math.Inf(1), 1, 1
		g.start = grow(g.start, 2)
		g.start[0], g.start[1] = 0, n
		for i := 0; i < n; i++ {
			g.cellX[i], g.cellY[i] = 0, 0
			g.order[i] = i
		}
		return
	}

	// Coarsen when bodies are spread thin so the cell count stays
	// proportional to the body count.
	size := cell
	limit := float64(4*n + 16)
	for (math.Floor(w/size)+1)*(math.Floor(h/size)+1) > limit {
		size *= 2
	}

	g.minX, g.minY, g.size = minX, minY, size
	g.cols = int(w/size) + 1
	g.rows = int(h/size) + 1
	cells := g.cols * g.rows

	g.start = grow(g.start, cells+1)
	clear(g.start)
	for i := range bodies {
		cx := int((bodies[i].X - minX) / size)
		cy := int((bodies[i].Y - minY) / size)
		g.cellX[i], g.cellY[i] = cx, cy
		g.start[cy*g.cols+cx+1]++
	}
	for c := 1; c <= cells; c++ {
		g.start[c] += g.start[c-1]
	}

	g.cursor = grow(g.cursor, cells)
	copy(g.cursor, g.start[:cells])
	for i := 0; i < n; i++ {
		c := g.cellY[i]*g.cols + g.cellX[i]
		g.order[g.cursor[c]] = i
		g.cursor[c]++
	}
}

func (g *grid) cellOf(i int) (int, int) {
	return g.cellX[i], g.cellY[i]
}

// members returns the bodies in cell (cx, cy), or nil outside the grid.
func (g *grid) members(cx, cy int) []int {
	if cx < 0 || cy < 0 || cx >= g.cols || cy >= g.rows {
		return nil
	}
	c := cy*g.cols + cx
	return g.order[g.start[c]:g.start[c+1]]
}

func grow(s []int, n int) []int {
	if cap(s) < n {
		return make([]int, n)
	}
	return s[:n]
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
