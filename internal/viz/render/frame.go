// Package render turns the live layout into frames: plain snapshots of
// screen positions, styles and selection that can be encoded as JSON or
// drawn as SVG.
package render

import (
	"github.com/systemshift/cypherview/internal/viz/interact"
	"github.com/systemshift/cypherview/internal/viz/layout"
)

// Status is the state of the data behind a frame.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
	StatusInvalid Status = "invalid"
	StatusClosed  Status = "closed"
)

// Messages shown on the canvas instead of a graph.
const (
	LoadingMessage = "Loading data, please wait..."
	EmptyMessage   = "No data available."
	FailedHint     = "Please check your query or network connection."
)

// NodeView is one node as drawn.
type NodeView struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Fill   string  `json:"fill"`
	Stroke string  `json:"stroke"`
	Pinned bool    `json:"pinned,omitempty"`
}

// EdgeView is one edge as drawn, with both endpoints in screen space.
type EdgeView struct {
	Index    int     `json:"index"`
	Type     string  `json:"type"`
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	X1       float64 `json:"x1"`
	Y1       float64 `json:"y1"`
	X2       float64 `json:"x2"`
	Y2       float64 `json:"y2"`
	Selected bool    `json:"selected,omitempty"`
}

// Frame is everything the render surface needs for one paint.
type Frame struct {
	Status   Status            `json:"status"`
	Message  string            `json:"message,omitempty"`
	Query    string            `json:"query,omitempty"`
	Database string            `json:"database,omitempty"`
	Width    float64           `json:"width"`
	Height   float64           `json:"height"`
	Viewport interact.Viewport `json:"viewport"`

	Alpha   float64 `json:"alpha"`
	Settled bool    `json:"settled"`
	Ticks   uint64  `json:"ticks"`

	Nodes []NodeView `json:"nodes"`
	Edges []EdgeView `json:"edges"`

	SelectedNode string             `json:"selected_node,omitempty"`
	SelectedEdge *int               `json:"selected_edge,omitempty"`
	Inspector    interact.Inspector `json:"inspector"`
}

// Placeholder returns a frame with no graph, only a status message.
func Placeholder(status Status, message string, width, height float64) Frame {
	return Frame{
		Status:   status,
		Message:  message,
		Width:    width,
		Height:   height,
		Viewport: interact.Identity,
		Nodes:    []NodeView{},
		Edges:    []EdgeView{},
	}
}

// Snapshot copies the current simulation and interaction state into a frame.
// Edges that were dropped by the simulation are not drawn.
func Snapshot(sim *layout.Simulation, ctrl *interact.Controller) Frame {
	opts := sim.Options()
	model := sim.Model()
	vp := ctrl.Viewport()

	f := Frame{
		Status:    StatusReady,
		Width:     opts.Width,
		Height:    opts.Height,
		Viewport:  vp,
		Alpha:     sim.Alpha(),
		Settled:   sim.Settled(),
		Ticks:     sim.Ticks(),
		Nodes:     make([]NodeView, sim.Len()),
		Edges:     make([]EdgeView, 0, len(sim.Links())),
		Inspector: ctrl.Inspector(),
	}

	for i, n := range model.Nodes {
		b := sim.Body(i)
		x, y := vp.ToScreen(b.X, b.Y)
		st := ctrl.Style(i)
		f.Nodes[i] = NodeView{
			ID:     string(n.ID),
			Label:  n.Label(),
			X:      x,
			Y:      y,
			Fill:   st.Fill,
			Stroke: st.Stroke,
			Pinned: b.Fixed,
		}
	}

	selected, hasEdge := ctrl.SelectedEdge()
	for i, e := range model.Edges {
		si, okS := model.Index(e.Source)
		ti, okT := model.Index(e.Target)
		if !okS || !okT {
			continue
		}
		s, t := sim.Body(si), sim.Body(ti)
		x1, y1 := vp.ToScreen(s.X, s.Y)
		x2, y2 := vp.ToScreen(t.X, t.Y)
		f.Edges = append(f.Edges, EdgeView{
			Index:    i,
			Type:     e.Type,
			Source:   string(e.Source),
			Target:   string(e.Target),
			X1:       x1,
			Y1:       y1,
			X2:       x2,
			Y2:       y2,
			Selected: hasEdge && selected == i,
		})
	}

	if id, ok := ctrl.SelectedNode(); ok {
		f.SelectedNode = string(id)
	}
	if hasEdge {
		f.SelectedEdge = &selected
	}
	if len(f.Nodes) == 0 {
		f.Status = StatusEmpty
		f.Message = EmptyMessage
	}
	return f
}
