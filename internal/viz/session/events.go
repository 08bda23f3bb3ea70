package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/systemshift/cypherview/internal/viz/graphmodel"
	"github.com/systemshift/cypherview/internal/viz/interact"
)

// EventType names a pointer gesture.
type EventType string

const (
	EventPan       EventType = "pan"
	EventZoom      EventType = "zoom"
	EventDragStart EventType = "dragstart"
	EventDrag      EventType = "drag"
	EventDragEnd   EventType = "dragend"
	EventClick     EventType = "click"
	// EventSelect selects Node, or the edge at Edge when Node is empty.
	EventSelect EventType = "select"
)

// ErrNotReady is returned for gestures sent before a graph is loaded.
var ErrNotReady = errors.New("no graph loaded")

// Event is one gesture from the render surface. Coordinates are in screen
// space. DragStart takes Node when given, otherwise the node under (X, Y).
type Event struct {
	Type   EventType `json:"type"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	DX     float64   `json:"dx"`
	DY     float64   `json:"dy"`
	Factor float64   `json:"factor"`
	Node   string    `json:"node,omitempty"`
	Edge   *int      `json:"edge,omitempty"`
}

// EventError reports a gesture that could not be applied.
type EventError struct {
	Type EventType
	Err  error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// Apply runs ev against the controller on the loop.
func (s *Session) Apply(ctx context.Context, ev Event) (interact.Hit, error) {
	hit := interact.Hit{Kind: interact.HitNone, Edge: -1}
	var applyErr error

	err := s.do(ctx, func() {
		if s.ctrl == nil {
			applyErr = ErrNotReady
			return
		}
		c := s.ctrl
		switch ev.Type {
		case EventPan:
			c.Pan(ev.DX, ev.DY)
		case EventZoom:
			c.ZoomAt(ev.X, ev.Y, ev.Factor)
		case EventDragStart:
			id := graphmodel.NodeID(ev.Node)
			if id == "" {
				var ok bool
				if id, ok = c.NodeAt(ev.X, ev.Y); !ok {
					applyErr = interact.ErrUnknownNode
					return
				}
			}
			applyErr = c.DragStart(id)
			if applyErr == nil {
				hit = interact.Hit{Kind: interact.HitNode, Node: id, Edge: -1}
			}
		case EventDrag:
			applyErr = c.DragMove(ev.X, ev.Y)
		case EventDragEnd:
			applyErr = c.DragEnd()
		case EventClick:
			hit = c.Click(ev.X, ev.Y)
		case EventSelect:
			switch {
			case ev.Node != "":
				id := graphmodel.NodeID(ev.Node)
				if applyErr = c.SelectNode(id); applyErr == nil {
					hit = interact.Hit{Kind: interact.HitNode, Node: id, Edge: -1}
				}
			case ev.Edge != nil:
				if applyErr = c.SelectEdge(*ev.Edge); applyErr == nil {
					hit = interact.Hit{Kind: interact.HitEdge, Edge: *ev.Edge}
				}
			default:
				c.ClearSelection()
			}
		default:
			applyErr = fmt.Errorf("unknown event type %q", ev.Type)
		}
	})
	if err != nil {
		return hit, err
	}
	if applyErr != nil {
		return hit, &EventError{Type: ev.Type, Err: applyErr}
	}
	return hit, nil
}
