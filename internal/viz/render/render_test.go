package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/viz/graphmodel"
	"github.com/systemshift/cypherview/internal/viz/interact"
	"github.com/systemshift/cypherview/internal/viz/layout"
	"github.com/systemshift/cypherview/internal/viz/palette"
)

func newScene(t *testing.T) (*layout.Simulation, *interact.Controller) {
	t.Helper()
	m := graphmodel.New(
		[]*graphmodel.Node{
			{ID: "1", Labels: []string{"Movie"}},
			{ID: "2", Labels: []string{"Person<script>"}},
		},
		[]graphmodel.Edge{
			{Source: "2", Target: "1", Type: "ACTED_IN"},
			{Source: "2", Target: "404", Type: "GONE"},
		},
	)
	sim := layout.New(m, layout.DefaultOptions())
	colors := palette.NewRegistry(palette.Options{Size: 32, Seed: 9}, zap.NewNop())
	return sim, interact.NewController(m, sim, colors, interact.DefaultOptions())
}

func TestSnapshot(t *testing.T) {
	sim, ctrl := newScene(t)
	ctrl.Pan(5, 7)
	require.NoError(t, ctrl.SelectEdge(0))

	f := Snapshot(sim, ctrl)
	assert.Equal(t, StatusReady, f.Status)
	require.Len(t, f.Nodes, 2)
	require.Len(t, f.Edges, 1, "dangling edge is not drawn")

	b := sim.Body(0)
	assert.Equal(t, b.X+5, f.Nodes[0].X)
	assert.Equal(t, b.Y+7, f.Nodes[0].Y)
	assert.Equal(t, "Movie", f.Nodes[0].Label)

	e := f.Edges[0]
	assert.Equal(t, "ACTED_IN", e.Type)
	assert.Equal(t, f.Nodes[1].X, e.X1)
	assert.Equal(t, f.Nodes[0].X, e.X2)
	assert.True(t, e.Selected)
	require.NotNil(t, f.SelectedEdge)
	assert.Equal(t, 0, *f.SelectedEdge)
	assert.Equal(t, "Type: ACTED_IN\nSource: 2\nTarget: 1", f.Inspector.String())
}

func TestSnapshotEmptyModel(t *testing.T) {
	m := graphmodel.NewModel()
	sim := layout.New(m, layout.DefaultOptions())
	ctrl := interact.NewController(m, sim, palette.NewRegistry(palette.DefaultOptions(), zap.NewNop()), interact.DefaultOptions())

	f := Snapshot(sim, ctrl)
	assert.Equal(t, StatusEmpty, f.Status)
	assert.Equal(t, EmptyMessage, f.Message)
	assert.NotNil(t, f.Nodes)
}

func TestSVGGraph(t *testing.T) {
	sim, ctrl := newScene(t)
	var buf bytes.Buffer
	require.NoError(t, SVG(&buf, Snapshot(sim, ctrl), DefaultSVGOptions()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.Equal(t, 2, strings.Count(out, "<circle"))
	assert.Equal(t, 1, strings.Count(out, "<line"))
	assert.Contains(t, out, `r="30"`)
	assert.Contains(t, out, `stroke-width="5"`)
	assert.NotContains(t, out, "<script>", "labels are escaped")
}

func TestSVGMessages(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  []string
	}{
		{
			name:  "loading",
			frame: Placeholder(StatusLoading, "", 1050, 700),
			want:  []string{LoadingMessage, `fill="black"`},
		},
		{
			name:  "failed",
			frame: Placeholder(StatusFailed, "Error fetching data: boom.", 1050, 700),
			want:  []string{"Error fetching data: boom.", FailedHint, `fill="red"`},
		},
		{
			name:  "empty",
			frame: Placeholder(StatusEmpty, EmptyMessage, 1050, 700),
			want:  []string{EmptyMessage},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, SVG(&buf, tt.frame, DefaultSVGOptions()))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			assert.NotContains(t, buf.String(), "<circle")
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Person", Truncate("Person", 8))
	assert.Equal(t, "Organ...", Truncate("Organization", 8))
	assert.Equal(t, "日本...", Truncate("日本語のラベル", 8))
	assert.Equal(t, "anything", Truncate("anything", 0))
}

func TestNum(t *testing.T) {
	assert.Equal(t, "100", num(100))
	assert.Equal(t, "10.5", num(10.5))
	assert.Equal(t, "0.33", num(1.0/3))
}
