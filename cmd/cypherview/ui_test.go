package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systemshift/cypherview/internal/viz/interact"
	"github.com/systemshift/cypherview/internal/viz/render"
)

func TestInspectorBox(t *testing.T) {
	in := interact.Inspector{Kind: interact.HitNode, Fields: []interact.Field{
		{Key: "ID", Value: "1"},
		{Key: "Label", Value: "Person"},
	}}
	box := inspectorBox(in, 60)
	assert.Contains(t, box, "Node")
	assert.Contains(t, box, "ID: 1")
	assert.Contains(t, box, "Label: Person")

	assert.Contains(t, inspectorBox(interact.Inspector{Kind: interact.HitNone}, 0), interact.EmptyInspector)
}

func TestNodeTable(t *testing.T) {
	f := render.Frame{Nodes: []render.NodeView{
		{ID: "1", Label: "Person", X: 10, Y: 20, Fill: "#4C8BF5"},
		{ID: "2", Label: "Movie", X: 30.4, Y: 40.6, Fill: "#CF9FFF"},
	}}
	table := nodeTable(f)
	assert.Contains(t, table, "Person")
	assert.Contains(t, table, "(10, 20)")
	assert.Contains(t, table, "(30, 41)")
}

func TestRootCommandTree(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"render", "inspect", "databases", "serve"} {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
