package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/systemshift/cypherview/internal/viz/interact"
	"github.com/systemshift/cypherview/internal/viz/render"
)

var (
	brand  = color.New(color.FgHiCyan, color.Bold)
	subtle = color.New(color.FgHiBlack)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#add8e6")).
			Padding(0, 1)
)

// stdoutIsTerminal reports whether stdout is attached to a terminal.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// terminalWidth returns the usable width of stdout, or fallback.
func terminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}

// swatch draws a colored block for a node fill.
func swatch(fill string) string {
	return lipgloss.NewStyle().Background(lipgloss.Color(fill)).Render("  ")
}

// inspectorBox renders the inspector payload the way the side panel does.
func inspectorBox(in interact.Inspector, width int) string {
	title := "Details"
	switch in.Kind {
	case interact.HitNode:
		title = "Node"
	case interact.HitEdge:
		title = "Edge"
	}
	body := titleStyle.Render(title) + "\n" + in.String()
	if width > 4 {
		return boxStyle.Width(width - 4).Render(body)
	}
	return boxStyle.Render(body)
}

// nodeTable lists the nodes of a frame.
func nodeTable(f render.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s\n", subtle.Sprintf("%-3s %-12s %-16s %s", "", "ID", "LABEL", "POSITION"))
	for _, n := range f.Nodes {
		fmt.Fprintf(&b, "  %s  %-12s %-16s (%.0f, %.0f)\n",
			swatch(n.Fill), n.ID, render.Truncate(n.Label, 16), n.X, n.Y)
	}
	return b.String()
}

// statusLine prints a one-line summary of a frame to stderr.
func statusLine(f render.Frame) {
	switch f.Status {
	case render.StatusReady:
		fmt.Fprintf(os.Stderr, "%s %d nodes, %d edges, %d ticks\n",
			good.Sprint("ok"), len(f.Nodes), len(f.Edges), f.Ticks)
	case render.StatusFailed, render.StatusInvalid:
		fmt.Fprintf(os.Stderr, "%s %s\n", bad.Sprint("error"), f.Message)
	default:
		fmt.Fprintf(os.Stderr, "%s %s\n", subtle.Sprint(string(f.Status)), f.Message)
	}
}
