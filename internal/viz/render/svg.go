package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var svgTemplate = template.Must(
	template.New("frame.svg.tmpl").
		Funcs(template.FuncMap{"num": num}).
		ParseFS(templateFS, "templates/frame.svg.tmpl"),
)

// SVGOptions controls the look of rendered frames.
type SVGOptions struct {
	NodeRadius  float64
	EdgeWidth   float64
	EdgeStroke  string
	EdgeHover   string
	FontSize    float64
	LabelCells  int
	Background  string
	Border      string
	ErrorFill   string
	MessageFill string
}

// DefaultSVGOptions mirrors the interactive canvas.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{
		NodeRadius:  30,
		EdgeWidth:   5,
		EdgeStroke:  "black",
		EdgeHover:   "limegreen",
		FontSize:    12,
		LabelCells:  8,
		Background:  "#f0f8ff",
		Border:      "#add8e6",
		ErrorFill:   "red",
		MessageFill: "black",
	}
}

type svgNode struct {
	X, Y, R      float64
	Fill, Stroke string
	Label        string
	IDText       string
	Title        string
}

type svgEdge struct {
	X1, Y1, X2, Y2 float64
	Width          float64
	Stroke         string
	Title          string
}

type svgData struct {
	Width, Height float64
	Background    string
	Border        string
	MessageFill   string
	FontSize      float64
	Lines         []string
	Nodes         []svgNode
	Edges         []svgEdge
}

// SVG draws f. Placeholder frames draw only their message.
func SVG(w io.Writer, f Frame, opts SVGOptions) error {
	data := svgData{
		Width:       f.Width,
		Height:      f.Height,
		Background:  opts.Background,
		Border:      opts.Border,
		MessageFill: opts.MessageFill,
		FontSize:    opts.FontSize,
	}

	switch f.Status {
	case StatusReady:
		data.Nodes = make([]svgNode, len(f.Nodes))
		r := opts.NodeRadius * f.Viewport.K
		for i, n := range f.Nodes {
			data.Nodes[i] = svgNode{
				X:      n.X,
				Y:      n.Y,
				R:      r,
				Fill:   n.Fill,
				Stroke: n.Stroke,
				Label:  Truncate(n.Label, opts.LabelCells),
				IDText: Truncate("ID: "+n.ID, opts.LabelCells),
				Title:  n.ID,
			}
		}
		data.Edges = make([]svgEdge, len(f.Edges))
		for i, e := range f.Edges {
			stroke := opts.EdgeStroke
			if e.Selected {
				stroke = opts.EdgeHover
			}
			data.Edges[i] = svgEdge{
				X1: e.X1, Y1: e.Y1, X2: e.X2, Y2: e.Y2,
				Width:  opts.EdgeWidth * f.Viewport.K,
				Stroke: stroke,
				Title:  fmt.Sprintf("%s (%s -> %s)", e.Type, e.Source, e.Target),
			}
		}
	case StatusFailed:
		data.MessageFill = opts.ErrorFill
		data.Lines = []string{f.Message, FailedHint}
	default:
		msg := f.Message
		if msg == "" {
			msg = LoadingMessage
		}
		data.Lines = []string{msg}
	}

	if err := svgTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render svg: %w", err)
	}
	return nil
}

// Truncate shortens s to at most cells display columns, ending in "...".
func Truncate(s string, cells int) string {
	if cells <= 0 {
		return s
	}
	return runewidth.Truncate(s, cells, "...")
}

func num(f float64) string {
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
