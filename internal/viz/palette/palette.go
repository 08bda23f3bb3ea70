// Package palette assigns display colors to node labels.
//
// A Registry draws from a fixed, deduplicated palette of light colors whose
// order is shuffled once per registry. Labels take palette entries in the
// order they are first seen, so assignment never retries and never stalls;
// the palette size is the upper bound on distinct label colors.
package palette

import (
	"math/rand/v2"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
)

const (
	// FallbackColor is used for nodes that carry no label.
	FallbackColor = "#CF9FFF"
	// OverflowColor is used once every palette entry has been handed out.
	OverflowColor = "#D3D3D3"
	// HighlightColor fills the selected node. It is reserved in every
	// registry so no label can be assigned it.
	HighlightColor = "#4C8BF5"

	DefaultSize       = 360
	DefaultSaturation = 0.7
	DefaultLightness  = 0.8
)

// Options controls palette generation.
type Options struct {
	// Size is the number of distinct hues in the palette.
	Size       int
	Saturation float64
	Lightness  float64
	// Seed fixes the palette order. Zero picks a random order.
	Seed uint64
}

// DefaultOptions returns light pastel colors over 360 hues.
func DefaultOptions() Options {
	return Options{
		Size:       DefaultSize,
		Saturation: DefaultSaturation,
		Lightness:  DefaultLightness,
	}
}

// Registry maps labels to colors for one rendering session. Entries are
// never removed. A Registry is not safe for concurrent use; it belongs to
// the session loop.
type Registry struct {
	palette []string
	next    int

	labelToColor map[string]string
	used         map[string]struct{}

	logger        *zap.Logger
	warnedExhaust bool
}

// NewRegistry builds a registry with a freshly shuffled palette.
func NewRegistry(opts Options, logger *zap.Logger) *Registry {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Saturation <= 0 {
		opts.Saturation = DefaultSaturation
	}
	if opts.Lightness <= 0 {
		opts.Lightness = DefaultLightness
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		palette:      generate(opts),
		labelToColor: make(map[string]string),
		used:         make(map[string]struct{}),
		logger:       logger,
	}
	r.Reserve(HighlightColor)
	r.Reserve(FallbackColor)
	r.Reserve(OverflowColor)
	return r
}

// generate returns Size distinct hex colors evenly spread over the hue
// circle, in shuffled order.
func generate(opts Options) []string {
	seen := make(map[string]struct{}, opts.Size)
	colors := make([]string, 0, opts.Size)
	step := 360.0 / float64(opts.Size)
	for i := 0; i < opts.Size; i++ {
		hex := strings.ToUpper(colorful.Hsl(float64(i)*step, opts.Saturation, opts.Lightness).Hex())
		if _, dup := seen[hex]; dup {
			continue
		}
		seen[hex] = struct{}{}
		colors = append(colors, hex)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(colors), func(i, j int) { colors[i], colors[j] = colors[j], colors[i] })
	return colors
}

// ColorFor returns the color of label, assigning one on first use.
func (r *Registry) ColorFor(label string) string {
	if label == "" {
		return FallbackColor
	}
	if c, ok := r.labelToColor[label]; ok {
		return c
	}

	for r.next < len(r.palette) {
		c := r.palette[r.next]
		r.next++
		if _, taken := r.used[c]; taken {
			continue
		}
		r.used[c] = struct{}{}
		r.labelToColor[label] = c
		return c
	}

	if !r.warnedExhaust {
		r.warnedExhaust = true
		r.logger.Warn("label palette exhausted, using overflow color",
			zap.Int("palette_size", len(r.palette)),
			zap.Int("labels", len(r.labelToColor)),
		)
	}
	r.labelToColor[label] = OverflowColor
	return OverflowColor
}

// Reserve marks color as used so it is never assigned to a label.
func (r *Registry) Reserve(color string) {
	r.used[strings.ToUpper(color)] = struct{}{}
}

// Used reports whether color is taken.
func (r *Registry) Used(color string) bool {
	_, ok := r.used[strings.ToUpper(color)]
	return ok
}

// Exhausted reports whether every palette entry has been handed out.
func (r *Registry) Exhausted() bool {
	for i := r.next; i < len(r.palette); i++ {
		if _, taken := r.used[r.palette[i]]; !taken {
			return false
		}
	}
	return true
}

// Labels returns the number of labels with an assigned color.
func (r *Registry) Labels() int {
	return len(r.labelToColor)
}
