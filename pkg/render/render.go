// Package render draws geometry and extracted surfaces as SVG for
// debugging. Regions are filled per domain, edges carrying a boundary
// condition are highlighted, and labels are annotated at their points.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"

	svg "github.com/ajstarks/svgo/float"
	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/graph"
	"github.com/chazu/adze/pkg/tessellate"
	v2 "github.com/deadsy/sdfx/vec/v2"
	"github.com/samber/lo"
)

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("render: nothing to draw")

var palette = []string{
	"#a6cee3", "#b2df8a", "#fb9a99", "#fdbf6f", "#cab2d6", "#ffff99", "#1f78b4", "#33a02c",
}

const (
	edgeStyle     = "fill:none;stroke:black;stroke-width:1.5"
	boundaryStyle = "fill:none;stroke:#d62728;stroke-width:3"
	danglingStyle = "fill:none;stroke:gray;stroke-width:1;stroke-dasharray:4,3"
	pointStyle    = "fill:black"
	textStyle     = "font-family:sans-serif;font-size:11px;fill:#333"
)

// Options controls the drawing.
type Options struct {
	Width    float64 // canvas width in pixels; height follows the aspect ratio
	Margin   float64
	Flatness float64 // Bézier flattening tolerance in model units
	Points   bool    // mark graph points
}

// Option configures a drawing.
type Option func(*Options)

// WithWidth sets the canvas width.
func WithWidth(w float64) Option { return func(o *Options) { o.Width = w } }

// WithFlatness sets the Bézier flattening tolerance.
func WithFlatness(f float64) Option { return func(o *Options) { o.Flatness = f } }

// WithPoints marks every graph point with a dot.
func WithPoints() Option { return func(o *Options) { o.Points = true } }

func defaults(opts []Option) Options {
	o := Options{Width: 800, Margin: 20, Flatness: tessellate.DefaultFlatness}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// ---------------------------------------------------------------------------
// Viewport
// ---------------------------------------------------------------------------

// view maps model coordinates (y up) to canvas coordinates (y down).
type view struct {
	min, max v2.Vec
	scale    float64
	margin   float64
}

func newView(polys [][]v2.Vec, o Options) (view, error) {
	all := lo.Flatten(polys)
	if len(all) == 0 {
		return view{}, ErrEmpty
	}
	v := view{min: all[0], max: all[0], margin: o.Margin}
	for _, p := range all[1:] {
		v.min = v2.Vec{X: math.Min(v.min.X, p.X), Y: math.Min(v.min.Y, p.Y)}
		v.max = v2.Vec{X: math.Max(v.max.X, p.X), Y: math.Max(v.max.Y, p.Y)}
	}
	extent := math.Max(v.max.X-v.min.X, v.max.Y-v.min.Y)
	v.scale = 1
	if extent > 0 {
		v.scale = (o.Width - 2*o.Margin) / extent
	}
	return v, nil
}

func (v view) tx(x float64) float64 { return v.margin + (x-v.min.X)*v.scale }
func (v view) ty(y float64) float64 { return v.margin + (v.max.Y-y)*v.scale }

func (v view) size() (w, h float64) {
	return (v.max.X-v.min.X)*v.scale + 2*v.margin, (v.max.Y-v.min.Y)*v.scale + 2*v.margin
}

func (v view) coords(pts []v2.Vec) (xs, ys []float64) {
	xs = make([]float64, len(pts))
	ys = make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = v.tx(p.X), v.ty(p.Y)
	}
	return xs, ys
}

// errWriter keeps the first write error; svgo does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return len(p), nil
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

// ---------------------------------------------------------------------------
// Drawing
// ---------------------------------------------------------------------------

// Geometry draws the primitives of g without region information.
func Geometry(w io.Writer, g *geom.Geometry, opts ...Option) error {
	o := defaults(opts)
	polys, err := tessellate.Geometry(g, o.Flatness)
	if err != nil {
		return err
	}
	strips := lo.Map(polys, func(p tessellate.Polyline, _ int) []v2.Vec { return p.Points })
	v, err := newView(strips, o)
	if err != nil {
		return err
	}

	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	width, height := v.size()
	canvas.Start(width, height)
	for _, s := range strips {
		xs, ys := v.coords(s)
		canvas.Polyline(xs, ys, edgeStyle)
	}
	if o.Points && g != nil {
		for _, n := range g.Nodes {
			canvas.Circle(v.tx(n.X), v.ty(n.Y), 2.5, pointStyle)
		}
	}
	canvas.End()
	return ew.err
}

// Surface draws an extracted surface: filled regions, edges colored by
// boundary marker, and one annotation per region label. boundaryNames[i]
// names marker i+1 in the legend.
func Surface(w io.Writer, surf *graph.Surface, boundaryNames []string, opts ...Option) error {
	o := defaults(opts)
	if surf == nil || surf.Graph == nil {
		return ErrEmpty
	}
	gr := surf.Graph

	strips := make([][]v2.Vec, len(gr.Edges))
	for i, e := range gr.Edges {
		pts, err := tessellate.Flatten(e.Element, o.Flatness)
		if err != nil {
			return fmt.Errorf("render: edge %d: %w", i, err)
		}
		strips[i] = pts
	}
	v, err := newView(strips, o)
	if err != nil {
		return err
	}

	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	width, height := v.size()
	canvas.Start(width, height)

	canvas.Gstyle("fill-opacity:0.6;stroke:none")
	for _, r := range surf.Regions {
		ring, err := gr.Ring(r.Cycle, o.Flatness)
		if err != nil {
			return fmt.Errorf("render: region %q: %w", r.Label.Name, err)
		}
		xs, ys := v.coords(ring)
		canvas.Polygon(xs, ys, "fill:"+domainColor(r.Label.Domain))
	}
	canvas.Gend()

	for i, s := range strips {
		xs, ys := v.coords(s)
		canvas.Polyline(xs, ys, edgeClass(surf, i))
	}

	if o.Points {
		for _, p := range gr.Points {
			canvas.Circle(v.tx(p.X), v.ty(p.Y), 2.5, pointStyle)
		}
	}

	for _, r := range surf.Regions {
		l := r.Label
		canvas.Circle(v.tx(l.X), v.ty(l.Y), 3, "fill:#333")
		canvas.Text(v.tx(l.X)+5, v.ty(l.Y)-5, fmt.Sprintf("%s [%d] %s", l.Name, l.Domain, r.Orientation), textStyle)
	}

	for i, name := range boundaryNames {
		canvas.Text(o.Margin/2, height-o.Margin/2-float64(len(boundaryNames)-1-i)*14,
			fmt.Sprintf("%d: %s", i+1, name), textStyle+";fill:#d62728")
	}

	canvas.End()
	return ew.err
}

func domainColor(d int) string {
	if d <= 0 {
		return "white"
	}
	return palette[(d-1)%len(palette)]
}

func edgeClass(surf *graph.Surface, i int) string {
	if i >= len(surf.Edges) {
		return edgeStyle
	}
	de := surf.Edges[i]
	switch {
	case de.Boundary > 0:
		return boundaryStyle
	case de.LeftDomain == 0 && de.RightDomain == 0:
		return danglingStyle
	default:
		return edgeStyle
	}
}
