package geom

import (
	"errors"
	"fmt"
	"math"
	"strings"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

var (
	// ErrRadiusMismatch is returned when an arc's start and end are not on
	// the same circle.
	ErrRadiusMismatch = errors.New("geom: arc start and end radius differ")
	// ErrDegenerateArc is returned for an arc whose start coincides with its center.
	ErrDegenerateArc = errors.New("geom: arc has zero radius")
	// ErrInvalidEpsilon is returned for a non-positive merge tolerance.
	ErrInvalidEpsilon = errors.New("geom: epsilon must be positive")
)

// Geometry owns the primitives of one model. Adding a primitive also appends
// its points to Nodes, so the same location may appear under several ids
// until MergePoints runs.
type Geometry struct {
	Nodes   []Node
	Lines   []Line
	Arcs    []CircleArc
	Beziers []CubicBezier

	// Epsilon is the point-merge tolerance. Zero means DefaultEpsilon.
	Epsilon float64
}

// New returns an empty Geometry with the default tolerance.
func New() *Geometry {
	return &Geometry{Epsilon: DefaultEpsilon}
}

// Eps returns the effective tolerance.
func (g *Geometry) Eps() float64 {
	if g.Epsilon <= 0 {
		return DefaultEpsilon
	}
	return g.Epsilon
}

// AddNode appends a standalone node.
func (g *Geometry) AddNode(n Node) {
	g.Nodes = append(g.Nodes, n)
}

// AddLine appends a segment and its endpoints.
func (g *Geometry) AddLine(l Line) {
	g.Nodes = append(g.Nodes, l.Start, l.End)
	g.Lines = append(g.Lines, l)
}

// AddArc appends an arc, its endpoints and its center. The start and end
// must lie on the same circle.
func (g *Geometry) AddArc(a CircleArc) error {
	rs := a.Start.DistanceTo(a.Center)
	re := a.End.DistanceTo(a.Center)
	if rs <= g.Eps() {
		return fmt.Errorf("arc %d: %w", a.ID, ErrDegenerateArc)
	}
	if math.Abs(rs-re) > math.Max(g.Eps(), 1e-9*rs) {
		return fmt.Errorf("arc %d: |start-center|=%g, |end-center|=%g: %w", a.ID, rs, re, ErrRadiusMismatch)
	}
	g.Nodes = append(g.Nodes, a.Start, a.Center, a.End)
	g.Arcs = append(g.Arcs, a)
	return nil
}

// AddCubicBezier appends a curve and its four points.
func (g *Geometry) AddCubicBezier(b CubicBezier) {
	g.Nodes = append(g.Nodes, b.Start, b.Control1, b.Control2, b.End)
	g.Beziers = append(g.Beziers, b)
}

// Add dispatches an element to the matching Add method.
func (g *Geometry) Add(e Element) error {
	switch v := e.(type) {
	case Node:
		g.AddNode(v)
	case Line:
		g.AddLine(v)
	case CircleArc:
		return g.AddArc(v)
	case CubicBezier:
		g.AddCubicBezier(v)
	default:
		return fmt.Errorf("geom: unknown element %T", e)
	}
	return nil
}

// Elements returns every curve primitive: lines, then arcs, then béziers.
func (g *Geometry) Elements() []Element {
	out := make([]Element, 0, len(g.Lines)+len(g.Arcs)+len(g.Beziers))
	for _, l := range g.Lines {
		out = append(out, l)
	}
	for _, a := range g.Arcs {
		out = append(out, a)
	}
	for _, b := range g.Beziers {
		out = append(out, b)
	}
	return out
}

// Clone returns a deep copy.
func (g *Geometry) Clone() *Geometry {
	return &Geometry{
		Nodes:   append([]Node(nil), g.Nodes...),
		Lines:   append([]Line(nil), g.Lines...),
		Arcs:    append([]CircleArc(nil), g.Arcs...),
		Beziers: append([]CubicBezier(nil), g.Beziers...),
		Epsilon: g.Epsilon,
	}
}

// MergeGeometry appends copies of every primitive in other.
func (g *Geometry) MergeGeometry(other *Geometry) {
	if other == nil {
		return
	}
	g.Nodes = append(g.Nodes, other.Nodes...)
	g.Lines = append(g.Lines, other.Lines...)
	g.Arcs = append(g.Arcs, other.Arcs...)
	g.Beziers = append(g.Beziers, other.Beziers...)
}

// mapNodes applies f to every node reference in the container.
func (g *Geometry) mapNodes(f func(Node) Node) {
	for i := range g.Nodes {
		g.Nodes[i] = f(g.Nodes[i])
	}
	for i := range g.Lines {
		l := &g.Lines[i]
		l.Start, l.End = f(l.Start), f(l.End)
	}
	for i := range g.Arcs {
		a := &g.Arcs[i]
		a.Start, a.Center, a.End = f(a.Start), f(a.Center), f(a.End)
	}
	for i := range g.Beziers {
		b := &g.Beziers[i]
		b.Start, b.Control1, b.Control2, b.End = f(b.Start), f(b.Control1), f(b.Control2), f(b.End)
	}
}

// Translate moves every node by (dx, dy).
func (g *Geometry) Translate(dx, dy float64) {
	g.mapNodes(func(n Node) Node {
		n.X += dx
		n.Y += dy
		return n
	})
}

// RotateAbout rotates every node counter-clockwise about (cx, cy) by deg degrees.
func (g *Geometry) RotateAbout(cx, cy, deg float64) {
	c := Node{X: cx, Y: cy}
	g.mapNodes(func(n Node) Node { return n.RotateAbout(c, deg) })
}

// Bounds returns the axis-aligned bounding box of all nodes.
func (g *Geometry) Bounds() (min, max v2.Vec) {
	if len(g.Nodes) == 0 {
		return v2.Vec{}, v2.Vec{}
	}
	min = g.Nodes[0].Vec()
	max = min
	for _, n := range g.Nodes[1:] {
		min.X = math.Min(min.X, n.X)
		min.Y = math.Min(min.Y, n.Y)
		max.X = math.Max(max.X, n.X)
		max.Y = math.Max(max.Y, n.Y)
	}
	return min, max
}

// NearestEdge returns the line or arc closest to (x, y) and its distance.
// ok is false when the container has neither.
func (g *Geometry) NearestEdge(x, y float64) (e Element, dist float64, ok bool) {
	dist = math.Inf(1)
	for _, l := range g.Lines {
		if d := l.DistanceTo(x, y); d < dist {
			e, dist, ok = l, d, true
		}
	}
	for _, a := range g.Arcs {
		if d := a.DistanceTo(x, y); d < dist {
			e, dist, ok = a, d, true
		}
	}
	return e, dist, ok
}

// Node returns the first node with the given id.
func (g *Geometry) Node(id int) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func (g *Geometry) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Geometry(eps=%g)\n", g.Eps())
	fmt.Fprintf(&sb, "  nodes: %d\n", len(g.Nodes))
	for _, n := range g.Nodes {
		fmt.Fprintf(&sb, "    %v\n", n)
	}
	fmt.Fprintf(&sb, "  lines: %d\n", len(g.Lines))
	for _, l := range g.Lines {
		fmt.Fprintf(&sb, "    %v\n", l)
	}
	fmt.Fprintf(&sb, "  arcs: %d\n", len(g.Arcs))
	for _, a := range g.Arcs {
		fmt.Fprintf(&sb, "    %v\n", a)
	}
	fmt.Fprintf(&sb, "  beziers: %d\n", len(g.Beziers))
	for _, b := range g.Beziers {
		fmt.Fprintf(&sb, "    %v\n", b)
	}
	return sb.String()
}
