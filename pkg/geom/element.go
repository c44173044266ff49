// Package geom defines the 2D primitives of a field model and the Geometry
// container that consolidates them into a clean planar graph.
package geom

import (
	"fmt"
	"math"
	"sync/atomic"

	v2 "github.com/deadsy/sdfx/vec/v2"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// DefaultEpsilon is the point-merge tolerance used when a Geometry does not
// set its own.
const DefaultEpsilon = 1e-5

// DefaultMaxSegDeg is the polygonal approximation step for arcs that do not
// specify one.
const DefaultMaxSegDeg = 5.0

// Kind identifies a primitive variant.
type Kind int

const (
	KindNode Kind = iota
	KindLine
	KindArc
	KindBezier
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindLine:
		return "line"
	case KindArc:
		return "arc"
	case KindBezier:
		return "bezier"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Element is the sealed sum type over Node, Line, CircleArc and CubicBezier.
// Consumers dispatch with a type switch; the unexported marker keeps the set
// closed to this package.
type Element interface {
	element()
	ElementID() int
	Kind() Kind
}

var idCounter atomic.Int64

// NextID returns a fresh process-wide primitive id.
func NextID() int {
	return int(idCounter.Add(1))
}

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// Node is a point of the model.
type Node struct {
	X, Y float64
	ID   int
}

// NewNode returns a node with a fresh id.
func NewNode(x, y float64) Node {
	return Node{X: x, Y: y, ID: NextID()}
}

func (Node) element()         {}
func (n Node) ElementID() int { return n.ID }
func (Node) Kind() Kind       { return KindNode }

// Vec returns the node position as an sdfx vector.
func (n Node) Vec() v2.Vec { return v2.Vec{X: n.X, Y: n.Y} }

// Coord returns the node position as a go-geom coordinate.
func (n Node) Coord() gogeom.Coord { return gogeom.Coord{n.X, n.Y} }

// DistanceTo returns the Euclidean distance between two nodes.
func (n Node) DistanceTo(o Node) float64 {
	return math.Hypot(n.X-o.X, n.Y-o.Y)
}

// RotateAbout rotates n counter-clockwise about c by deg degrees. The id is kept.
func (n Node) RotateAbout(c Node, deg float64) Node {
	s, co := math.Sincos(deg * math.Pi / 180)
	dx, dy := n.X-c.X, n.Y-c.Y
	return Node{X: c.X + dx*co - dy*s, Y: c.Y + dx*s + dy*co, ID: n.ID}
}

func (n Node) String() string {
	return fmt.Sprintf("Node(%g, %g, id=%d)", n.X, n.Y, n.ID)
}

func nodeAt(v v2.Vec, id int) Node { return Node{X: v.X, Y: v.Y, ID: id} }

// ---------------------------------------------------------------------------
// Line
// ---------------------------------------------------------------------------

// Line is a straight segment. A negative ID marks reversed winding for
// orientation-sensitive exporters.
type Line struct {
	Start, End Node
	ID         int
}

// NewLine returns a line with a fresh id.
func NewLine(start, end Node) Line {
	return Line{Start: start, End: end, ID: NextID()}
}

func (Line) element()         {}
func (l Line) ElementID() int { return l.ID }
func (Line) Kind() Kind       { return KindLine }

// Reversed reports whether the line carries reversed winding.
func (l Line) Reversed() bool { return l.ID < 0 }

// Oriented returns the endpoints in export order: swapped when Reversed.
func (l Line) Oriented() (Node, Node) {
	if l.Reversed() {
		return l.End, l.Start
	}
	return l.Start, l.End
}

// Length returns the segment length.
func (l Line) Length() float64 { return l.Start.DistanceTo(l.End) }

// Midpoint returns the segment midpoint.
func (l Line) Midpoint() (float64, float64) {
	return (l.Start.X + l.End.X) / 2, (l.Start.Y + l.End.Y) / 2
}

// DistanceTo returns the distance from (x, y) to the segment.
func (l Line) DistanceTo(x, y float64) float64 {
	if l.Length() == 0 {
		return math.Hypot(x-l.Start.X, y-l.Start.Y)
	}
	return xy.DistanceFromPointToLine(gogeom.Coord{x, y}, l.Start.Coord(), l.End.Coord())
}

func (l Line) String() string {
	return fmt.Sprintf("Line(%v -> %v, id=%d)", l.Start, l.End, l.ID)
}

// ---------------------------------------------------------------------------
// CircleArc
// ---------------------------------------------------------------------------

// CircleArc runs counter-clockwise from Start to End about Center.
// MaxSegDeg bounds the angle of each chord when the arc is approximated by a
// polyline.
type CircleArc struct {
	Start, Center, End Node
	ID                 int
	MaxSegDeg          float64
}

// NewArc returns an arc with a fresh id and the default segment angle.
func NewArc(start, center, end Node) CircleArc {
	return CircleArc{Start: start, Center: center, End: end, ID: NextID(), MaxSegDeg: DefaultMaxSegDeg}
}

func (CircleArc) element()         {}
func (a CircleArc) ElementID() int { return a.ID }
func (CircleArc) Kind() Kind       { return KindArc }

// Radius returns the start radius.
func (a CircleArc) Radius() float64 { return a.Start.DistanceTo(a.Center) }

// SegDeg returns MaxSegDeg or the default when unset.
func (a CircleArc) SegDeg() float64 {
	if a.MaxSegDeg <= 0 {
		return DefaultMaxSegDeg
	}
	return a.MaxSegDeg
}

func (a CircleArc) startAngle() float64 {
	return math.Atan2(a.Start.Y-a.Center.Y, a.Start.X-a.Center.X)
}

// Sweep returns the counter-clockwise angle from Start to End in radians,
// in (0, 2π]. Coincident endpoints denote a full circle.
func (a CircleArc) Sweep() float64 {
	end := math.Atan2(a.End.Y-a.Center.Y, a.End.X-a.Center.X)
	s := normAngle(end - a.startAngle())
	if s < 1e-12 {
		return 2 * math.Pi
	}
	return s
}

// SweepDeg returns Sweep in degrees.
func (a CircleArc) SweepDeg() float64 { return a.Sweep() * 180 / math.Pi }

// PointAt returns the point at angle offset theta (radians) from Start.
func (a CircleArc) PointAt(theta float64) (float64, float64) {
	r := a.Radius()
	phi := a.startAngle() + theta
	return a.Center.X + r*math.Cos(phi), a.Center.Y + r*math.Sin(phi)
}

// Apex returns the point halfway along the arc.
func (a CircleArc) Apex() (float64, float64) {
	return a.PointAt(a.Sweep() / 2)
}

// Offset returns the counter-clockwise angle of (x, y) from Start, in [0, 2π).
func (a CircleArc) Offset(x, y float64) float64 {
	return normAngle(math.Atan2(y-a.Center.Y, x-a.Center.X) - a.startAngle())
}

// OnSweep reports whether the direction of (x, y) seen from the center lies
// within the arc, allowing tol of arc length at either end.
func (a CircleArc) OnSweep(x, y, tol float64) bool {
	r := a.Radius()
	if r == 0 {
		return false
	}
	angTol := tol / r
	off := a.Offset(x, y)
	return off <= a.Sweep()+angTol || off >= 2*math.Pi-angTol
}

// DistanceTo returns the distance from (x, y) to the arc.
func (a CircleArc) DistanceTo(x, y float64) float64 {
	if a.OnSweep(x, y, 0) {
		return math.Abs(math.Hypot(x-a.Center.X, y-a.Center.Y) - a.Radius())
	}
	return math.Min(math.Hypot(x-a.Start.X, y-a.Start.Y), math.Hypot(x-a.End.X, y-a.End.Y))
}

func (a CircleArc) String() string {
	return fmt.Sprintf("CircleArc(%v -> %v about %v, id=%d)", a.Start, a.End, a.Center, a.ID)
}

func normAngle(t float64) float64 {
	t = math.Mod(t, 2*math.Pi)
	if t < 0 {
		t += 2 * math.Pi
	}
	return t
}

// ---------------------------------------------------------------------------
// CubicBezier
// ---------------------------------------------------------------------------

// CubicBezier is a cubic Bézier curve with two control points.
type CubicBezier struct {
	Start, Control1, Control2, End Node
	ID                             int
}

// NewBezier returns a curve with a fresh id.
func NewBezier(start, c1, c2, end Node) CubicBezier {
	return CubicBezier{Start: start, Control1: c1, Control2: c2, End: end, ID: NextID()}
}

func (CubicBezier) element()         {}
func (b CubicBezier) ElementID() int { return b.ID }
func (CubicBezier) Kind() Kind       { return KindBezier }

// PointAt evaluates the curve at t in [0, 1].
func (b CubicBezier) PointAt(t float64) (float64, float64) {
	u := 1 - t
	c0, c1, c2, c3 := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
	x := c0*b.Start.X + c1*b.Control1.X + c2*b.Control2.X + c3*b.End.X
	y := c0*b.Start.Y + c1*b.Control1.Y + c2*b.Control2.Y + c3*b.End.Y
	return x, y
}

// DistanceTo approximates the distance from (x, y) to the curve by sampling.
func (b CubicBezier) DistanceTo(x, y float64) float64 {
	const samples = 32
	best := math.Inf(1)
	px, py := b.PointAt(0)
	for i := 1; i <= samples; i++ {
		qx, qy := b.PointAt(float64(i) / samples)
		seg := Line{Start: Node{X: px, Y: py}, End: Node{X: qx, Y: qy}}
		best = math.Min(best, seg.DistanceTo(x, y))
		px, py = qx, qy
	}
	return best
}

func (b CubicBezier) String() string {
	return fmt.Sprintf("CubicBezier(%v, %v, %v, %v, id=%d)", b.Start, b.Control1, b.Control2, b.End, b.ID)
}

// Endpoints returns the start and end nodes of a curve element.
// Nodes return themselves twice.
func Endpoints(e Element) (Node, Node, error) {
	switch v := e.(type) {
	case Node:
		return v, v, nil
	case Line:
		return v.Start, v.End, nil
	case CircleArc:
		return v.Start, v.End, nil
	case CubicBezier:
		return v.Start, v.End, nil
	}
	return Node{}, Node{}, fmt.Errorf("geom: unknown element %T", e)
}
