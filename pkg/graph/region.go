package graph

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/logging"
	"github.com/chazu/adze/pkg/tessellate"
	v2 "github.com/deadsy/sdfx/vec/v2"
	"github.com/samber/lo"
	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// ErrAmbiguousRegion is returned in strict mode when a region encloses more
// than one label.
var ErrAmbiguousRegion = errors.New("graph: region encloses more than one label")

// Label asserts that the point (X, Y) lies inside material Name, whose
// domain index is Domain (1-based; 0 means background).
type Label struct {
	Name   string
	Domain int
	X, Y   float64
}

// Orientation is the winding of a region boundary.
type Orientation int

const (
	Clockwise Orientation = iota
	CounterClockwise
)

func (o Orientation) String() string {
	switch o {
	case Clockwise:
		return "cw"
	case CounterClockwise:
		return "ccw"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// Region is a cycle that owns exactly one label.
type Region struct {
	Cycle       Cycle
	Label       Label
	Area        float64 // signed shoelace area in cycle order
	Orientation Orientation
}

// DirectedEdge is one graph edge with the domains on either side of its
// From -> To direction and its boundary marker (0 = none).
type DirectedEdge struct {
	From, To    int
	Edge        int
	ElementID   int
	Kind        geom.Kind
	LeftDomain  int
	RightDomain int
	Boundary    int
}

// Surface is the merged result of region extraction. Edges[i] describes
// Graph.Edges[i]; edges no region touches keep the primitive's direction and
// zero domains.
type Surface struct {
	Graph   *Graph
	Edges   []DirectedEdge
	Regions []Region
}

// Option configures Extract.
type Option func(*extractConfig)

type extractConfig struct {
	maxCycles  int
	strict     bool
	boundaries map[int]int
	flatness   float64
}

// WithMaxCycles overrides DefaultMaxCycles.
func WithMaxCycles(n int) Option {
	return func(c *extractConfig) { c.maxCycles = n }
}

// WithStrictLabels makes a region enclosing several labels an error.
func WithStrictLabels() Option {
	return func(c *extractConfig) { c.strict = true }
}

// WithBoundaryMarkers tags edges with boundary markers keyed by primitive id.
func WithBoundaryMarkers(m map[int]int) Option {
	return func(c *extractConfig) { c.boundaries = m }
}

// WithFlatness sets the Bézier flattening tolerance for ring construction.
func WithFlatness(f float64) Option {
	return func(c *extractConfig) { c.flatness = f }
}

// Ring returns the closed polygon of c, walking each edge in cycle order.
// The first point is not repeated at the end.
func (g *Graph) Ring(c Cycle, flatness float64) ([]v2.Vec, error) {
	var ring []v2.Vec
	for i, ei := range c.Edges {
		e := g.Edges[ei]
		pts, err := tessellate.Flatten(e.Element, flatness)
		if err != nil {
			return nil, err
		}
		if e.U != c.Nodes[i] {
			pts = tessellate.Reverse(pts)
		}
		ring = append(ring, pts[:len(pts)-1]...)
	}
	return ring, nil
}

// encloses reports whether (x, y) lies strictly inside ring.
func encloses(ring []v2.Vec, x, y float64) bool {
	flat := make([]float64, 0, 2*len(ring)+2)
	for _, p := range ring {
		flat = append(flat, p.X, p.Y)
	}
	flat = append(flat, ring[0].X, ring[0].Y)
	return xy.LocatePointInRing(gogeom.XY, gogeom.Coord{x, y}, flat) == location.Interior
}

// Extract recovers material regions from a consolidated geometry.
//
// Each label is attributed to the innermost cycle enclosing it (smallest
// absolute area). Cycles owning no label are background and are dropped
// silently; cycles owning several labels are reported as warnings (errors
// with WithStrictLabels) and dropped. Every remaining region tags its
// material on the left of each edge when counter-clockwise, on the right
// when clockwise. Merging fills only unset sides; a side already set to a
// different domain is recorded as an error and keeps its first value.
func Extract(geo *geom.Geometry, labels []Label, opts ...Option) (*Surface, ValidationResult, error) {
	cfg := extractConfig{flatness: tessellate.DefaultFlatness}
	for _, o := range opts {
		o(&cfg)
	}
	log := logging.Logger()
	var result ValidationResult

	g, err := FromGeometry(geo)
	if err != nil {
		return nil, result, fmt.Errorf("extract: %w", err)
	}
	cycles, err := g.Cycles(cfg.maxCycles)
	if err != nil {
		return nil, result, fmt.Errorf("extract: %w", err)
	}

	rings := make([][]v2.Vec, len(cycles))
	areas := make([]float64, len(cycles))
	for i, c := range cycles {
		ring, err := g.Ring(c, cfg.flatness)
		if err != nil {
			return nil, result, fmt.Errorf("extract: cycle %d: %w", i, err)
		}
		rings[i] = ring
		areas[i] = tessellate.SignedArea(ring)
	}

	// Attribute labels to their innermost enclosing cycle.
	owned := make([][]Label, len(cycles))
	for _, l := range labels {
		best := -1
		for i, ring := range rings {
			if !encloses(ring, l.X, l.Y) {
				continue
			}
			if best < 0 || math.Abs(areas[i]) < math.Abs(areas[best]) {
				best = i
			}
		}
		if best < 0 {
			result.add(ValidationError{
				Message:  fmt.Sprintf("label %q at (%g, %g) is not enclosed by any closed region", l.Name, l.X, l.Y),
				Severity: SeverityWarning,
			})
			continue
		}
		owned[best] = append(owned[best], l)
	}

	s := &Surface{Graph: g, Edges: make([]DirectedEdge, len(g.Edges))}
	for i, e := range g.Edges {
		s.Edges[i] = DirectedEdge{
			From:      e.U,
			To:        e.V,
			Edge:      i,
			ElementID: e.Element.ElementID(),
			Kind:      e.Element.Kind(),
			Boundary:  cfg.boundaries[e.Element.ElementID()],
		}
	}

	for i, c := range cycles {
		switch len(owned[i]) {
		case 0:
			log.Debug("dropping background cycle", "nodes", c.Nodes)
			continue
		case 1:
		default:
			names := strings.Join(lo.Map(owned[i], func(l Label, _ int) string { return l.Name }), ", ")
			msg := fmt.Sprintf("region through points %v encloses %d labels: %s", c.Nodes, len(owned[i]), names)
			if cfg.strict {
				result.add(ValidationError{Message: msg, Severity: SeverityError})
				return nil, result, fmt.Errorf("extract: %s: %w", msg, ErrAmbiguousRegion)
			}
			log.Warn("ambiguous region", "nodes", c.Nodes, "labels", names)
			result.add(ValidationError{Message: msg, Severity: SeverityWarning})
			continue
		}

		r := Region{Cycle: c, Label: owned[i][0], Area: areas[i], Orientation: Clockwise}
		if areas[i] > 0 {
			r.Orientation = CounterClockwise
		}
		s.Regions = append(s.Regions, r)
	}

	oriented := make([]bool, len(g.Edges))
	for _, r := range s.Regions {
		n := len(r.Cycle.Nodes)
		for i, ei := range r.Cycle.Edges {
			from, to := r.Cycle.Nodes[i], r.Cycle.Nodes[(i+1)%n]
			left, right := 0, 0
			if r.Orientation == CounterClockwise {
				left = r.Label.Domain
			} else {
				right = r.Label.Domain
			}

			de := &s.Edges[ei]
			if !oriented[ei] {
				oriented[ei] = true
				de.From, de.To = from, to
			} else if de.From != from {
				left, right = right, left
			}
			result.add(fillDomain(de, &de.LeftDomain, left, "left")...)
			result.add(fillDomain(de, &de.RightDomain, right, "right")...)
		}
	}

	log.Debug("extracted regions", "cycles", len(cycles), "regions", len(s.Regions), "edges", len(s.Edges))
	return s, result, nil
}

// fillDomain sets an unset side. A set side with a different value is a
// conflict: the first value is kept and an error returned.
func fillDomain(de *DirectedEdge, slot *int, v int, side string) []ValidationError {
	if v == 0 || *slot == v {
		return nil
	}
	if *slot == 0 {
		*slot = v
		return nil
	}
	return []ValidationError{{
		ElementID: de.ElementID,
		Message:   fmt.Sprintf("domain conflict on %s side: have %d, region claims %d", side, *slot, v),
		Severity:  SeverityError,
	}}
}

// Region returns the region labelled name, if any.
func (s *Surface) Region(name string) (Region, bool) {
	return lo.Find(s.Regions, func(r Region) bool { return r.Label.Name == name })
}

// Point returns the coordinates of point index p.
func (s *Surface) Point(p int) geom.Node {
	return s.Graph.Points[p]
}
