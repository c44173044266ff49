package graph

import (
	"errors"
	"testing"

	"github.com/chazu/adze/pkg/geom"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// square returns the consolidated unit square with corners at (x0, y0).
func addSquare(g *geom.Geometry, x0, y0, size float64) {
	pts := [][2]float64{{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}}
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		g.AddLine(geom.NewLine(geom.NewNode(a[0], a[1]), geom.NewNode(b[0], b[1])))
	}
}

func consolidated(t *testing.T, g *geom.Geometry) *geom.Geometry {
	t.Helper()
	if _, err := g.Consolidate(); err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	return g
}

func mustGraph(t *testing.T, g *geom.Geometry) *Graph {
	t.Helper()
	gr, err := FromGeometry(g)
	if err != nil {
		t.Fatalf("FromGeometry: %v", err)
	}
	return gr
}

// ---------------------------------------------------------------------------
// Arena
// ---------------------------------------------------------------------------

func TestFromGeometryArena(t *testing.T) {
	g := geom.New()
	addSquare(g, 0, 0, 1)
	gr := mustGraph(t, consolidated(t, g))

	if len(gr.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(gr.Points))
	}
	if len(gr.Edges) != 4 {
		t.Fatalf("expected 4 edges, got %d", len(gr.Edges))
	}
	for p := range gr.Points {
		if gr.Degree(p) != 2 {
			t.Errorf("point %d: expected degree 2, got %d", p, gr.Degree(p))
		}
		if len(gr.Neighbors(p)) != 2 {
			t.Errorf("point %d: expected 2 neighbours", p)
		}
	}
}

func TestFromGeometryDanglingNode(t *testing.T) {
	g := geom.New()
	g.Lines = append(g.Lines, geom.NewLine(geom.NewNode(0, 0), geom.NewNode(1, 0)))
	_, err := FromGeometry(g)
	if !errors.Is(err, ErrDanglingNode) {
		t.Fatalf("expected ErrDanglingNode, got %v", err)
	}
}

func TestFromGeometryParallelEdges(t *testing.T) {
	g := geom.New()
	// a full circle as two half arcs between the same pair of points
	if err := g.AddArc(geom.NewArc(geom.NewNode(1, 0), geom.NewNode(0, 0), geom.NewNode(-1, 0))); err != nil {
		t.Fatal(err)
	}
	if err := g.AddArc(geom.NewArc(geom.NewNode(-1, 0), geom.NewNode(0, 0), geom.NewNode(1, 0))); err != nil {
		t.Fatal(err)
	}
	gr := mustGraph(t, consolidated(t, g))
	if len(gr.Edges) != 2 {
		t.Fatalf("expected 2 parallel edges, got %d", len(gr.Edges))
	}
	cycles, err := gr.Cycles(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 1 || len(cycles[0].Nodes) != 2 {
		t.Fatalf("expected one two-point cycle, got %+v", cycles)
	}
}

// ---------------------------------------------------------------------------
// Cycle enumeration
// ---------------------------------------------------------------------------

func TestSquareCycleIsUnique(t *testing.T) {
	// Build the square with its edges listed from every start and in both
	// directions; exactly one cycle must come out each time.
	corners := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for start := 0; start < 4; start++ {
		for _, reverse := range []bool{false, true} {
			g := geom.New()
			for k := 0; k < 4; k++ {
				i := (start + k) % 4
				j := (i + 1) % 4
				if reverse {
					i, j = (start-k+8)%4, (start-k+7)%4
				}
				a, b := corners[i], corners[j]
				g.AddLine(geom.NewLine(geom.NewNode(a[0], a[1]), geom.NewNode(b[0], b[1])))
			}
			gr := mustGraph(t, consolidated(t, g))
			cycles, err := gr.Cycles(0)
			if err != nil {
				t.Fatal(err)
			}
			if len(cycles) != 1 {
				t.Fatalf("start %d reverse %v: expected 1 cycle, got %d", start, reverse, len(cycles))
			}
			c := cycles[0]
			if c.Len() != 4 {
				t.Errorf("expected 4 edges, got %d", c.Len())
			}
			if c.Nodes[0] != 0 {
				t.Errorf("cycle should start at the minimum point, got %v", c.Nodes)
			}
			if c.Nodes[1] < c.Nodes[3] {
				t.Errorf("cycle should head towards the larger neighbour, got %v", c.Nodes)
			}
		}
	}
}

func TestAdjacentSquaresCycles(t *testing.T) {
	g := geom.New()
	addSquare(g, 0, 0, 1)
	addSquare(g, 1, 0, 1)
	gr := mustGraph(t, consolidated(t, g))
	cycles, err := gr.Cycles(0)
	if err != nil {
		t.Fatal(err)
	}
	// left square, right square, outer rectangle
	if len(cycles) != 3 {
		t.Fatalf("expected 3 cycles, got %d", len(cycles))
	}
	lens := map[int]int{}
	for _, c := range cycles {
		lens[c.Len()]++
	}
	if lens[4] != 2 || lens[6] != 1 {
		t.Errorf("unexpected cycle sizes: %v", lens)
	}
}

func TestCyclesTreeHasNone(t *testing.T) {
	g := geom.New()
	g.AddLine(geom.NewLine(geom.NewNode(0, 0), geom.NewNode(1, 0)))
	g.AddLine(geom.NewLine(geom.NewNode(1, 0), geom.NewNode(1, 1)))
	gr := mustGraph(t, consolidated(t, g))
	cycles, err := gr.Cycles(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 0 {
		t.Errorf("expected no cycles, got %d", len(cycles))
	}
}

func TestCyclesLimit(t *testing.T) {
	g := geom.New()
	addSquare(g, 0, 0, 1)
	addSquare(g, 1, 0, 1)
	gr := mustGraph(t, consolidated(t, g))
	_, err := gr.Cycles(2)
	if !errors.Is(err, ErrTooManyCycles) {
		t.Fatalf("expected ErrTooManyCycles, got %v", err)
	}
}

func TestCanonicalReverse(t *testing.T) {
	c := Cycle{Nodes: []int{0, 1, 2, 3}, Edges: []int{10, 11, 12, 13}}.canonical()
	want := []int{0, 3, 2, 1}
	for i := range want {
		if c.Nodes[i] != want[i] {
			t.Fatalf("expected nodes %v, got %v", want, c.Nodes)
		}
	}
	// edges follow the reversed walk: 0-3 is edge 13, 3-2 is edge 12, ...
	wantEdges := []int{13, 12, 11, 10}
	for i := range wantEdges {
		if c.Edges[i] != wantEdges[i] {
			t.Fatalf("expected edges %v, got %v", wantEdges, c.Edges)
		}
	}
	if c.key() != "10,11,12,13" {
		t.Errorf("unexpected key %q", c.key())
	}
}
