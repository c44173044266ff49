package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// polygon adds closed polygon edges through pts, each line with its own copy
// of the endpoints, the way raw imports produce them.
func polygon(g *Geometry, pts ...[2]float64) {
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		g.AddLine(NewLine(NewNode(a[0], a[1]), NewNode(b[0], b[1])))
	}
}

func assertNoDanglingIDs(t *testing.T, g *Geometry) {
	t.Helper()
	ids := make(map[int]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}
	for _, l := range g.Lines {
		assert.True(t, ids[l.Start.ID], "line %d start %d dangling", l.ID, l.Start.ID)
		assert.True(t, ids[l.End.ID], "line %d end %d dangling", l.ID, l.End.ID)
	}
	for _, a := range g.Arcs {
		assert.True(t, ids[a.Start.ID], "arc %d start dangling", a.ID)
		assert.True(t, ids[a.Center.ID], "arc %d center dangling", a.ID)
		assert.True(t, ids[a.End.ID], "arc %d end dangling", a.ID)
	}
}

func assertMergeComplete(t *testing.T, g *Geometry, eps float64) {
	t.Helper()
	for i := range g.Nodes {
		for j := i + 1; j < len(g.Nodes); j++ {
			d := g.Nodes[i].DistanceTo(g.Nodes[j])
			assert.GreaterOrEqual(t, d, eps, "nodes %v and %v closer than eps", g.Nodes[i], g.Nodes[j])
		}
	}
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

func TestKindString(t *testing.T) {
	assert.Equal(t, "line", KindLine.String())
	assert.Equal(t, "arc", KindArc.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestNextIDUnique(t *testing.T) {
	a, b := NextID(), NextID()
	assert.NotEqual(t, a, b)
}

func TestLineOriented(t *testing.T) {
	s, e := NewNode(0, 0), NewNode(1, 0)
	l := Line{Start: s, End: e, ID: -7}
	assert.True(t, l.Reversed())
	first, second := l.Oriented()
	assert.Equal(t, e, first)
	assert.Equal(t, s, second)
}

func TestLineDistance(t *testing.T) {
	l := NewLine(NewNode(0, 0), NewNode(2, 0))
	assert.InDelta(t, 1.0, l.DistanceTo(1, 1), 1e-12)
	assert.InDelta(t, math.Sqrt2, l.DistanceTo(3, 1), 1e-12)
}

func TestArcGeometry(t *testing.T) {
	a := NewArc(NewNode(1, 0), NewNode(0, 0), NewNode(0, 1))
	assert.InDelta(t, 90.0, a.SweepDeg(), 1e-9)
	x, y := a.Apex()
	assert.InDelta(t, math.Sqrt2/2, x, 1e-12)
	assert.InDelta(t, math.Sqrt2/2, y, 1e-12)
	assert.True(t, a.OnSweep(1, 1, 0))
	assert.False(t, a.OnSweep(-1, -1, 0))
	assert.InDelta(t, 1.0, a.DistanceTo(2, 0.0001), 1e-3)
}

func TestArcSweepWrapsPastPi(t *testing.T) {
	// from (0,1) counter-clockwise to (0,-1) through (-1,0)
	a := NewArc(NewNode(0, 1), NewNode(0, 0), NewNode(0, -1))
	assert.InDelta(t, 180.0, a.SweepDeg(), 1e-9)
	x, _ := a.Apex()
	assert.InDelta(t, -1.0, x, 1e-12)
}

func TestBezierEndpoints(t *testing.T) {
	b := NewBezier(NewNode(0, 0), NewNode(0, 1), NewNode(1, 1), NewNode(1, 0))
	x, y := b.PointAt(0)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)
	x, y = b.PointAt(1)
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 0.0, y)
	x, y = b.PointAt(0.5)
	assert.InDelta(t, 0.5, x, 1e-12)
	assert.InDelta(t, 0.75, y, 1e-12)
}

// ---------------------------------------------------------------------------
// Container
// ---------------------------------------------------------------------------

func TestAddArcRejectsRadiusMismatch(t *testing.T) {
	g := New()
	err := g.AddArc(NewArc(NewNode(1, 0), NewNode(0, 0), NewNode(0, 2)))
	require.ErrorIs(t, err, ErrRadiusMismatch)
	assert.Empty(t, g.Arcs)
	assert.Empty(t, g.Nodes)

	err = g.AddArc(NewArc(NewNode(0, 0), NewNode(0, 0), NewNode(0, 0)))
	require.ErrorIs(t, err, ErrDegenerateArc)
}

func TestAddAppendsEndpoints(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(0, 0), NewNode(1, 0)))
	require.NoError(t, g.AddArc(NewArc(NewNode(1, 0), NewNode(0, 0), NewNode(0, 1))))
	g.AddCubicBezier(NewBezier(NewNode(0, 1), NewNode(0, 2), NewNode(1, 2), NewNode(1, 1)))
	assert.Len(t, g.Nodes, 2+3+4)
	assert.Len(t, g.Elements(), 3)
}

func TestTranslateAndRotate(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(1, 0), NewNode(2, 0)))
	g.Translate(1, 1)
	assert.Equal(t, 2.0, g.Lines[0].Start.X)
	assert.Equal(t, 1.0, g.Lines[0].Start.Y)

	g.RotateAbout(0, 0, 90)
	assert.InDelta(t, -1.0, g.Lines[0].Start.X, 1e-12)
	assert.InDelta(t, 2.0, g.Lines[0].Start.Y, 1e-12)
	assert.InDelta(t, -1.0, g.Nodes[0].X, 1e-12)
}

func TestCloneIsIndependent(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(0, 0), NewNode(1, 0)))
	c := g.Clone()
	c.Translate(5, 0)
	assert.Equal(t, 0.0, g.Lines[0].Start.X)
	assert.Equal(t, 5.0, c.Lines[0].Start.X)
}

func TestNearestEdge(t *testing.T) {
	g := New()
	bottom := NewLine(NewNode(0, 0), NewNode(1, 0))
	top := NewLine(NewNode(0, 1), NewNode(1, 1))
	g.AddLine(bottom)
	g.AddLine(top)
	arc := NewArc(NewNode(3, 0), NewNode(2, 0), NewNode(1, 0))
	require.NoError(t, g.AddArc(arc))

	e, d, ok := g.NearestEdge(0.5, 0.9)
	require.True(t, ok)
	assert.Equal(t, top.ID, e.ElementID())
	assert.InDelta(t, 0.1, d, 1e-12)

	e, _, ok = g.NearestEdge(2, 1.1)
	require.True(t, ok)
	assert.Equal(t, arc.ID, e.ElementID())

	_, _, ok = New().NearestEdge(0, 0)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// MergePoints
// ---------------------------------------------------------------------------

func TestMergePointsSquare(t *testing.T) {
	g := New()
	polygon(g, [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{1, 1}, [2]float64{0, 1})
	require.Len(t, g.Nodes, 8)

	removed, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Lines, 4)
	assertNoDanglingIDs(t, g)
	assertMergeComplete(t, g, DefaultEpsilon)
}

func TestMergePointsKeepsLowestIndex(t *testing.T) {
	g := New()
	a := Node{X: 0, Y: 0, ID: 100}
	b := Node{X: 5e-6, Y: 0, ID: 200}
	g.AddNode(a)
	g.AddNode(b)
	g.AddLine(Line{Start: b, End: Node{X: 1, Y: 0, ID: 300}, ID: 1})

	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	assert.Equal(t, 100, g.Lines[0].Start.ID)
	assert.Equal(t, 0.0, g.Lines[0].Start.X)
}

func TestMergePointsTransitive(t *testing.T) {
	// Chain with 0.6 eps spacing: every neighbour pair is within eps, the
	// ends are not, and the whole chain collapses.
	eps := 1e-3
	g := New()
	for i := 0; i < 5; i++ {
		g.AddNode(NewNode(float64(i)*0.6*eps, 0))
	}
	removed, err := g.MergePoints(eps)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, 0.0, g.Nodes[0].X)
}

func TestMergePointsIdempotent(t *testing.T) {
	g := New()
	polygon(g, [2]float64{0, 0}, [2]float64{2, 0}, [2]float64{2, 2}, [2]float64{0, 2})
	g.AddLine(NewLine(NewNode(1+3e-6, 0), NewNode(1, 2-4e-6)))

	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	first := append([]Node(nil), g.Nodes...)

	removed, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, first, g.Nodes)
}

func TestMergePointsDropsZeroLengthLines(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(0, 0), NewNode(1e-7, 0)))
	g.AddLine(NewLine(NewNode(0, 0), NewNode(1, 0)))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	assert.Len(t, g.Lines, 1)
}

func TestMergePointsRejectsBadEpsilon(t *testing.T) {
	_, err := New().MergePoints(0)
	assert.ErrorIs(t, err, ErrInvalidEpsilon)
}

// ---------------------------------------------------------------------------
// GenerateIntersections
// ---------------------------------------------------------------------------

func TestIntersectCrossingLines(t *testing.T) {
	g := New()
	h := NewLine(NewNode(-1, 0), NewNode(1, 0))
	v := Line{Start: NewNode(0, -1), End: NewNode(0, 1), ID: -NextID()}
	g.AddLine(h)
	g.AddLine(v)
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)

	cuts := g.GenerateIntersections()
	assert.Equal(t, 2, cuts)
	assert.Len(t, g.Lines, 4)
	assert.Len(t, g.Nodes, 5)
	assertNoDanglingIDs(t, g)

	// reversed winding survives the split
	negatives := 0
	for _, l := range g.Lines {
		if l.Reversed() {
			negatives++
		}
	}
	assert.Equal(t, 2, negatives)
}

func TestIntersectTJunction(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(0, 0), NewNode(2, 0)))
	g.AddLine(NewLine(NewNode(1, 0), NewNode(1, 1)))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	nodes := len(g.Nodes)

	assert.Equal(t, 1, g.GenerateIntersections())
	assert.Len(t, g.Lines, 3)
	// the stem's foot is reused, not duplicated
	assert.Len(t, g.Nodes, nodes)
}

func TestIntersectSharedEndpointIsNotCut(t *testing.T) {
	g := New()
	polygon(g, [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{1, 1})
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	assert.Zero(t, g.GenerateIntersections())
	assert.Len(t, g.Lines, 3)
}

func TestIntersectCollinearOverlap(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(0, 0), NewNode(2, 0)))
	g.AddLine(NewLine(NewNode(1, 0), NewNode(3, 0)))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)

	g.GenerateIntersections()
	// [0,1] [1,2] [2,3] with the shared middle kept once
	require.Len(t, g.Lines, 3)
	total := 0.0
	for _, l := range g.Lines {
		total += l.Length()
	}
	assert.InDelta(t, 3.0, total, 1e-9)

	// merging collinear chains leaves one segment spanning the union
	g.MergeLines()
	require.Len(t, g.Lines, 1)
	assert.InDelta(t, 3.0, g.Lines[0].Length(), 1e-9)
}

func TestIntersectCollinearContained(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(1, 0), NewNode(2, 0)))
	g.AddLine(NewLine(NewNode(0, 0), NewNode(3, 0)))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	g.GenerateIntersections()
	assert.Len(t, g.Lines, 3)
}

func TestIntersectLineArc(t *testing.T) {
	g := New()
	// upper half circle of radius 1, cut by the vertical x=0
	require.NoError(t, g.AddArc(NewArc(NewNode(1, 0), NewNode(0, 0), NewNode(-1, 0))))
	g.AddLine(NewLine(NewNode(0, -0.5), NewNode(0, 2)))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)

	assert.Equal(t, 2, g.GenerateIntersections())
	require.Len(t, g.Arcs, 2)
	require.Len(t, g.Lines, 2)
	for _, a := range g.Arcs {
		assert.InDelta(t, 90.0, a.SweepDeg(), 1e-6)
	}
	assertNoDanglingIDs(t, g)
}

func TestIntersectArcArc(t *testing.T) {
	g := New()
	// right half of the unit circle and left half of the unit circle at (1, 0)
	require.NoError(t, g.AddArc(NewArc(NewNode(0, -1), NewNode(0, 0), NewNode(0, 1))))
	require.NoError(t, g.AddArc(NewArc(NewNode(1, 1), NewNode(1, 0), NewNode(1, -1))))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)

	// they cross at (0.5, ±√3/2), cutting each arc twice
	assert.Equal(t, 4, g.GenerateIntersections())
	assert.Len(t, g.Arcs, 6)
	assertNoDanglingIDs(t, g)
}

func TestBeziersAreNotSplit(t *testing.T) {
	g := New()
	g.AddCubicBezier(NewBezier(NewNode(0, -1), NewNode(0, 0), NewNode(0, 0), NewNode(0, 1)))
	g.AddLine(NewLine(NewNode(-1, 0), NewNode(1, 0)))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	assert.Zero(t, g.GenerateIntersections())
	assert.Len(t, g.Beziers, 1)
}

// ---------------------------------------------------------------------------
// MergeLines
// ---------------------------------------------------------------------------

func TestMergeLinesCollinearChain(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(0, 0), NewNode(1, 0)))
	g.AddLine(NewLine(NewNode(1, 0), NewNode(2, 0)))
	g.AddLine(NewLine(NewNode(2, 0), NewNode(3, 0)))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)

	assert.Equal(t, 2, g.MergeLines())
	require.Len(t, g.Lines, 1)
	assert.Equal(t, 0.0, g.Lines[0].Start.X)
	assert.Equal(t, 3.0, g.Lines[0].End.X)
	assert.Len(t, g.Nodes, 2)
	assertNoDanglingIDs(t, g)
}

func TestMergeLinesKeepsCorners(t *testing.T) {
	g := New()
	polygon(g, [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{1, 1}, [2]float64{0, 1})
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	assert.Zero(t, g.MergeLines())
	assert.Len(t, g.Lines, 4)
}

func TestMergeLinesKeepsJunctions(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(0, 0), NewNode(1, 0)))
	g.AddLine(NewLine(NewNode(1, 0), NewNode(2, 0)))
	g.AddLine(NewLine(NewNode(1, 0), NewNode(1, 1)))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	assert.Zero(t, g.MergeLines())
	assert.Len(t, g.Lines, 3)
}

func TestMergeLinesRemovesDuplicates(t *testing.T) {
	g := New()
	g.AddLine(NewLine(NewNode(0, 0), NewNode(1, 0)))
	g.AddLine(NewLine(NewNode(1, 0), NewNode(0, 0)))
	_, err := g.MergePoints(DefaultEpsilon)
	require.NoError(t, err)
	assert.Equal(t, 1, g.MergeLines())
	assert.Len(t, g.Lines, 1)
}

// ---------------------------------------------------------------------------
// Consolidate
// ---------------------------------------------------------------------------

func TestConsolidateRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		pts   [][2]float64
		lines int
	}{
		{"square", [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}, 4},
		{"L-shape", [][2]float64{{0, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 2}, {0, 2}}, 6},
		// the midpoint on the bottom edge is an internally collinear vertex
		{"split bottom", [][2]float64{{0, 0}, {1, 0}, {2, 0}, {2, 1}, {0, 1}}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			polygon(g, tt.pts...)
			st, err := g.Consolidate()
			require.NoError(t, err)
			assert.Equal(t, tt.lines, len(g.Lines))
			assert.Equal(t, tt.lines, st.LinesAfter)
			assert.Len(t, g.Nodes, tt.lines)
			assertNoDanglingIDs(t, g)
			assertMergeComplete(t, g, g.Eps())
		})
	}
}

func TestConsolidateAdjacentSquares(t *testing.T) {
	g := New()
	polygon(g, [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{1, 1}, [2]float64{0, 1})
	polygon(g, [2]float64{1, 0}, [2]float64{2, 0}, [2]float64{2, 1}, [2]float64{1, 1})
	_, err := g.Consolidate()
	require.NoError(t, err)
	// the shared edge is kept once
	assert.Len(t, g.Lines, 7)
	assert.Len(t, g.Nodes, 6)
}
