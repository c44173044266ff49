package ngsolve

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/graph"
	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNGSolve(t *testing.T, mutate ...func(*platform.Metadata, *Options)) *NGSolve {
	t.Helper()
	meta := platform.NewMetadata(model.Electrostatic, "ngsolve_solver_script")
	opts := DefaultOptions()
	for _, m := range mutate {
		m(&meta, &opts)
	}
	n, err := New(meta, opts)
	require.NoError(t, err)
	return n
}

func render(t *testing.T, fn func(s *platform.Script) error) string {
	t.Helper()
	var buf bytes.Buffer
	s := platform.NewScript(&buf)
	require.NoError(t, fn(s))
	require.NoError(t, s.Flush())
	return buf.String()
}

func squareSurface(t *testing.T) (*graph.Surface, int) {
	t.Helper()
	g := geom.New()
	pts := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		g.AddLine(geom.NewLine(geom.NewNode(a[0], a[1]), geom.NewNode(b[0], b[1])))
	}
	_, err := g.Consolidate()
	require.NoError(t, err)
	bottom := g.Lines[0].ID
	surf, res, err := graph.Extract(g, []graph.Label{{Name: "fr4", Domain: 1, X: 0.5, Y: 0.5}},
		graph.WithBoundaryMarkers(map[int]int{bottom: 1}))
	require.NoError(t, err)
	require.True(t, res.OK())
	return surf, bottom
}

func TestNewValidates(t *testing.T) {
	n := newNGSolve(t)
	assert.Equal(t, "ngsolve_solver_script.py", n.Metadata().ScriptName)
	assert.Equal(t, "ngsolve", n.Name())

	_, err := New(platform.NewMetadata(model.Magnetic, "x"), DefaultOptions())
	assert.ErrorIs(t, err, platform.ErrFieldUnsupported)

	meta := platform.NewMetadata(model.Electrostatic, "x")
	meta.Coordinates = platform.Axisymmetric
	_, err = New(meta, DefaultOptions())
	assert.ErrorIs(t, err, platform.ErrFieldUnsupported)

	meta = platform.NewMetadata(model.Electrostatic, "x")
	meta.Analysis = "transient"
	_, err = New(meta, DefaultOptions())
	assert.ErrorIs(t, err, platform.ErrInvalidMetadata)

	opts := DefaultOptions()
	opts.Order = 0
	_, err = New(platform.NewMetadata(model.Electrostatic, "x"), opts)
	assert.ErrorIs(t, err, platform.ErrInvalidMetadata)
}

func TestMaterialAndBoundaryDicts(t *testing.T) {
	n := newNGSolve(t)
	m := model.NewMaterial("fr4")
	m.Epsilon = 4.5
	assert.Equal(t, "permittivity[\"fr4\"] = 4.5\n", render(t, func(s *platform.Script) error { return n.ExportMaterial(s, m) }))

	d, err := model.NewDirichlet("hot", model.Electrostatic, map[string]float64{"fixed_voltage": 10})
	require.NoError(t, err)
	assert.Equal(t, "dirichlet[\"hot\"] = 10\n", render(t, func(s *platform.Script) error { return n.ExportBoundary(s, d) }))

	q, err := model.NewNeumann("q", model.Electrostatic, map[string]float64{"surface_charge_density": 2})
	require.NoError(t, err)
	assert.Equal(t, "neumann[\"q\"] = 2\n", render(t, func(s *platform.Script) error { return n.ExportBoundary(s, q) }))

	var buf bytes.Buffer
	assert.ErrorIs(t, n.ExportBoundary(platform.NewScript(&buf), model.NewPeriodic("p", model.Electrostatic)), platform.ErrFieldUnsupported)
}

func TestGeometryElementNeedsSurface(t *testing.T) {
	n := newNGSolve(t)
	var buf bytes.Buffer
	s := platform.NewScript(&buf)
	assert.NoError(t, n.ExportGeometryElement(s, geom.NewNode(0, 0), ""))
	assert.ErrorIs(t, n.ExportGeometryElement(s, geom.NewLine(geom.NewNode(0, 0), geom.NewNode(1, 0)), ""), ErrSurfaceOnly)
}

func TestExportSurfaceSquare(t *testing.T) {
	n := newNGSolve(t)
	surf, _ := squareSurface(t)
	got := render(t, func(s *platform.Script) error { return n.ExportSurface(s, surf, []string{"gnd"}) })

	assert.Equal(t, 4, strings.Count(got, "geo.AppendPoint("))
	assert.Equal(t, 4, strings.Count(got, "geo.Append([\"line\""))
	assert.Equal(t, 1, strings.Count(got, `bc="gnd"`))
	assert.Contains(t, got, `geo.SetMaterial(1, "fr4")`)

	// the material is on the inside whichever way the square is walked
	r := surf.Regions[0]
	if r.Orientation == graph.CounterClockwise {
		assert.Equal(t, 4, strings.Count(got, "leftdomain=1, rightdomain=0"))
	} else {
		assert.Equal(t, 4, strings.Count(got, "leftdomain=0, rightdomain=1"))
	}
}

func TestExportSurfaceRejectsUnknownMarker(t *testing.T) {
	n := newNGSolve(t)
	surf, _ := squareSurface(t)
	err := n.ExportSurface(platform.NewScript(&bytes.Buffer{}), surf, nil)
	assert.ErrorContains(t, err, "boundary marker 1")
}

func TestExportSurfaceDisc(t *testing.T) {
	n := newNGSolve(t)
	g := geom.New()
	require.NoError(t, g.AddArc(geom.NewArc(geom.NewNode(1, 0), geom.NewNode(0, 0), geom.NewNode(-1, 0))))
	require.NoError(t, g.AddArc(geom.NewArc(geom.NewNode(-1, 0), geom.NewNode(0, 0), geom.NewNode(1, 0))))
	_, err := g.Consolidate()
	require.NoError(t, err)
	surf, _, err := graph.Extract(g, []graph.Label{{Name: "wire", Domain: 1, X: 0.1, Y: 0.1}})
	require.NoError(t, err)

	got := render(t, func(s *platform.Script) error { return n.ExportSurface(s, surf, nil) })
	// two half circles, two quarter pieces each
	assert.Equal(t, 4, strings.Count(got, `"spline3"`))
	assert.NotContains(t, got, "geo.AppendPoint(0, 0)", "arc center is not on the boundary")
}

func TestArcPieces(t *testing.T) {
	arc := geom.NewArc(geom.NewNode(1, 0), geom.NewNode(0, 0), geom.NewNode(-1, 0))
	ps := arcPieces(arc)
	require.Len(t, ps, 2)
	// quarter-circle control point sits at the corner of the bounding square
	assert.InDelta(t, 1, ps[0][0], 1e-9)
	assert.InDelta(t, 1, ps[0][1], 1e-9)
	assert.InDelta(t, 0, ps[0][2], 1e-9)
	assert.InDelta(t, 1, ps[0][3], 1e-9)
	assert.InDelta(t, -1, ps[1][2], 1e-9)

	rev := reversePieces(ps)
	assert.InDelta(t, -1, rev[0][0], 1e-9)
	assert.InDelta(t, 1, rev[0][1], 1e-9)
	assert.InDelta(t, 0, rev[0][2], 1e-9)
	assert.InDelta(t, 1, rev[0][3], 1e-9)

	small := geom.NewArc(geom.NewNode(1, 0), geom.NewNode(0, 0), geom.NewNode(math.Sqrt2/2, math.Sqrt2/2))
	assert.Len(t, arcPieces(small), 1)
}

func TestExportPost(t *testing.T) {
	n := newNGSolve(t)
	render(t, n.ExportPreamble)
	render(t, func(s *platform.Script) error { return n.ExportBlockLabel(s, 0.5, 0.5, model.NewMaterial("fr4")) })

	got := render(t, func(s *platform.Script) error { return n.ExportPost(s, model.NewPointValue("V", 0.5, 0.25)) })
	assert.Equal(t, "mip = mesh(0.5, 0.25)\nout.write(\"V, 0.5, 0.25, {}\\n\".format(gfu(mip)))\n", got)

	got = render(t, func(s *platform.Script) error {
		return n.ExportPost(s, model.NewIntegration("Energy", model.Coord{X: 0.5, Y: 0.5}))
	})
	assert.Contains(t, got, `definedon=mesh.Materials("fr4")`)

	got = render(t, func(s *platform.Script) error { return n.ExportPost(s, model.NewMeshInfo()) })
	assert.Contains(t, got, "mesh.nv")

	var buf bytes.Buffer
	assert.ErrorIs(t, n.ExportPost(platform.NewScript(&buf), model.NewPointValue("Bx", 0, 0)), platform.ErrFieldUnsupported)
	assert.ErrorContains(t, n.ExportPost(platform.NewScript(&buf), model.NewIntegration("Energy", model.Coord{X: 3, Y: 3})), "no block label")
}

func TestExportSolve(t *testing.T) {
	n := newNGSolve(t, func(_ *platform.Metadata, o *Options) { o.MaxH = 0.05; o.Order = 3 })
	got := render(t, n.ExportSolve)
	assert.Contains(t, got, "mesh = Mesh(geo.GenerateMesh(maxh=0.05))")
	assert.Contains(t, got, "fes = H1(mesh, order=3,")
	assert.Contains(t, got, `out = open("fem_data.csv", "w")`)
	assert.Equal(t, "out.close()\n", render(t, n.ExportClosing))
}
