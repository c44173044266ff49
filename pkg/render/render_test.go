package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/graph"
	v2 "github.com/deadsy/sdfx/vec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoSquares(t *testing.T) *geom.Geometry {
	t.Helper()
	g := geom.New()
	for _, x0 := range []float64{0, 1} {
		pts := [][2]float64{{x0, 0}, {x0 + 1, 0}, {x0 + 1, 1}, {x0, 1}}
		for i := range pts {
			a, b := pts[i], pts[(i+1)%len(pts)]
			g.AddLine(geom.NewLine(geom.NewNode(a[0], a[1]), geom.NewNode(b[0], b[1])))
		}
	}
	_, err := g.Consolidate()
	require.NoError(t, err)
	return g
}

func TestSurface(t *testing.T) {
	g := twoSquares(t)
	bottom := g.Lines[0].ID
	surf, res, err := graph.Extract(g, []graph.Label{
		{Name: "air", Domain: 1, X: 0.5, Y: 0.5},
		{Name: "iron", Domain: 2, X: 1.5, Y: 0.5},
	}, graph.WithBoundaryMarkers(map[int]int{bottom: 1}))
	require.NoError(t, err)
	require.True(t, res.OK())

	var buf bytes.Buffer
	require.NoError(t, Surface(&buf, surf, []string{"ground"}, WithWidth(400), WithPoints()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "<?xml"))
	assert.Contains(t, out, "</svg>")
	assert.Equal(t, 2, strings.Count(out, "<polygon"))
	assert.Equal(t, len(surf.Edges), strings.Count(out, "<polyline"))
	assert.Equal(t, 1, strings.Count(out, "stroke:#d62728;stroke-width:3"))
	assert.Contains(t, out, "air [1]")
	assert.Contains(t, out, "iron [2]")
	assert.Contains(t, out, "1: ground")
	assert.Contains(t, out, palette[0])
	assert.Contains(t, out, palette[1])
}

func TestGeometry(t *testing.T) {
	g := geom.New()
	require.NoError(t, g.AddArc(geom.NewArc(geom.NewNode(1, 0), geom.NewNode(0, 0), geom.NewNode(0, 1))))
	g.AddLine(geom.NewLine(geom.NewNode(0, 1), geom.NewNode(1, 0)))

	var buf bytes.Buffer
	require.NoError(t, Geometry(&buf, g))
	assert.Equal(t, 2, strings.Count(buf.String(), "<polyline"))
	assert.NotContains(t, buf.String(), "<circle")
}

func TestEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Geometry(&buf, geom.New()), ErrEmpty)
	assert.ErrorIs(t, Surface(&buf, nil, nil), ErrEmpty)
	assert.Zero(t, buf.Len())
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteError(t *testing.T) {
	assert.EqualError(t, Geometry(failWriter{}, twoSquares(t)), "disk full")
}

func TestViewFlipsY(t *testing.T) {
	v := view{min: v2.Vec{X: 0, Y: 0}, max: v2.Vec{X: 2, Y: 1}, scale: 10, margin: 5}
	assert.Equal(t, 5.0, v.tx(0))
	assert.Equal(t, 25.0, v.tx(2))
	assert.Equal(t, 15.0, v.ty(0))
	assert.Equal(t, 5.0, v.ty(1))
	w, h := v.size()
	assert.Equal(t, 30.0, w)
	assert.Equal(t, 20.0, h)
}
