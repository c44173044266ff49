package importer

import (
	"fmt"
	"io"
	"math"

	"github.com/chazu/adze/pkg/geom"
	"github.com/yofu/dxf"
	"github.com/yofu/dxf/entity"
)

// ReadDXF imports LINE, ARC, CIRCLE and LWPOLYLINE entities. Circles become
// two half arcs; other entity types are skipped. Z is ignored.
func ReadDXF(r io.Reader) (*geom.Geometry, error) {
	d, err := dxf.FromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: dxf: %v", ErrMalformed, err)
	}

	g := geom.New()
	for _, e := range d.Entities() {
		switch v := e.(type) {
		case *entity.Line:
			if len(v.Start) < 2 || len(v.End) < 2 {
				return nil, fmt.Errorf("%w: dxf line without coordinates", ErrMalformed)
			}
			g.AddLine(geom.NewLine(geom.NewNode(v.Start[0], v.Start[1]), geom.NewNode(v.End[0], v.End[1])))

		case *entity.Arc:
			if len(v.Center) < 2 || len(v.Angle) < 2 {
				return nil, fmt.Errorf("%w: dxf arc without center or angles", ErrMalformed)
			}
			if err := addArcDeg(g, v.Center[0], v.Center[1], v.Radius, v.Angle[0], v.Angle[1]); err != nil {
				return nil, err
			}

		case *entity.Circle:
			if len(v.Center) < 2 {
				return nil, fmt.Errorf("%w: dxf circle without center", ErrMalformed)
			}
			for _, start := range []float64{0, 180} {
				if err := addArcDeg(g, v.Center[0], v.Center[1], v.Radius, start, start+180); err != nil {
					return nil, err
				}
			}

		case *entity.LwPolyline:
			pts := v.Vertices
			for i := 1; i < len(pts); i++ {
				g.AddLine(geom.NewLine(geom.NewNode(pts[i-1][0], pts[i-1][1]), geom.NewNode(pts[i][0], pts[i][1])))
			}
			if v.Closed && len(pts) > 2 {
				last := pts[len(pts)-1]
				g.AddLine(geom.NewLine(geom.NewNode(last[0], last[1]), geom.NewNode(pts[0][0], pts[0][1])))
			}
		}
	}
	return g, nil
}

// addArcDeg adds the counter-clockwise arc from start to end degrees.
func addArcDeg(g *geom.Geometry, cx, cy, r, start, end float64) error {
	if r <= 0 {
		return fmt.Errorf("%w: arc radius %g", ErrMalformed, r)
	}
	s, e := start*math.Pi/180, end*math.Pi/180
	arc := geom.NewArc(
		geom.NewNode(cx+r*math.Cos(s), cy+r*math.Sin(s)),
		geom.NewNode(cx, cy),
		geom.NewNode(cx+r*math.Cos(e), cy+r*math.Sin(e)),
	)
	if err := g.AddArc(arc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
