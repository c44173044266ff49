package importer

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/chazu/adze/pkg/geom"
)

// ============================================================
// XML structures
// ============================================================

type svgGroup struct {
	Rects     []svgRect     `xml:"rect"`
	Lines     []svgLine     `xml:"line"`
	Paths     []svgPath     `xml:"path"`
	Polylines []svgPolyline `xml:"polyline"`
	Polygons  []svgPolyline `xml:"polygon"`
	Groups    []svgGroup    `xml:"g"`
}

type svgDoc struct {
	XMLName xml.Name `xml:"svg"`
	svgGroup
}

type svgRect struct {
	X      float64 `xml:"x,attr"`
	Y      float64 `xml:"y,attr"`
	Width  float64 `xml:"width,attr"`
	Height float64 `xml:"height,attr"`
}

type svgLine struct {
	X1 float64 `xml:"x1,attr"`
	Y1 float64 `xml:"y1,attr"`
	X2 float64 `xml:"x2,attr"`
	Y2 float64 `xml:"y2,attr"`
}

type svgPath struct {
	ID string `xml:"id,attr"`
	D  string `xml:"d,attr"`
}

type svgPolyline struct {
	Points string `xml:"points,attr"`
}

// ============================================================
// Reader
// ============================================================

// ReadSVG imports rect, line, polyline, polygon and path elements, walking
// nested groups. Paths support M, L, H, V, C and Z in absolute and relative
// form; any other path command fails the import. Transforms are not applied
// and coordinates are taken as written (y down).
func ReadSVG(r io.Reader) (*geom.Geometry, error) {
	var doc svgDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: svg: %v", ErrMalformed, err)
	}
	g := geom.New()
	if err := addGroup(g, doc.svgGroup); err != nil {
		return nil, err
	}
	return g, nil
}

func addGroup(g *geom.Geometry, grp svgGroup) error {
	for _, r := range grp.Rects {
		addPolygon(g, [][2]float64{{r.X, r.Y}, {r.X + r.Width, r.Y}, {r.X + r.Width, r.Y + r.Height}, {r.X, r.Y + r.Height}}, true)
	}
	for _, l := range grp.Lines {
		g.AddLine(geom.NewLine(geom.NewNode(l.X1, l.Y1), geom.NewNode(l.X2, l.Y2)))
	}
	for _, p := range grp.Polylines {
		pts, err := parsePoints(p.Points)
		if err != nil {
			return err
		}
		addPolygon(g, pts, false)
	}
	for _, p := range grp.Polygons {
		pts, err := parsePoints(p.Points)
		if err != nil {
			return err
		}
		addPolygon(g, pts, true)
	}
	for _, p := range grp.Paths {
		if err := addPath(g, p.D); err != nil {
			if p.ID != "" {
				return fmt.Errorf("path %q: %w", p.ID, err)
			}
			return err
		}
	}
	for _, sub := range grp.Groups {
		if err := addGroup(g, sub); err != nil {
			return err
		}
	}
	return nil
}

func addPolygon(g *geom.Geometry, pts [][2]float64, closed bool) {
	for i := 1; i < len(pts); i++ {
		g.AddLine(geom.NewLine(geom.NewNode(pts[i-1][0], pts[i-1][1]), geom.NewNode(pts[i][0], pts[i][1])))
	}
	if closed && len(pts) > 2 {
		last := pts[len(pts)-1]
		g.AddLine(geom.NewLine(geom.NewNode(last[0], last[1]), geom.NewNode(pts[0][0], pts[0][1])))
	}
}

func parsePoints(s string) ([][2]float64, error) {
	nums, err := parseNumbers(s)
	if err != nil {
		return nil, err
	}
	if len(nums)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of point coordinates", ErrMalformed)
	}
	pts := make([][2]float64, 0, len(nums)/2)
	for i := 0; i < len(nums); i += 2 {
		pts = append(pts, [2]float64{nums[i], nums[i+1]})
	}
	return pts, nil
}

// ============================================================
// Path data
// ============================================================

// commandPattern splits path data into a command letter and its arguments.
// e and E are excluded so exponents stay inside numbers.
var commandPattern = regexp.MustCompile(`([A-DF-Za-df-z])([^A-DF-Za-df-z]*)`)

var numberPattern = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)

func parseNumbers(s string) ([]float64, error) {
	var out []float64
	for _, tok := range numberPattern.FindAllString(s, -1) {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: number %q", ErrMalformed, tok)
		}
		out = append(out, v)
	}
	return out, nil
}

// addPath walks one path's data. Consecutive primitives share node ids.
func addPath(g *geom.Geometry, d string) error {
	d = strings.TrimSpace(d)
	if d == "" {
		return fmt.Errorf("%w: empty path", ErrMalformed)
	}

	var cur, start geom.Node
	started := false

	lineTo := func(x, y float64) {
		next := geom.NewNode(x, y)
		g.AddLine(geom.NewLine(cur, next))
		cur = next
	}

	for _, m := range commandPattern.FindAllStringSubmatch(d, -1) {
		cmd := m[1]
		args, err := parseNumbers(m[2])
		if err != nil {
			return err
		}
		rel := cmd == strings.ToLower(cmd)
		if !started && strings.ToUpper(cmd) != "M" {
			return fmt.Errorf("%w: path must start with a moveto, got %q", ErrMalformed, cmd)
		}
		abs := func(x, y float64) (float64, float64) {
			if rel {
				return cur.X + x, cur.Y + y
			}
			return x, y
		}

		switch strings.ToUpper(cmd) {
		case "M":
			if len(args) < 2 || len(args)%2 != 0 {
				return fmt.Errorf("%w: moveto needs coordinate pairs", ErrMalformed)
			}
			x, y := args[0], args[1]
			if rel && started {
				x, y = cur.X+x, cur.Y+y
			}
			cur = geom.NewNode(x, y)
			start, started = cur, true
			// extra pairs are implicit linetos
			for i := 2; i < len(args); i += 2 {
				lineTo(abs(args[i], args[i+1]))
			}

		case "L":
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("%w: lineto needs coordinate pairs", ErrMalformed)
			}
			for i := 0; i < len(args); i += 2 {
				lineTo(abs(args[i], args[i+1]))
			}

		case "H":
			if len(args) == 0 {
				return fmt.Errorf("%w: horizontal lineto needs a coordinate", ErrMalformed)
			}
			for _, x := range args {
				if rel {
					x += cur.X
				}
				lineTo(x, cur.Y)
			}

		case "V":
			if len(args) == 0 {
				return fmt.Errorf("%w: vertical lineto needs a coordinate", ErrMalformed)
			}
			for _, y := range args {
				if rel {
					y += cur.Y
				}
				lineTo(cur.X, y)
			}

		case "C":
			if len(args) == 0 || len(args)%6 != 0 {
				return fmt.Errorf("%w: curveto needs six coordinates per segment", ErrMalformed)
			}
			for i := 0; i < len(args); i += 6 {
				c1 := geom.NewNode(abs(args[i], args[i+1]))
				c2 := geom.NewNode(abs(args[i+2], args[i+3]))
				end := geom.NewNode(abs(args[i+4], args[i+5]))
				g.AddCubicBezier(geom.NewBezier(cur, c1, c2, end))
				cur = end
			}

		case "Z":
			// a subpath already back at its start is closed by consolidation
			if cur.X != start.X || cur.Y != start.Y {
				g.AddLine(geom.NewLine(cur, start))
			}
			cur = start

		default:
			return fmt.Errorf("%w: unsupported path command %q", ErrMalformed, cmd)
		}
	}
	return nil
}
