package importer

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/chazu/adze/pkg/geom"
)

// statementPattern matches the gmsh entity statements the reader understands,
// e.g. "Point(3) = {0, 1, 0, 0.1};" or "Circle(7) = {1, 2, 3};".
var statementPattern = regexp.MustCompile(`^(Point|Line|Circle|Bezier)\s*\(\s*(\d+)\s*\)\s*=\s*\{([^}]*)\}\s*;?$`)

// ReadGEO imports Point, Line, Circle and Bezier statements from a gmsh .geo
// file. Other statements are skipped. Circles are start, center, end point
// triples and are oriented counter-clockwise; Bezier takes exactly four
// points. Statements must reference points defined earlier in the file.
func ReadGEO(r io.Reader) (*geom.Geometry, error) {
	g := geom.New()
	points := make(map[int]geom.Node)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		if i := strings.Index(text, "//"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		m := statementPattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		id, _ := strconv.Atoi(m[2])
		args, err := parseArgs(m[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		ref := func(i int) (geom.Node, error) {
			n, ok := points[int(args[i])]
			if !ok {
				return geom.Node{}, fmt.Errorf("%w: line %d: %s(%d) references unknown point %d", ErrMalformed, lineNo, m[1], id, int(args[i]))
			}
			return n, nil
		}
		want := func(counts ...int) error {
			for _, c := range counts {
				if len(args) == c {
					return nil
				}
			}
			return fmt.Errorf("%w: line %d: %s(%d) has %d arguments", ErrMalformed, lineNo, m[1], id, len(args))
		}

		switch m[1] {
		case "Point":
			if err := want(3, 4); err != nil {
				return nil, err
			}
			points[id] = geom.NewNode(args[0], args[1])

		case "Line":
			if err := want(2); err != nil {
				return nil, err
			}
			a, err := ref(0)
			if err != nil {
				return nil, err
			}
			b, err := ref(1)
			if err != nil {
				return nil, err
			}
			g.AddLine(geom.NewLine(a, b))

		case "Circle":
			if err := want(3); err != nil {
				return nil, err
			}
			var n [3]geom.Node
			for i := range n {
				if n[i], err = ref(i); err != nil {
					return nil, err
				}
			}
			s, c, e := n[0], n[1], n[2]
			if (s.X-c.X)*(e.Y-c.Y)-(s.Y-c.Y)*(e.X-c.X) < 0 {
				s, e = e, s
			}
			if err := g.AddArc(geom.NewArc(s, c, e)); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
			}

		case "Bezier":
			if err := want(4); err != nil {
				return nil, err
			}
			var n [4]geom.Node
			for i := range n {
				if n[i], err = ref(i); err != nil {
					return nil, err
				}
			}
			g.AddCubicBezier(geom.NewBezier(n[0], n[1], n[2], n[3]))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	return g, nil
}

func parseArgs(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %q", ErrMalformed, f)
		}
		out = append(out, v)
	}
	return out, nil
}
