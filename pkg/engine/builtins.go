package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/importer"
	"github.com/chazu/adze/pkg/model"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNode wraps a geom.Node so primitives can share endpoints.
type sexpNode struct {
	node geom.Node
}

func (n *sexpNode) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(node %g %g)", n.node.X, n.node.Y)
}
func (n *sexpNode) Type() *zygo.RegisteredType { return nil }

// sexpElement wraps a curve that has been added to the model geometry.
type sexpElement struct {
	elem geom.Element
}

func (e *sexpElement) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %d)", e.elem.Kind(), e.elem.ElementID())
}
func (e *sexpElement) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments. Keyword
// names are normalized to underscores, so :mu-r and :mu_r are the same key.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			i++
			continue
		}
		name = strings.ReplaceAll(name, "-", "_")
		if i+1 < len(args) {
			if _, next := isKW(args[i+1]); !next || isValueKeyword(name) {
				result.kw[name] = args[i+1]
				i += 2
				continue
			}
		}
		// keyword with no value is a flag
		result.kw[name] = zygo.SexpNull
		i++
	}
	return result
}

// isValueKeyword lists keywords whose value is itself a keyword.
func isValueKeyword(name string) bool {
	return name == "field" || name == "lamination"
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toBool treats a bare flag keyword (SexpNull) as true.
func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return true, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

func toFloatSlice(s zygo.Sexp) ([]float64, error) {
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(items))
	for i, it := range items {
		f, err := toFloat64(it)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// toNodes accepts either node values or a flat run of x y numbers.
func toNodes(args []zygo.Sexp) ([]geom.Node, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if _, ok := args[0].(*sexpNode); ok {
		out := make([]geom.Node, 0, len(args))
		for i, a := range args {
			n, ok := a.(*sexpNode)
			if !ok {
				return nil, fmt.Errorf("point %d: expected node, got %T (%s)", i, a, a.SexpString(nil))
			}
			out = append(out, n.node)
		}
		return out, nil
	}
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("expected nodes or x y pairs, got %d numbers", len(args))
	}
	out := make([]geom.Node, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		x, err := toFloat64(args[i])
		if err != nil {
			return nil, fmt.Errorf("point %d: x: %w", i/2, err)
		}
		y, err := toFloat64(args[i+1])
		if err != nil {
			return nil, fmt.Errorf("point %d: y: %w", i/2, err)
		}
		out = append(out, geom.NewNode(x, y))
	}
	return out, nil
}

// nodesExactly is toNodes with a fixed point count.
func nodesExactly(args []zygo.Sexp, n int) ([]geom.Node, error) {
	nodes, err := toNodes(args)
	if err != nil {
		return nil, err
	}
	if len(nodes) != n {
		return nil, fmt.Errorf("expected %d points, got %d", n, len(nodes))
	}
	return nodes, nil
}

// nameAndPoint reads the (name x y) shape shared by the assign builtins.
func nameAndPoint(args []zygo.Sexp) (Assignment, error) {
	if len(args) != 3 {
		return Assignment{}, fmt.Errorf("expected a name and x y, got %d arguments", len(args))
	}
	name, err := toString(args[0])
	if err != nil {
		return Assignment{}, fmt.Errorf("name: %w", err)
	}
	x, err := toFloat64(args[1])
	if err != nil {
		return Assignment{}, fmt.Errorf("x: %w", err)
	}
	y, err := toFloat64(args[2])
	if err != nil {
		return Assignment{}, fmt.Errorf("y: %w", err)
	}
	return Assignment{Name: name, X: x, Y: y}, nil
}

// ---------------------------------------------------------------------------
// Material properties
// ---------------------------------------------------------------------------

// materialProps maps keyword names to scalar material fields.
var materialProps = map[string]func(*model.Material, float64){
	"mu_r":            func(m *model.Material, v float64) { m.MuR = v },
	"epsilon":         func(m *model.Material, v float64) { m.Epsilon = v },
	"conductivity":    func(m *model.Material, v float64) { m.Conductivity = v },
	"je":              func(m *model.Material, v float64) { m.Je = v },
	"coercivity":      func(m *model.Material, v float64) { m.Coercivity = v },
	"remanence_angle": func(m *model.Material, v float64) { m.RemanenceAngle = v },
	"thermal_cond":    func(m *model.Material, v float64) { m.ThermalCond = v },
	"volume_charge":   func(m *model.Material, v float64) { m.VolumeCharge = v },
	"mesh_size":       func(m *model.Material, v float64) { m.MeshSize = v },
	"thickness":       func(m *model.Material, v float64) { m.Thickness = v },
	"fill_factor":     func(m *model.Material, v float64) { m.FillFactor = v },
	"diameter":        func(m *model.Material, v float64) { m.Diameter = v },
	"phi_hmax":        func(m *model.Material, v float64) { m.PhiHMax = v },
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

type builtin = func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)

// registerBuiltins installs the model DSL into a zygomys environment. The
// builtins populate m during evaluation; import-geometry resolves relative
// paths against baseDir.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, m *Model, baseDir string) {

	// -----------------------------------------------------------------------
	// (problem :field :magnetic :epsilon 1e-6)
	// -----------------------------------------------------------------------
	env.AddFunction("problem", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if v, ok := pa.kw["field"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("problem: field: %w", err)
			}
			f, err := model.ParseFieldType(s)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("problem: %w", err)
			}
			m.Field = f
		}
		if v, ok := pa.kw["epsilon"]; ok {
			eps, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("problem: epsilon: %w", err)
			}
			if eps <= 0 {
				return zygo.SexpNull, fmt.Errorf("problem: epsilon must be positive, got %g", eps)
			}
			m.Geometry.Epsilon = eps
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (node 0 1)
	// -----------------------------------------------------------------------
	env.AddFunction("node", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		nodes, err := toNodes(args)
		if err != nil || len(nodes) != 1 {
			return zygo.SexpNull, fmt.Errorf("node requires x and y")
		}
		return &sexpNode{node: nodes[0]}, nil
	})

	// -----------------------------------------------------------------------
	// (line a b) or (line x1 y1 x2 y2)
	// -----------------------------------------------------------------------
	env.AddFunction("line", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		n, err := nodesExactly(args, 2)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("line: %w", err)
		}
		l := geom.NewLine(n[0], n[1])
		m.Geometry.AddLine(l)
		return &sexpElement{elem: l}, nil
	})

	// -----------------------------------------------------------------------
	// (arc start center end), counter-clockwise from start to end
	// -----------------------------------------------------------------------
	env.AddFunction("arc", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		n, err := nodesExactly(args, 3)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("arc: %w", err)
		}
		a := geom.NewArc(n[0], n[1], n[2])
		if err := m.Geometry.AddArc(a); err != nil {
			return zygo.SexpNull, fmt.Errorf("arc: %w", err)
		}
		return &sexpElement{elem: a}, nil
	})

	// -----------------------------------------------------------------------
	// (bezier start control1 control2 end)
	// -----------------------------------------------------------------------
	env.AddFunction("bezier", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		n, err := nodesExactly(args, 4)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("bezier: %w", err)
		}
		b := geom.NewBezier(n[0], n[1], n[2], n[3])
		m.Geometry.AddCubicBezier(b)
		return &sexpElement{elem: b}, nil
	})

	// -----------------------------------------------------------------------
	// (polyline 0 0 1 0 1 1 :closed)
	// -----------------------------------------------------------------------
	env.AddFunction("polyline", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		nodes, err := toNodes(pa.positional)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("polyline: %w", err)
		}
		if len(nodes) < 2 {
			return zygo.SexpNull, fmt.Errorf("polyline requires at least 2 points")
		}
		closed := false
		if v, ok := pa.kw["closed"]; ok {
			if closed, err = toBool(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("polyline: closed: %w", err)
			}
		}
		if closed && len(nodes) > 2 {
			nodes = append(nodes, nodes[0])
		}
		for i := 1; i < len(nodes); i++ {
			m.Geometry.AddLine(geom.NewLine(nodes[i-1], nodes[i]))
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (rect x y width height)
	// -----------------------------------------------------------------------
	env.AddFunction("rect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 4 {
			return zygo.SexpNull, fmt.Errorf("rect requires x, y, width and height")
		}
		var v [4]float64
		for i := range v {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("rect: %w", err)
			}
			v[i] = f
		}
		if v[2] <= 0 || v[3] <= 0 {
			return zygo.SexpNull, fmt.Errorf("rect: width and height must be positive")
		}
		c := []geom.Node{
			geom.NewNode(v[0], v[1]),
			geom.NewNode(v[0]+v[2], v[1]),
			geom.NewNode(v[0]+v[2], v[1]+v[3]),
			geom.NewNode(v[0], v[1]+v[3]),
		}
		for i := range c {
			m.Geometry.AddLine(geom.NewLine(c[i], c[(i+1)%4]))
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (material "iron" :mu-r 4000 :b (list 0 1.2) :h (list 0 200))
	// -----------------------------------------------------------------------
	env.AddFunction("material", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("material requires a name")
		}
		matName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("material: name: %w", err)
		}
		mat := model.NewMaterial(matName)
		for k, v := range pa.kw {
			switch k {
			case "b", "h":
				curve, err := toFloatSlice(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("material %q: %s: %w", matName, k, err)
				}
				if k == "b" {
					mat.B = curve
				} else {
					mat.H = curve
				}
			case "lamination":
				s, err := toKeywordString(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("material %q: lamination: %w", matName, err)
				}
				if mat.Lamination, err = model.ParseLamination(s); err != nil {
					return zygo.SexpNull, err
				}
			default:
				set, ok := materialProps[k]
				if !ok {
					return zygo.SexpNull, fmt.Errorf("material %q: unknown property %q", matName, k)
				}
				f, err := toFloat64(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("material %q: %s: %w", matName, k, err)
				}
				set(&mat, f)
			}
		}
		if err := mat.Validate(); err != nil {
			return zygo.SexpNull, err
		}
		m.Materials = append(m.Materials, mat)
		return &zygo.SexpStr{S: matName}, nil
	})

	// -----------------------------------------------------------------------
	// (assign-material "iron" 0.5 0.5)
	// -----------------------------------------------------------------------
	env.AddFunction("assign_material", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		a, err := nameAndPoint(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("assign-material: %w", err)
		}
		m.Labels = append(m.Labels, a)
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (dirichlet "ground" :fixed-voltage 0) and (neumann "flux" :heat-flux 10)
	// -----------------------------------------------------------------------
	valued := func(label string, kind model.BoundaryKind) builtin {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			pa := parseArgs(args)
			if len(pa.positional) != 1 {
				return zygo.SexpNull, fmt.Errorf("%s requires a name", label)
			}
			bcName, err := toString(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: name: %w", label, err)
			}
			spec := model.BoundarySpec{Name: bcName, Kind: kind, Values: make(map[string]float64)}
			for k, v := range pa.kw {
				f, err := toFloat64(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s %q: %s: %w", label, bcName, k, err)
				}
				spec.Values[k] = f
			}
			m.Boundaries = append(m.Boundaries, spec)
			return &zygo.SexpStr{S: bcName}, nil
		}
	}
	env.AddFunction("dirichlet", valued("dirichlet", model.KindDirichlet))
	env.AddFunction("neumann", valued("neumann", model.KindNeumann))

	// -----------------------------------------------------------------------
	// (periodic "side") ... (anti-periodic-air-gap "gap" :angle 30)
	// -----------------------------------------------------------------------
	linked := func(label string, kind model.BoundaryKind, withAngle bool) builtin {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			pa := parseArgs(args)
			if len(pa.positional) != 1 {
				return zygo.SexpNull, fmt.Errorf("%s requires a name", label)
			}
			bcName, err := toString(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: name: %w", label, err)
			}
			spec := model.BoundarySpec{Name: bcName, Kind: kind}
			for k, v := range pa.kw {
				if k != "angle" || !withAngle {
					return zygo.SexpNull, fmt.Errorf("%s %q: unknown option %q", label, bcName, k)
				}
				if spec.Angle, err = toFloat64(v); err != nil {
					return zygo.SexpNull, fmt.Errorf("%s %q: angle: %w", label, bcName, err)
				}
			}
			m.Boundaries = append(m.Boundaries, spec)
			return &zygo.SexpStr{S: bcName}, nil
		}
	}
	env.AddFunction("periodic", linked("periodic", model.KindPeriodic, false))
	env.AddFunction("anti_periodic", linked("anti-periodic", model.KindAntiPeriodic, false))
	env.AddFunction("periodic_air_gap", linked("periodic-air-gap", model.KindPeriodicAirGap, true))
	env.AddFunction("anti_periodic_air_gap", linked("anti-periodic-air-gap", model.KindAntiPeriodicAirGap, true))

	// -----------------------------------------------------------------------
	// (assign-boundary "ground" 0.5 0)
	// -----------------------------------------------------------------------
	env.AddFunction("assign_boundary", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		a, err := nameAndPoint(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("assign-boundary: %w", err)
		}
		m.BoundaryPicks = append(m.BoundaryPicks, a)
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (point-value "V" 0.5 0.5)
	// -----------------------------------------------------------------------
	env.AddFunction("point_value", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		a, err := nameAndPoint(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point-value: %w", err)
		}
		m.Metrics = append(m.Metrics, model.NewPointValue(a.Name, a.X, a.Y))
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (mesh-info)
	// -----------------------------------------------------------------------
	env.AddFunction("mesh_info", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 0 {
			return zygo.SexpNull, fmt.Errorf("mesh-info takes no arguments")
		}
		m.Metrics = append(m.Metrics, model.NewMeshInfo())
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (integrate "Energy" 0.5 0.5 2 2), one x y pair per block label
	// -----------------------------------------------------------------------
	env.AddFunction("integrate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("integrate requires a variable")
		}
		variable, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("integrate: variable: %w", err)
		}
		nodes, err := toNodes(args[1:])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("integrate: %w", err)
		}
		pts := make([]model.Coord, 0, len(nodes))
		for _, n := range nodes {
			pts = append(pts, model.Coord{X: n.X, Y: n.Y})
		}
		m.Metrics = append(m.Metrics, model.NewIntegration(variable, pts...))
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (import-geometry "stator.dxf" :dx 10 :dy 0)
	// -----------------------------------------------------------------------
	env.AddFunction("import_geometry", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("import-geometry requires a path")
		}
		path, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("import-geometry: path: %w", err)
		}
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		var dx, dy float64
		for k, v := range pa.kw {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("import-geometry: %s: %w", k, err)
			}
			switch k {
			case "dx":
				dx = f
			case "dy":
				dy = f
			default:
				return zygo.SexpNull, fmt.Errorf("import-geometry: unknown option %q", k)
			}
		}
		g, err := importer.ReadFile(path)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("import-geometry: %w", err)
		}
		g.Translate(dx, dy)
		m.Geometry.MergeGeometry(g)
		return zygo.SexpNull, nil
	})
}
