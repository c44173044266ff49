// Package femm implements platform.Platform for FEMM 4.2. It writes a Lua
// driver script using the mi_/ei_/hi_/ci_ preprocessor commands of the
// selected field and the matching mo_/eo_/ho_/co_ postprocessor commands.
package femm

import (
	"context"
	"fmt"
	"slices"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/chazu/adze/pkg/tessellate"
)

// Compile-time interface check.
var _ platform.Platform = (*Femm)(nil)

// Units lists the length units FEMM understands.
var Units = []string{"inches", "millimeters", "centimeters", "mils", "meters", "micrometers"}

// Options are the FEMM-specific problem settings.
type Options struct {
	Frequency   float64 // Hz, magnetic and current fields
	Depth       float64 // out-of-plane depth for planar problems
	MinAngle    float64 // mesher minimum angle, degrees
	ACSolver    int     // 0 successive approximation, 1 Newton
	TimeStep    float64 // heat transient step
	SmartMesh   bool
	ElementSize float64 // segment element size; 0 lets FEMM choose

	Executor platform.Executor
}

// DefaultOptions mirrors FEMM's own defaults.
func DefaultOptions() Options {
	return Options{
		Depth:     1,
		MinAngle:  30,
		TimeStep:  1e-3,
		SmartMesh: true,
		Executor: platform.Executor{
			Command: "femm",
			Args:    []string{"-lua-script=" + platform.ScriptPlaceholder, "-windowhide"},
		},
	}
}

// Femm is the FEMM platform for one field type.
type Femm struct {
	meta  platform.Metadata
	opts  Options
	field fieldSpec
}

// New validates meta and opts. The script suffix is forced to ".lua".
func New(meta platform.Metadata, opts Options) (*Femm, error) {
	meta.ScriptSuffix = ".lua"
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if !slices.Contains(Units, meta.Unit) {
		return nil, fmt.Errorf("%w: there is no %q unit", platform.ErrInvalidMetadata, meta.Unit)
	}
	spec, ok := fields[meta.Problem]
	if !ok {
		return nil, fmt.Errorf("femm: %s: %w", meta.Problem, platform.ErrFieldUnsupported)
	}
	if opts.Depth <= 0 {
		return nil, fmt.Errorf("%w: depth must be positive", platform.ErrInvalidMetadata)
	}
	if opts.MinAngle <= 0 || opts.MinAngle > 40 {
		return nil, fmt.Errorf("%w: min angle %g outside (0, 40]", platform.ErrInvalidMetadata, opts.MinAngle)
	}
	return &Femm{meta: meta, opts: opts, field: spec}, nil
}

func (f *Femm) Name() string                 { return "femm" }
func (f *Femm) Metadata() *platform.Metadata { return &f.meta }

func (f *Femm) Comment(s *platform.Script, text string) { s.Linef("-- %s", text) }

func (f *Femm) ExportPreamble(s *platform.Script) error {
	s.Linef("showconsole()")
	return s.Err()
}

func (f *Femm) ExportMetadata(s *platform.Script) error {
	out := f.meta.MetricsFile
	s.Linef("remove(%q)", out)
	s.Linef("newdocument(%d)", f.field.document)
	s.Linef("file_out = openfile(%q, \"w\")", out)

	kind := "planar"
	if f.meta.Coordinates == platform.Axisymmetric {
		kind = "axi"
	}
	s.Linef("%s", f.field.probdef(f, kind))
	if !f.opts.SmartMesh {
		s.Linef("%s_smartmesh(0)", f.field.pre)
	}
	return s.Err()
}

func (f *Femm) ExportMaterial(s *platform.Script, m model.Material) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.Linef("%s", f.field.material(m))
	if f.meta.Problem == model.Magnetic {
		for i := range m.B {
			s.Linef("mi_addbhpoint(%q, %g, %g)", m.Name, m.B[i], m.H[i])
		}
	}
	return s.Err()
}

func (f *Femm) ExportBoundary(s *platform.Script, bc model.BoundaryCondition) error {
	if bc.Field() != f.meta.Problem {
		return fmt.Errorf("femm: boundary %q is %s, problem is %s: %w", bc.BoundaryName(), bc.Field(), f.meta.Problem, platform.ErrFieldUnsupported)
	}
	line, err := f.field.boundary(bc)
	if err != nil {
		return err
	}
	s.Linef("%s", line)
	return s.Err()
}

// segmentMesh returns the (automesh, elementsize) pair for segment props.
func (f *Femm) segmentMesh() (int, float64) {
	if f.opts.ElementSize > 0 {
		return 0, f.opts.ElementSize
	}
	return 1, 0
}

func (f *Femm) ExportGeometryElement(s *platform.Script, e geom.Element, boundary string) error {
	p := f.field.pre
	automesh, size := f.segmentMesh()

	switch v := e.(type) {
	case geom.Node:
		s.Linef("%s_addnode(%g, %g)", p, v.X, v.Y)

	case geom.Line:
		f.segment(s, v.Start.X, v.Start.Y, v.End.X, v.End.Y, boundary, automesh, size)

	case geom.CircleArc:
		// FEMM arcs run counter-clockwise from the first to the second point.
		s.Linef("%s_addarc(%g, %g, %g, %g, %g, %g)", p, v.Start.X, v.Start.Y, v.End.X, v.End.Y, v.SweepDeg(), v.SegDeg())
		if boundary != "" {
			ax, ay := v.Apex()
			s.Linef("%s_selectarcsegment(%g, %g)", p, ax, ay)
			s.Linef("%s_setarcsegmentprop(%g, %q, 0, 0%s)", p, v.SegDeg(), boundary, f.field.conductorArg)
			s.Linef("%s_clearselected()", p)
		}

	case geom.CubicBezier:
		// FEMM has no spline primitive; the curve goes in as chords.
		pts := tessellate.Bezier(v, tessellate.DefaultFlatness)
		for _, q := range pts[1 : len(pts)-1] {
			s.Linef("%s_addnode(%g, %g)", p, q.X, q.Y)
		}
		for i := 1; i < len(pts); i++ {
			f.segment(s, pts[i-1].X, pts[i-1].Y, pts[i].X, pts[i].Y, boundary, automesh, size)
		}

	default:
		return fmt.Errorf("femm: unsupported element %T", e)
	}
	return s.Err()
}

func (f *Femm) segment(s *platform.Script, x1, y1, x2, y2 float64, boundary string, automesh int, size float64) {
	p := f.field.pre
	s.Linef("%s_addsegment(%g, %g, %g, %g)", p, x1, y1, x2, y2)
	if boundary == "" {
		return
	}
	// select through an interior point of the segment
	s.Linef("%s_selectsegment(%g, %g)", p, (x1+x2)/2, (y1+y2)/2)
	s.Linef("%s_setsegmentprop(%q, %g, %d, 0, 0%s)", p, boundary, size, automesh, f.field.conductorArg)
	s.Linef("%s_clearselected()", p)
}

func (f *Femm) ExportBlockLabel(s *platform.Script, x, y float64, m model.Material) error {
	p := f.field.pre
	automesh := 1
	if m.MeshSize > 0 {
		automesh = 0
	}
	s.Linef("%s_addblocklabel(%g, %g)", p, x, y)
	s.Linef("%s_selectlabel(%g, %g)", p, x, y)
	if f.meta.Problem == model.Magnetic {
		s.Linef("mi_setblockprop(%q, %d, %g, \"<None>\", %g, 0, 0)", m.Name, automesh, m.MeshSize, m.RemanenceAngle)
	} else {
		s.Linef("%s_setblockprop(%q, %d, %g, 0)", p, m.Name, automesh, m.MeshSize)
	}
	s.Linef("%s_clearselected()", p)
	return s.Err()
}

// SolutionFile is the FEMM document name the script saves and analyzes.
func (f *Femm) SolutionFile() string {
	return f.meta.ScriptStem() + f.field.suffix
}

func (f *Femm) ExportSolve(s *platform.Script) error {
	p := f.field.pre
	s.Linef("%s_saveas(%q)", p, f.SolutionFile())
	s.Linef("%s_analyze(1)", p)
	s.Linef("%s_loadsolution()", p)
	return s.Err()
}

func (f *Femm) ExportPost(s *platform.Script, m model.Metric) error {
	if err := m.Validate(); err != nil {
		return err
	}
	o := f.field.post
	switch m.Kind {
	case model.PointValue:
		name, ok := f.field.pointVars[m.Variable]
		if !ok {
			return fmt.Errorf("femm: %s point value %q: %w", f.meta.Problem, m.Variable, platform.ErrFieldUnsupported)
		}
		pt := m.Points[0]
		s.Rawf("%s = ", f.field.pointTuple)
		s.Linef("%s_getpointvalues(%g, %g)", o, pt.X, pt.Y)
		s.Linef("write(file_out, \"%s, %g, %g, \", %s, \"\\n\")", m.Variable, pt.X, pt.Y, name)

	case model.MeshInfo:
		s.Linef("write(file_out, \"nodes, \", %s_numnodes(), \"\\n\")", o)
		s.Linef("write(file_out, \"elements, \", %s_numelements(), \"\\n\")", o)

	case model.Integration:
		code, ok := f.field.integrals[m.Variable]
		if !ok {
			return fmt.Errorf("femm: %s integral %q: %w", f.meta.Problem, m.Variable, platform.ErrFieldUnsupported)
		}
		for _, pt := range m.Points {
			s.Linef("%s_selectblock(%g, %g)", o, pt.X, pt.Y)
		}
		s.Linef("%s = %s_blockintegral(%d)", m.Variable, o, code)
		s.Linef("%s_clearblock()", o)
		s.Linef("write(file_out, \"%s, \", %s, \"\\n\")", m.Variable, m.Variable)

	case model.SaveImage:
		if f.meta.Problem != model.Magnetic {
			return fmt.Errorf("femm: %s image export: %w", f.meta.Problem, platform.ErrFieldUnsupported)
		}
		s.Linef("mo_showdensityplot(0, 0, 0.0, 0.1, \"bmag\")")
		s.Linef("mo_showcontourplot(-1)")
		s.Linef("mo_resize(600, 600)")
		s.Linef("mo_refreshview()")
		s.Linef("mo_savebitmap(%q)", m.Path+".bmp")

	default:
		return fmt.Errorf("femm: metric %s: %w", m.Kind, platform.ErrFieldUnsupported)
	}
	return s.Err()
}

func (f *Femm) ExportClosing(s *platform.Script) error {
	s.Linef("closefile(file_out)")
	s.Linef("%s_close()", f.field.post)
	s.Linef("%s_close()", f.field.pre)
	s.Linef("quit()")
	return s.Err()
}

// Execute runs FEMM on the script.
func (f *Femm) Execute(ctx context.Context, scriptPath string) platform.RunResult {
	return f.opts.Executor.Run(ctx, scriptPath)
}
