// Package snapshot is the model registry. A Snapshot owns the geometry, the
// materials and boundary conditions with their assignments, and the
// requested postprocessing, and drives a platform through script export and
// solver execution.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/graph"
	"github.com/chazu/adze/pkg/logging"
	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	ErrDuplicateMaterial = errors.New("snapshot: material already registered")
	ErrUnknownMaterial   = errors.New("snapshot: unknown material")
	ErrDuplicateBoundary = errors.New("snapshot: boundary condition already registered")
	ErrUnknownBoundary   = errors.New("snapshot: unknown boundary condition")
	ErrFieldMismatch     = errors.New("snapshot: boundary field does not match the problem")
	ErrNoGeometry        = errors.New("snapshot: no line or arc to assign to")
	ErrSurface           = errors.New("snapshot: region extraction reported errors")
)

// Snapshot is one model bound to one platform.
type Snapshot struct {
	ID       uuid.UUID
	Platform platform.Platform
	Geometry *geom.Geometry

	materials  []*model.Material
	boundaries []model.BoundaryCondition
	metrics    []model.Metric
	strict     bool
}

// Option configures a Snapshot.
type Option func(*Snapshot)

// WithStrictLabels makes regions enclosing several labels an export error
// for surface platforms.
func WithStrictLabels() Option {
	return func(s *Snapshot) { s.strict = true }
}

// New returns an empty snapshot for p.
func New(p platform.Platform, opts ...Option) *Snapshot {
	s := &Snapshot{ID: uuid.New(), Platform: p, Geometry: geom.New()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// AddMaterial registers m. Names are unique.
func (s *Snapshot) AddMaterial(m model.Material) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if _, ok := s.Material(m.Name); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateMaterial, m.Name)
	}
	m.Assigned = append([]model.Coord(nil), m.Assigned...)
	s.materials = append(s.materials, &m)
	return nil
}

// AssignMaterial places a label for material name at (x, y).
func (s *Snapshot) AssignMaterial(x, y float64, name string) error {
	m, ok := s.lookupMaterial(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMaterial, name)
	}
	m.Assign(x, y)
	return nil
}

// Material returns a copy of the registered material name.
func (s *Snapshot) Material(name string) (model.Material, bool) {
	m, ok := s.lookupMaterial(name)
	if !ok {
		return model.Material{}, false
	}
	return *m, true
}

func (s *Snapshot) lookupMaterial(name string) (*model.Material, bool) {
	return lo.Find(s.materials, func(m *model.Material) bool { return m.Name == name })
}

// Materials returns the registered materials in registration order.
func (s *Snapshot) Materials() []model.Material {
	return lo.Map(s.materials, func(m *model.Material, _ int) model.Material { return *m })
}

// AddBoundaryCondition registers bc. Names are unique and the field must be
// the platform's problem field.
func (s *Snapshot) AddBoundaryCondition(bc model.BoundaryCondition) error {
	if problem := s.Platform.Metadata().Problem; bc.Field() != problem {
		return fmt.Errorf("%w: %q is %s, problem is %s", ErrFieldMismatch, bc.BoundaryName(), bc.Field(), problem)
	}
	if _, ok := s.Boundary(bc.BoundaryName()); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateBoundary, bc.BoundaryName())
	}
	s.boundaries = append(s.boundaries, bc)
	return nil
}

// AssignBoundaryCondition attaches boundary name to the line or arc
// nearest to (x, y).
func (s *Snapshot) AssignBoundaryCondition(x, y float64, name string) error {
	bc, ok := s.Boundary(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBoundary, name)
	}
	e, dist, ok := s.Geometry.NearestEdge(x, y)
	if !ok {
		return ErrNoGeometry
	}
	bc.Assign(e.ElementID())
	logging.Logger().Debug("assigned boundary", "boundary", name, "element", e.ElementID(), "distance", dist)
	return nil
}

// Boundary returns the registered condition name.
func (s *Snapshot) Boundary(name string) (model.BoundaryCondition, bool) {
	return lo.Find(s.boundaries, func(b model.BoundaryCondition) bool { return b.BoundaryName() == name })
}

// Boundaries returns the registered conditions in registration order.
func (s *Snapshot) Boundaries() []model.BoundaryCondition {
	return append([]model.BoundaryCondition(nil), s.boundaries...)
}

// AddGeometry merges g into the snapshot geometry.
func (s *Snapshot) AddGeometry(g *geom.Geometry) {
	s.Geometry.MergeGeometry(g)
	if g != nil && g.Epsilon > 0 {
		s.Geometry.Epsilon = g.Epsilon
	}
}

// AddPostprocessing queues a metric for the solved model.
func (s *Snapshot) AddPostprocessing(m model.Metric) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.metrics = append(s.metrics, m)
	return nil
}

// Metrics returns the queued metrics.
func (s *Snapshot) Metrics() []model.Metric {
	return append([]model.Metric(nil), s.metrics...)
}

// Labels returns one label per material assignment. Domains are 1-based in
// material registration order.
func (s *Snapshot) Labels() []graph.Label {
	var out []graph.Label
	for i, m := range s.materials {
		for _, c := range m.Assigned {
			out = append(out, graph.Label{Name: m.Name, Domain: i + 1, X: c.X, Y: c.Y})
		}
	}
	return out
}

// BoundaryMarkers maps element ids to 1-based boundary markers in
// registration order; names[i] belongs to marker i+1. An element assigned
// to several conditions keeps the last one.
func (s *Snapshot) BoundaryMarkers() (markers map[int]int, names []string) {
	markers = make(map[int]int)
	for i, bc := range s.boundaries {
		names = append(names, bc.BoundaryName())
		for _, id := range bc.AssignedIDs() {
			markers[id] = i + 1
		}
	}
	return markers, names
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// Export writes the platform script for the current model.
func (s *Snapshot) Export(w io.Writer) error {
	log := logging.Logger()
	p := s.Platform
	sc := platform.NewScript(w)

	section := func(title string) {
		sc.Newline(1)
		p.Comment(sc, title)
	}

	if err := p.ExportPreamble(sc); err != nil {
		return err
	}

	section("PROBLEM")
	if err := p.ExportMetadata(sc); err != nil {
		return err
	}

	section("MATERIAL DEFINITIONS")
	for _, m := range s.materials {
		if err := p.ExportMaterial(sc, *m); err != nil {
			return fmt.Errorf("material %q: %w", m.Name, err)
		}
	}

	section("BOUNDARY DEFINITIONS")
	for _, bc := range s.boundaries {
		if err := p.ExportBoundary(sc, bc); err != nil {
			return fmt.Errorf("boundary %q: %w", bc.BoundaryName(), err)
		}
	}

	section("GEOMETRY")
	if se, ok := p.(platform.SurfaceExporter); ok {
		if err := s.exportSurface(sc, se); err != nil {
			return err
		}
	} else if err := s.exportElements(sc); err != nil {
		return err
	}

	section("BLOCK LABELS")
	for _, m := range s.materials {
		for _, c := range m.Assigned {
			if err := p.ExportBlockLabel(sc, c.X, c.Y, *m); err != nil {
				return fmt.Errorf("label %q: %w", m.Name, err)
			}
		}
	}

	section("SOLVE")
	if err := p.ExportSolve(sc); err != nil {
		return err
	}

	section("POSTPROCESSING AND EXPORTING")
	for _, m := range s.metrics {
		if err := p.ExportPost(sc, m); err != nil {
			return fmt.Errorf("metric %s %q: %w", m.Kind, m.Variable, err)
		}
	}

	section("CLOSING STEPS")
	if err := p.ExportClosing(sc); err != nil {
		return err
	}
	if err := sc.Flush(); err != nil {
		return err
	}
	log.Info("exported model", "platform", p.Name(), "snapshot", s.ID,
		"materials", len(s.materials), "boundaries", len(s.boundaries), "metrics", len(s.metrics))
	return nil
}

// exportElements writes curve endpoints as nodes, then curves carrying a
// boundary condition, then the remaining curves.
func (s *Snapshot) exportElements(sc *platform.Script) error {
	p := s.Platform
	markers, names := s.BoundaryMarkers()
	elements := s.Geometry.Elements()

	seen := make(map[int]bool)
	for _, e := range elements {
		a, b, err := geom.Endpoints(e)
		if err != nil {
			return err
		}
		for _, n := range []geom.Node{a, b} {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			if err := p.ExportGeometryElement(sc, n, ""); err != nil {
				return err
			}
		}
	}

	assigned, rest := lo.FilterReject(elements, func(e geom.Element, _ int) bool { return markers[e.ElementID()] > 0 })
	for _, e := range assigned {
		if err := p.ExportGeometryElement(sc, e, names[markers[e.ElementID()]-1]); err != nil {
			return err
		}
	}
	for _, e := range rest {
		if err := p.ExportGeometryElement(sc, e, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *Snapshot) exportSurface(sc *platform.Script, se platform.SurfaceExporter) error {
	surf, names, err := s.Surface()
	if err != nil {
		return err
	}
	return se.ExportSurface(sc, surf, names)
}

// Surface runs region extraction over a consolidated copy of the snapshot
// geometry with the assigned labels and boundary markers. names[i] is the
// name of marker i+1. Extraction errors are returned as ErrSurface;
// warnings are logged.
func (s *Snapshot) Surface() (*graph.Surface, []string, error) {
	log := logging.Logger()
	markers, names := s.BoundaryMarkers()
	g, markers, err := s.consolidated(markers)
	if err != nil {
		return nil, nil, err
	}
	opts := []graph.Option{graph.WithBoundaryMarkers(markers)}
	if s.strict {
		opts = append(opts, graph.WithStrictLabels())
	}
	surf, res, err := graph.Extract(g, s.Labels(), opts...)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range res.Warnings {
		log.Warn("region extraction", "warning", w.Message)
	}
	if err := surfaceError(res); err != nil {
		return nil, nil, err
	}
	return surf, names, nil
}

// surfaceError folds the validation errors of an extraction into ErrSurface.
func surfaceError(res graph.ValidationResult) error {
	if res.OK() {
		return nil
	}
	msgs := lo.Map(res.Errors, func(e graph.ValidationError, _ int) string { return e.Message })
	return fmt.Errorf("%w: %s", ErrSurface, strings.Join(msgs, "; "))
}

// consolidated returns a consolidated copy of the geometry and markers keyed
// by its element ids. Consolidation splits curves into pieces with fresh
// ids; a piece whose midpoint lies on a marked curve inherits its marker.
// Already consolidated geometry keeps its ids and markers.
func (s *Snapshot) consolidated(markers map[int]int) (*geom.Geometry, map[int]int, error) {
	g := s.Geometry.Clone()
	if _, err := g.Consolidate(); err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	if len(markers) == 0 {
		return g, markers, nil
	}

	marked := lo.Filter(s.Geometry.Elements(), func(e geom.Element, _ int) bool {
		return markers[e.ElementID()] > 0
	})
	eps := g.Eps()
	out := make(map[int]int)
	for _, e := range g.Elements() {
		if m, ok := markers[e.ElementID()]; ok {
			out[e.ElementID()] = m
			continue
		}
		x, y := midpoint(e)
		if src, ok := lo.Find(marked, func(m geom.Element) bool { return distanceTo(m, x, y) <= eps }); ok {
			out[e.ElementID()] = markers[src.ElementID()]
		}
	}
	return g, out, nil
}

func midpoint(e geom.Element) (float64, float64) {
	switch e := e.(type) {
	case geom.Line:
		return e.Midpoint()
	case geom.CircleArc:
		return e.Apex()
	case geom.CubicBezier:
		return e.PointAt(0.5)
	case geom.Node:
		return e.X, e.Y
	}
	return math.NaN(), math.NaN()
}

func distanceTo(e geom.Element, x, y float64) float64 {
	switch e := e.(type) {
	case geom.Line:
		return e.DistanceTo(x, y)
	case geom.CircleArc:
		return e.DistanceTo(x, y)
	case geom.CubicBezier:
		return e.DistanceTo(x, y)
	case geom.Node:
		return math.Hypot(e.X-x, e.Y-y)
	}
	return math.Inf(1)
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// ScriptPath is where Execute writes the script inside dir.
func (s *Snapshot) ScriptPath(dir string) string {
	return filepath.Join(dir, filepath.Base(s.Platform.Metadata().ScriptName))
}

// MetricsPath is where the solver writes its results inside dir.
func (s *Snapshot) MetricsPath(dir string) string {
	return filepath.Join(dir, s.Platform.Metadata().MetricsFile)
}

// Execute writes the script into dir and runs the solver there. Export and
// file errors are returned; solver failures are reported in the result.
func (s *Snapshot) Execute(ctx context.Context, dir string) (platform.RunResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return platform.RunResult{}, fmt.Errorf("snapshot: %w", err)
	}
	path := s.ScriptPath(dir)
	f, err := os.Create(path)
	if err != nil {
		return platform.RunResult{}, fmt.Errorf("snapshot: %w", err)
	}
	if err := s.Export(f); err != nil {
		f.Close()
		return platform.RunResult{}, err
	}
	if err := f.Close(); err != nil {
		return platform.RunResult{}, fmt.Errorf("snapshot: %w", err)
	}
	return s.Platform.Execute(ctx, path), nil
}
