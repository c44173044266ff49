package engine

import (
	"fmt"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/logging"
	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/chazu/adze/pkg/snapshot"
)

// Assignment places a named material or boundary condition at a point. The
// target element or region is resolved against consolidated geometry, so
// assignments are queued until Build.
type Assignment struct {
	Name string
	X, Y float64
}

// Model is the evaluated, platform-independent description of a problem.
// It is plain data: building it never mutates it, so one Model can be built
// for several platforms.
type Model struct {
	Field    model.FieldType
	Geometry *geom.Geometry

	Materials     []model.Material
	Labels        []Assignment
	Boundaries    []model.BoundarySpec
	BoundaryPicks []Assignment
	Metrics       []model.Metric
}

// NewModel returns an empty electrostatic model.
func NewModel() *Model {
	return &Model{Field: model.Electrostatic, Geometry: geom.New()}
}

// Build consolidates a copy of the geometry and registers everything with a
// new snapshot for p. Boundary conditions take the model field.
func (m *Model) Build(p platform.Platform, opts ...snapshot.Option) (*snapshot.Snapshot, error) {
	if problem := p.Metadata().Problem; problem != m.Field {
		return nil, fmt.Errorf("%w: model is %s, platform is %s", snapshot.ErrFieldMismatch, m.Field, problem)
	}

	g := m.Geometry.Clone()
	stats, err := g.Consolidate()
	if err != nil {
		return nil, err
	}
	logging.Logger().Debug("consolidated model geometry",
		"lines", stats.LinesAfter, "arcs", stats.ArcsAfter, "cuts", stats.Cuts)

	s := snapshot.New(p, opts...)
	s.AddGeometry(g)

	for _, mat := range m.Materials {
		mat.Assigned = nil
		if err := s.AddMaterial(mat); err != nil {
			return nil, err
		}
	}
	for _, a := range m.Labels {
		if err := s.AssignMaterial(a.X, a.Y, a.Name); err != nil {
			return nil, err
		}
	}
	for _, spec := range m.Boundaries {
		spec.Field = m.Field
		bc, err := spec.Build()
		if err != nil {
			return nil, err
		}
		if err := s.AddBoundaryCondition(bc); err != nil {
			return nil, err
		}
	}
	for _, a := range m.BoundaryPicks {
		if err := s.AssignBoundaryCondition(a.X, a.Y, a.Name); err != nil {
			return nil, fmt.Errorf("assign %q at (%g, %g): %w", a.Name, a.X, a.Y, err)
		}
	}
	for _, metric := range m.Metrics {
		if err := s.AddPostprocessing(metric); err != nil {
			return nil, err
		}
	}
	return s, nil
}
