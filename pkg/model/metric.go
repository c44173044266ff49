package model

import (
	"errors"
	"fmt"
)

// ErrInvalidMetric is returned for malformed postprocessing requests.
var ErrInvalidMetric = errors.New("model: invalid metric")

// MetricKind selects what a postprocessing step extracts.
type MetricKind int

const (
	PointValue MetricKind = iota
	MeshInfo
	Integration
	SaveImage
)

func (k MetricKind) String() string {
	switch k {
	case PointValue:
		return "point_value"
	case MeshInfo:
		return "mesh_info"
	case Integration:
		return "integration"
	case SaveImage:
		return "saveimage"
	default:
		return fmt.Sprintf("MetricKind(%d)", int(k))
	}
}

// Metric is one postprocessing step. Variable names the quantity (Bx,
// Energy, ...); Points are the probe point for PointValue or the block
// labels to integrate over for Integration; Path is the image stem for
// SaveImage.
type Metric struct {
	Kind     MetricKind
	Variable string
	Points   []Coord
	Path     string
}

// NewPointValue probes variable at (x, y).
func NewPointValue(variable string, x, y float64) Metric {
	return Metric{Kind: PointValue, Variable: variable, Points: []Coord{{X: x, Y: y}}}
}

// NewMeshInfo reports node and element counts.
func NewMeshInfo() Metric { return Metric{Kind: MeshInfo} }

// NewIntegration integrates variable over the blocks containing points.
func NewIntegration(variable string, points ...Coord) Metric {
	return Metric{Kind: Integration, Variable: variable, Points: points}
}

// Validate checks the shape of the request; platforms check the variable.
func (m Metric) Validate() error {
	switch m.Kind {
	case PointValue:
		if m.Variable == "" || len(m.Points) != 1 {
			return fmt.Errorf("%w: point_value needs a variable and exactly one point", ErrInvalidMetric)
		}
	case Integration:
		if m.Variable == "" {
			return fmt.Errorf("%w: integration needs a variable", ErrInvalidMetric)
		}
	case SaveImage:
		if m.Path == "" {
			return fmt.Errorf("%w: saveimage needs a path", ErrInvalidMetric)
		}
	case MeshInfo:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidMetric, m.Kind)
	}
	return nil
}
