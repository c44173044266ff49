package model

import (
	"errors"
	"fmt"
)

// ErrInvalidMaterial is wrapped by Material.Validate.
var ErrInvalidMaterial = errors.New("model: invalid material")

// Lamination describes how a magnetic material is laminated.
type Lamination int

const (
	NotLaminated Lamination = iota
	LaminatedInPlane
	MagnetWire
)

func (l Lamination) String() string {
	switch l {
	case NotLaminated:
		return "none"
	case LaminatedInPlane:
		return "inplane"
	case MagnetWire:
		return "magnetwire"
	default:
		return fmt.Sprintf("Lamination(%d)", int(l))
	}
}

// ParseLamination maps "", "none", "inplane" and "magnetwire".
func ParseLamination(s string) (Lamination, error) {
	switch s {
	case "", "none":
		return NotLaminated, nil
	case "inplane":
		return LaminatedInPlane, nil
	case "magnetwire":
		return MagnetWire, nil
	}
	return 0, fmt.Errorf("%w: unknown lamination %q", ErrInvalidMaterial, s)
}

// Material is a named set of physical properties plus the label points where
// it has been placed. Name is the registry key.
type Material struct {
	Name string

	MuR            float64 // relative permeability
	Epsilon        float64 // relative permittivity
	Conductivity   float64 // S/m
	Je             float64 // source current density, A/m^2
	Coercivity     float64 // A/m
	RemanenceAngle float64 // degrees
	ThermalCond    float64 // W/(m K)
	VolumeCharge   float64 // C/m^3 or W/m^3 depending on the field
	MeshSize       float64 // 0 lets the mesher choose

	// B/H curve for nonlinear magnetic materials; both empty or equal length.
	B, H []float64

	Lamination Lamination
	Thickness  float64 // lamination thickness, mm
	FillFactor float64
	Diameter   float64 // strand diameter, mm
	PhiHMax    float64 // hysteresis lag angle, degrees

	Assigned []Coord
}

// NewMaterial returns a material with vacuum-like defaults.
func NewMaterial(name string) Material {
	return Material{
		Name:        name,
		MuR:         1,
		Epsilon:     1,
		ThermalCond: 1,
		FillFactor:  1,
	}
}

// Assign records a label point for the material.
func (m *Material) Assign(x, y float64) {
	m.Assigned = append(m.Assigned, Coord{X: x, Y: y})
}

// Validate checks the properties that every solver relies on.
func (m Material) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMaterial)
	}
	if m.MuR <= 0 {
		return fmt.Errorf("%w: %s: relative permeability must be positive, got %g", ErrInvalidMaterial, m.Name, m.MuR)
	}
	if m.Epsilon <= 0 {
		return fmt.Errorf("%w: %s: relative permittivity must be positive, got %g", ErrInvalidMaterial, m.Name, m.Epsilon)
	}
	if m.Conductivity < 0 {
		return fmt.Errorf("%w: %s: negative conductivity", ErrInvalidMaterial, m.Name)
	}
	if len(m.B) != len(m.H) {
		return fmt.Errorf("%w: %s: B and H curves differ in length (%d vs %d)", ErrInvalidMaterial, m.Name, len(m.B), len(m.H))
	}
	if m.FillFactor < 0 || m.FillFactor > 1 {
		return fmt.Errorf("%w: %s: fill factor %g outside [0, 1]", ErrInvalidMaterial, m.Name, m.FillFactor)
	}
	return nil
}

// Nonlinear reports whether the material carries a B/H curve.
func (m Material) Nonlinear() bool { return len(m.B) > 0 }
