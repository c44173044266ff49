// Package model holds the physics-side vocabulary shared by the registry and
// the solver platforms: field types, materials, boundary conditions and
// postprocessing metrics. It knows nothing about geometry consolidation or
// script formats.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownField is returned by ParseFieldType for unrecognised names.
var ErrUnknownField = errors.New("model: unknown field type")

// FieldType identifies the physical problem a model is solved for.
type FieldType int

const (
	Electrostatic FieldType = iota
	Magnetic
	Heat
	Current
)

func (f FieldType) String() string {
	switch f {
	case Electrostatic:
		return "electrostatic"
	case Magnetic:
		return "magnetic"
	case Heat:
		return "heat"
	case Current:
		return "current"
	default:
		return fmt.Sprintf("FieldType(%d)", int(f))
	}
}

// ParseFieldType accepts the names produced by String, case-insensitively.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "electrostatic":
		return Electrostatic, nil
	case "magnetic":
		return Magnetic, nil
	case "heat":
		return Heat, nil
	case "current":
		return Current, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownField)
}

// Fields lists every field type in declaration order.
func Fields() []FieldType {
	return []FieldType{Electrostatic, Magnetic, Heat, Current}
}

// Coord is a 2D point in model units, used for label positions and probe
// points.
type Coord struct {
	X, Y float64
}

func (c Coord) String() string { return fmt.Sprintf("(%g, %g)", c.X, c.Y) }
