// Package results reads the metrics file a solver script writes after
// postprocessing. Every line is either "variable, x, y, value" for a point
// probe or "name, value" for a scalar such as an integral or a mesh count.
package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrMalformed is wrapped for lines that are neither shape.
var ErrMalformed = errors.New("results: malformed metrics line")

// PointValue is one probed field value.
type PointValue struct {
	Variable string
	X, Y     float64
	Value    float64
}

// Scalar is a named value with no location.
type Scalar struct {
	Name  string
	Value float64
}

// Results holds the lines of one metrics file in file order.
type Results struct {
	Points  []PointValue
	Scalars []Scalar
}

// Read parses a metrics stream. Blank lines are skipped.
func Read(r io.Reader) (*Results, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	res := &Results{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		line, _ := cr.FieldPos(0)
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}

		switch len(rec) {
		case 2:
			v, err := parseValue(rec[1])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
			}
			res.Scalars = append(res.Scalars, Scalar{Name: rec[0], Value: v})
		case 4:
			var nums [3]float64
			for i := range nums {
				if nums[i], err = parseValue(rec[i+1]); err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
				}
			}
			res.Points = append(res.Points, PointValue{Variable: rec[0], X: nums[0], Y: nums[1], Value: nums[2]})
		default:
			return nil, fmt.Errorf("%w: line %d: %d fields", ErrMalformed, line, len(rec))
		}
	}
	return res, nil
}

// ReadFile parses the metrics file at path.
func ReadFile(path string) (*Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	defer f.Close()
	return Read(f)
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q: %w", s, err)
	}
	return v, nil
}

// Scalar returns the first scalar called name.
func (r *Results) Scalar(name string) (float64, bool) {
	for _, s := range r.Scalars {
		if s.Name == name {
			return s.Value, true
		}
	}
	return 0, false
}

// Point returns the first probe of variable within tol of (x, y).
func (r *Results) Point(variable string, x, y, tol float64) (float64, bool) {
	for _, p := range r.Points {
		if p.Variable == variable && math.Hypot(p.X-x, p.Y-y) <= tol {
			return p.Value, true
		}
	}
	return 0, false
}

// Len is the number of parsed lines.
func (r *Results) Len() int { return len(r.Points) + len(r.Scalars) }
