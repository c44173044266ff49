// Package importer reads drawings from CAD and vector formats into a
// geom.Geometry. Each reader builds a fresh container and returns it only
// when the whole input parsed; a failed import never yields partial
// geometry.
package importer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/adze/pkg/geom"
	"github.com/chazu/adze/pkg/logging"
)

var (
	ErrUnsupportedFormat = errors.New("importer: unsupported file format")
	ErrMalformed         = errors.New("importer: malformed input")
)

// ReadFile picks a reader by file extension: .dxf, .svg or .geo.
func ReadFile(path string) (*geom.Geometry, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".dxf" && ext != ".svg" && ext != ".geo" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	defer f.Close()

	var g *geom.Geometry
	switch ext {
	case ".dxf":
		g, err = ReadDXF(f)
	case ".svg":
		g, err = ReadSVG(f)
	case ".geo":
		g, err = ReadGEO(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.Logger().Info("imported geometry", "path", path,
		"lines", len(g.Lines), "arcs", len(g.Arcs), "beziers", len(g.Beziers))
	return g, nil
}
