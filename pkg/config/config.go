// Package config loads the adze YAML configuration: geometry tolerance,
// logging, the default solver platform with its options, and where runs
// are written and stored.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/chazu/adze/pkg/logging"
	"github.com/chazu/adze/pkg/model"
	"github.com/chazu/adze/pkg/platform"
	"github.com/chazu/adze/pkg/platform/agros2d"
	"github.com/chazu/adze/pkg/platform/femm"
	"github.com/chazu/adze/pkg/platform/ngsolve"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Platforms lists the accepted platform names.
var Platforms = []string{"femm", "agros2d", "ngsolve"}

// Config is the root configuration document.
type Config struct {
	Epsilon     float64 `yaml:"epsilon"`
	LogLevel    string  `yaml:"log_level"`
	Platform    string  `yaml:"platform"`
	Coordinates string  `yaml:"coordinates"`
	Timeout     string  `yaml:"timeout"`
	Workers     int     `yaml:"workers"`
	OutputDir   string  `yaml:"output_dir"`
	StorePath   string  `yaml:"store_path"`

	// Solvers overrides the command line per platform name.
	Solvers map[string]SolverConfig `yaml:"solvers,omitempty"`

	Femm    FemmConfig    `yaml:"femm"`
	Agros2D Agros2DConfig `yaml:"agros2d"`
	NGSolve NGSolveConfig `yaml:"ngsolve"`
}

// SolverConfig is a command template; "{script}" in Args marks the script.
type SolverConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// FemmConfig holds FEMM problem settings.
type FemmConfig struct {
	Unit        string  `yaml:"unit"`
	Frequency   float64 `yaml:"frequency"`
	Depth       float64 `yaml:"depth"`
	MinAngle    float64 `yaml:"min_angle"`
	SmartMesh   bool    `yaml:"smart_mesh"`
	ElementSize float64 `yaml:"element_size"`
}

// Agros2DConfig holds Agros2D problem settings.
type Agros2DConfig struct {
	UnitScale    float64 `yaml:"unit_scale"`
	Solver       string  `yaml:"solver"`
	MatrixSolver string  `yaml:"matrix_solver"`
	Refinements  int     `yaml:"refinements"`
	PolyOrder    int     `yaml:"polyorder"`
	Adaptivity   string  `yaml:"adaptivity"`
	MeshType     string  `yaml:"mesh_type"`
}

// NGSolveConfig holds NGSolve discretization settings.
type NGSolveConfig struct {
	UnitScale float64 `yaml:"unit_scale"`
	MaxH      float64 `yaml:"maxh"`
	Order     int     `yaml:"order"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	fo := femm.DefaultOptions()
	ao := agros2d.DefaultOptions()
	no := ngsolve.DefaultOptions()
	return &Config{
		Epsilon:     1e-5,
		LogLevel:    "info",
		Platform:    "femm",
		Coordinates: "planar",
		Timeout:     platform.DefaultTimeout.String(),
		Workers:     2,
		OutputDir:   "./out",
		StorePath:   "./out/runs.db",
		Femm: FemmConfig{
			Unit:        "meters",
			Depth:       fo.Depth,
			MinAngle:    fo.MinAngle,
			SmartMesh:   fo.SmartMesh,
			ElementSize: fo.ElementSize,
		},
		Agros2D: Agros2DConfig{
			UnitScale:    1,
			Solver:       ao.Solver,
			MatrixSolver: ao.MatrixSolver,
			Refinements:  ao.Refinements,
			PolyOrder:    ao.PolyOrder,
			Adaptivity:   ao.Adaptivity,
			MeshType:     ao.MeshType,
		},
		NGSolve: NGSolveConfig{
			UnitScale: 1,
			MaxH:      no.MaxH,
			Order:     no.Order,
		},
	}
}

// ============================================================
// Loading
// ============================================================

// Load reads the file at path over the defaults. Relative directories are
// resolved against the file's directory, then environment overrides apply.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	c.resolvePaths(filepath.Dir(path))
	c.applyEnvironmentOverrides()
	return c, nil
}

// Parse decodes a YAML document over the defaults. Unknown keys are errors.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return c, nil
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides lets ADZE_* variables override file values.
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("ADZE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ADZE_PLATFORM"); v != "" {
		c.Platform = v
	}
	if v := os.Getenv("ADZE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("ADZE_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
}

func (c *Config) resolvePaths(dir string) {
	if c.OutputDir != "" && !filepath.IsAbs(c.OutputDir) {
		c.OutputDir = filepath.Join(dir, c.OutputDir)
	}
	if c.StorePath != "" && !filepath.IsAbs(c.StorePath) {
		c.StorePath = filepath.Join(dir, c.StorePath)
	}
}

// ============================================================
// Validation
// ============================================================

// Validate checks the settings shared by every command. Platform options
// are checked by the platform constructors in NewPlatform.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}
	if c.Epsilon <= 0 {
		return bad("epsilon must be positive, got %g", c.Epsilon)
	}
	if c.Workers < 1 {
		return bad("workers must be at least 1, got %d", c.Workers)
	}
	if !slices.Contains(Platforms, c.Platform) {
		return bad("platform can be %v, got %q", Platforms, c.Platform)
	}
	if _, err := platform.ParseCoordinates(c.Coordinates); err != nil {
		return bad("%v", err)
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil {
		return bad("timeout: %v", err)
	} else if d <= 0 {
		return bad("timeout must be positive, got %s", d)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return bad("%v", err)
	}
	for name, s := range c.Solvers {
		if !slices.Contains(Platforms, name) {
			return bad("solver for unknown platform %q", name)
		}
		if s.Command == "" {
			return bad("solver %q has no command", name)
		}
	}
	return nil
}

// TimeoutDuration returns the solver timeout; Validate has checked it.
func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return platform.DefaultTimeout
	}
	return d
}

// EnsureDirectories creates the output directory and the store's parent.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.OutputDir}
	if c.StorePath != "" {
		dirs = append(dirs, filepath.Dir(c.StorePath))
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", d, err)
		}
	}
	return nil
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	return logging.New(c.LogLevel, w)
}

// ============================================================
// Platforms
// ============================================================

// NewPlatform builds a fresh platform named by c.Platform for field. Each
// snapshot needs its own: platforms record labels during export.
func (c *Config) NewPlatform(field model.FieldType, scriptName string) (platform.Platform, error) {
	coords, err := platform.ParseCoordinates(c.Coordinates)
	if err != nil {
		return nil, err
	}
	meta := platform.NewMetadata(field, scriptName)
	meta.Coordinates = coords

	switch c.Platform {
	case "femm":
		opts := femm.DefaultOptions()
		opts.Frequency = c.Femm.Frequency
		opts.Depth = c.Femm.Depth
		opts.MinAngle = c.Femm.MinAngle
		opts.SmartMesh = c.Femm.SmartMesh
		opts.ElementSize = c.Femm.ElementSize
		opts.Executor = c.executor(opts.Executor)
		meta.Unit = c.Femm.Unit
		return femm.New(meta, opts)
	case "agros2d":
		opts := agros2d.DefaultOptions()
		opts.Solver = c.Agros2D.Solver
		opts.MatrixSolver = c.Agros2D.MatrixSolver
		opts.Refinements = c.Agros2D.Refinements
		opts.PolyOrder = c.Agros2D.PolyOrder
		opts.Adaptivity = c.Agros2D.Adaptivity
		opts.MeshType = c.Agros2D.MeshType
		opts.Executor = c.executor(opts.Executor)
		meta.UnitScale = c.Agros2D.UnitScale
		return agros2d.New(meta, opts)
	case "ngsolve":
		opts := ngsolve.DefaultOptions()
		opts.MaxH = c.NGSolve.MaxH
		opts.Order = c.NGSolve.Order
		opts.Executor = c.executor(opts.Executor)
		meta.UnitScale = c.NGSolve.UnitScale
		return ngsolve.New(meta, opts)
	}
	return nil, fmt.Errorf("%w: platform can be %v, got %q", ErrInvalid, Platforms, c.Platform)
}

// executor applies the configured command template and timeout to def.
func (c *Config) executor(def platform.Executor) platform.Executor {
	if s, ok := c.Solvers[c.Platform]; ok {
		def.Command = s.Command
		def.Args = slices.Clone(s.Args)
	}
	def.Timeout = c.TimeoutDuration()
	return def
}
