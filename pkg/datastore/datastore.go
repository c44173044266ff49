// Package datastore archives the inputs of a model run: the evaluated model,
// its source and parameters. An archive rebuilds the exact snapshot that was
// solved, including primitive ids, without re-running the DSL.
package datastore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chazu/adze/pkg/engine"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Version is the archive format written by Save.
const Version = 1

var (
	ErrVersion = errors.New("datastore: unsupported archive version")
	ErrEmpty   = errors.New("datastore: archive has no model")
)

// Archive is one saved model.
type Archive struct {
	Version int                `msgpack:"version"`
	ID      uuid.UUID          `msgpack:"id"`
	Created time.Time          `msgpack:"created"`
	Source  string             `msgpack:"source"`
	Params  map[string]float64 `msgpack:"params"`
	Model   *engine.Model      `msgpack:"model"`
}

// New wraps m for saving.
func New(m *engine.Model, source string, params map[string]float64) *Archive {
	return &Archive{
		Version: Version,
		ID:      uuid.New(),
		Created: time.Now().UTC(),
		Source:  source,
		Params:  params,
		Model:   m,
	}
}

// Save encodes a to w.
func Save(w io.Writer, a *Archive) error {
	if a.Model == nil {
		return ErrEmpty
	}
	if err := msgpack.NewEncoder(w).Encode(a); err != nil {
		return fmt.Errorf("datastore: encode: %w", err)
	}
	return nil
}

// Load decodes an archive written by Save.
func Load(r io.Reader) (*Archive, error) {
	var a Archive
	if err := msgpack.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("datastore: decode: %w", err)
	}
	if a.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, a.Version)
	}
	if a.Model == nil || a.Model.Geometry == nil {
		return nil, ErrEmpty
	}
	return &a, nil
}

// SaveFile writes a to path.
func SaveFile(path string, a *Archive) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("datastore: %w", err)
	}
	if err := Save(f, a); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads the archive at path.
func LoadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datastore: %w", err)
	}
	defer f.Close()
	return Load(f)
}
