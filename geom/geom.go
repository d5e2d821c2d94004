// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package geom describes the detector geometry of an instrument, as seen by
// the event reconstruction: named detectors with a type, a sensitive volume,
// a voxel (strip/pixel) pitch and tracking/trigger capabilities.
//
// A Geometry is read-only once built and may be shared between goroutines.
package geom // import "github.com/go-lpc/revan/geom"

import (
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Detector describes one named sensitive detector.
type Detector struct {
	Name string `yaml:"name"`
	Type Type   `yaml:"type"`

	// Min and Max delimit the sensitive volume (cm).
	Min r3.Vec `yaml:"min"`
	Max r3.Vec `yaml:"max"`

	// Voxel is the voxel pitch along each axis (cm).
	// A zero component means the axis is not discretized.
	Voxel r3.Vec `yaml:"voxel"`

	Tracking bool `yaml:"tracking"` // electron tracking is possible in this detector
	Trigger  bool `yaml:"trigger"`  // detector may raise an event trigger
}

// Contains returns whether pos lies inside the sensitive volume of the detector.
func (det Detector) Contains(pos r3.Vec) bool {
	return det.Min.X <= pos.X && pos.X <= det.Max.X &&
		det.Min.Y <= pos.Y && pos.Y <= det.Max.Y &&
		det.Min.Z <= pos.Z && pos.Z <= det.Max.Z
}

func (det Detector) validate() error {
	if det.Name == "" {
		return fmt.Errorf("geom: detector with empty name")
	}
	if !det.Type.Valid() {
		return fmt.Errorf("geom: detector %q has invalid type %d", det.Name, det.Type)
	}
	if det.Min.X > det.Max.X || det.Min.Y > det.Max.Y || det.Min.Z > det.Max.Z {
		return fmt.Errorf("geom: detector %q has an inverted volume (min=%v, max=%v)",
			det.Name, det.Min, det.Max,
		)
	}
	if det.Voxel.X < 0 || det.Voxel.Y < 0 || det.Voxel.Z < 0 {
		return fmt.Errorf("geom: detector %q has a negative voxel size %v", det.Name, det.Voxel)
	}
	return nil
}

// Geometry is the read-only oracle queried by the reconstruction stages.
type Geometry struct {
	Name      string     `yaml:"name"`
	Detectors []Detector `yaml:"detectors"`

	index map[string]int
}

// New creates a new geometry from the provided list of detectors.
func New(name string, dets []Detector) (*Geometry, error) {
	geo := &Geometry{
		Name:      name,
		Detectors: append([]Detector(nil), dets...),
	}
	err := geo.init()
	if err != nil {
		return nil, err
	}
	return geo, nil
}

// Load reads a YAML geometry description from the named file.
func Load(fname string) (*Geometry, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("geom: could not open geometry file: %w", err)
	}
	defer f.Close()

	geo, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("geom: could not read geometry %q: %w", fname, err)
	}
	return geo, nil
}

// Read decodes a YAML geometry description from r.
func Read(r io.Reader) (*Geometry, error) {
	var geo Geometry
	err := yaml.NewDecoder(r).Decode(&geo)
	if err != nil {
		return nil, fmt.Errorf("geom: could not decode geometry: %w", err)
	}
	err = geo.init()
	if err != nil {
		return nil, err
	}
	return &geo, nil
}

// Write encodes the geometry as YAML into w.
func (geo *Geometry) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	err := enc.Encode(geo)
	if err != nil {
		return fmt.Errorf("geom: could not encode geometry: %w", err)
	}
	return enc.Close()
}

func (geo *Geometry) init() error {
	if len(geo.Detectors) == 0 {
		return fmt.Errorf("geom: geometry %q has no detector", geo.Name)
	}
	geo.index = make(map[string]int, len(geo.Detectors))
	for i, det := range geo.Detectors {
		err := det.validate()
		if err != nil {
			return err
		}
		if _, dup := geo.index[det.Name]; dup {
			return fmt.Errorf("geom: duplicate detector name %q", det.Name)
		}
		geo.index[det.Name] = i
	}
	return nil
}

// Len returns the number of detectors.
func (geo *Geometry) Len() int { return len(geo.Detectors) }

// Detector returns the i-th detector.
func (geo *Geometry) Detector(i int) Detector { return geo.Detectors[i] }

// Index returns the index of the named detector.
func (geo *Geometry) Index(name string) (int, bool) {
	i, ok := geo.index[name]
	return i, ok
}

// Locate returns the index of the first detector containing pos.
func (geo *Geometry) Locate(pos r3.Vec) (int, bool) {
	for i, det := range geo.Detectors {
		if det.Contains(pos) {
			return i, true
		}
	}
	return -1, false
}

// TypeAt returns the type of the detector containing pos, or Unknown.
func (geo *Geometry) TypeAt(pos r3.Vec) Type {
	i, ok := geo.Locate(pos)
	if !ok {
		return Unknown
	}
	return geo.Detectors[i].Type
}

// Tracking returns whether electron tracking is possible in detector i.
func (geo *Geometry) Tracking(i int) bool {
	if i < 0 || i >= len(geo.Detectors) {
		return false
	}
	return geo.Detectors[i].Tracking
}

// Trigger returns whether detector i may raise a trigger.
func (geo *Geometry) Trigger(i int) bool {
	if i < 0 || i >= len(geo.Detectors) {
		return false
	}
	return geo.Detectors[i].Trigger
}

// HasTrigger returns whether at least one detector is flagged as a trigger.
func (geo *Geometry) HasTrigger() bool {
	for _, det := range geo.Detectors {
		if det.Trigger {
			return true
		}
	}
	return false
}

// Voxel returns the voxel indices of pos inside detector i.
// Non-discretized axes always yield a zero index.
func (geo *Geometry) Voxel(i int, pos r3.Vec) [3]int {
	var (
		det = geo.Detectors[i]
		idx = func(v, min, pitch float64) int {
			if pitch <= 0 {
				return 0
			}
			return int(math.Floor((v - min) / pitch))
		}
	)
	return [3]int{
		idx(pos.X, det.Min.X, det.Voxel.X),
		idx(pos.Y, det.Min.Y, det.Voxel.Y),
		idx(pos.Z, det.Min.Z, det.Voxel.Z),
	}
}

// Layer returns the layer index of pos inside detector i.
// Layers are stacked along z, the lowest layer has index 0.
func (geo *Geometry) Layer(i int, pos r3.Vec) int {
	return geo.Voxel(i, pos)[2]
}

// Adjacent returns whether two positions inside detector i are voxel
// neighbors for the requested neighborhood level (see ValidLevel).
//
// When the depth axis of the detector is not discretized, the depth
// coordinates must agree within sigma times their combined resolution.
func (geo *Geometry) Adjacent(i int, pa, ra, pb, rb r3.Vec, level int, sigma float64) bool {
	var (
		det = geo.Detectors[i]
		va  = geo.Voxel(i, pa)
		vb  = geo.Voxel(i, pb)
		dx  = abs(va[0] - vb[0])
		dy  = abs(va[1] - vb[1])
	)

	if det.Voxel.Z > 0 {
		if va[2] != vb[2] {
			return false
		}
	} else {
		dz := math.Abs(pa.Z - pb.Z)
		res := math.Hypot(ra.Z, rb.Z)
		if dz > sigma*res {
			return false
		}
	}

	return neighbors(dx, dy, level)
}

// ValidLevel returns whether level is a supported neighborhood level.
//
//   - 4:  sides (von Neumann, r=1)
//   - 8:  sides and corners (Moore, r=1)
//   - 12: von Neumann, r=2
//   - 20: 5x5 square without its corners
//   - 24: 5x5 square
func ValidLevel(level int) bool {
	switch level {
	case 4, 8, 12, 20, 24:
		return true
	}
	return false
}

func neighbors(dx, dy, level int) bool {
	if dx == 0 && dy == 0 {
		return true
	}
	switch level {
	case 4:
		return dx+dy <= 1
	case 8:
		return dx <= 1 && dy <= 1
	case 12:
		return dx+dy <= 2
	case 20:
		return dx <= 2 && dy <= 2 && !(dx == 2 && dy == 2)
	case 24:
		return dx <= 2 && dy <= 2
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
