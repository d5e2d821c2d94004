// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event holds the data model of the reconstruction: raw hits,
// reconstructed event sub-elements (RESEs) and raw events.
//
// Energies are expressed in keV, lengths in cm and times in seconds.
package event // import "github.com/go-lpc/revan/event"

import (
	"fmt"

	"github.com/go-lpc/revan/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Hit is one detected interaction point.
type Hit struct {
	Pos    r3.Vec    // position
	PosRes r3.Vec    // position resolution, per axis
	E      float64   // deposited energy
	ERes   float64   // energy resolution
	Time   float64   // time stamp
	Det    geom.Type // detector type
	DetID  int       // index of the detector in the geometry
	Guard  bool      // hit is in a guard ring
	SimID  int       // ground-truth interaction ID (0: none)
	Dir    r3.Vec    // electron direction, for direction-sensitive detectors
}

func (hit Hit) String() string {
	return fmt.Sprintf(
		"Hit{det=%v/%d pos=(%.4f, %.4f, %.4f) E=%.3f±%.3f t=%g}",
		hit.Det, hit.DetID,
		hit.Pos.X, hit.Pos.Y, hit.Pos.Z,
		hit.E, hit.ERes, hit.Time,
	)
}

// less is the canonical ordering of hits.
func (hit Hit) less(o Hit) bool {
	switch {
	case hit.DetID != o.DetID:
		return hit.DetID < o.DetID
	case hit.Pos.X != o.Pos.X:
		return hit.Pos.X < o.Pos.X
	case hit.Pos.Y != o.Pos.Y:
		return hit.Pos.Y < o.Pos.Y
	case hit.Pos.Z != o.Pos.Z:
		return hit.Pos.Z < o.Pos.Z
	case hit.E != o.E:
		return hit.E < o.E
	}
	return hit.Time < o.Time
}

// LessHit reports whether a sorts before b in the canonical hit order:
// detector, position, energy then time.
func LessHit(a, b Hit) bool { return a.less(b) }
