// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-lpc/revan/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind is the kind of a reconstructed event sub-element.
type Kind uint8

const (
	KindHit     Kind = iota + 1 // a single raw hit
	KindCluster                 // hits merged into one interaction site
	KindTrack                   // an ordered charged-particle track
)

func (k Kind) String() string {
	switch k {
	case KindHit:
		return "hit"
	case KindCluster:
		return "cluster"
	case KindTrack:
		return "track"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// RESE is a reconstructed event sub-element: a single hit, a cluster of hits
// or a track. A RESE exclusively owns its sub-elements.
//
// The energy of a RESE is always the sum of the energies of its sub-elements.
// The elements of a track are ordered along the track, entry point first.
type RESE struct {
	ID    int
	Kind  Kind
	Hits  []Hit  // KindHit and KindCluster
	Elems []RESE // KindTrack
}

// NewHit creates a single-hit RESE.
func NewHit(id int, hit Hit) RESE {
	return RESE{ID: id, Kind: KindHit, Hits: []Hit{hit}}
}

// NewCluster creates a cluster RESE owning a copy of hits.
func NewCluster(id int, hits ...Hit) RESE {
	return RESE{ID: id, Kind: KindCluster, Hits: append([]Hit(nil), hits...)}
}

// NewTrack creates a track RESE owning deep copies of elems, kept in order.
func NewTrack(id int, elems ...RESE) RESE {
	trk := RESE{ID: id, Kind: KindTrack, Elems: make([]RESE, len(elems))}
	for i, elem := range elems {
		trk.Elems[i] = elem.Clone()
	}
	return trk
}

// Clone returns a deep copy of the RESE.
func (rese RESE) Clone() RESE {
	o := RESE{ID: rese.ID, Kind: rese.Kind}
	if rese.Hits != nil {
		o.Hits = append([]Hit(nil), rese.Hits...)
	}
	if rese.Elems != nil {
		o.Elems = make([]RESE, len(rese.Elems))
		for i, elem := range rese.Elems {
			o.Elems[i] = elem.Clone()
		}
	}
	return o
}

// IsTrack returns whether the RESE is a track.
func (rese RESE) IsTrack() bool { return rese.Kind == KindTrack }

// Energy returns the deposited energy.
func (rese RESE) Energy() float64 {
	sum := 0.0
	for _, hit := range rese.Hits {
		sum += hit.E
	}
	for _, elem := range rese.Elems {
		sum += elem.Energy()
	}
	return sum
}

// EnergyRes returns the energy resolution, summed in quadrature.
func (rese RESE) EnergyRes() float64 {
	sum := 0.0
	for _, hit := range rese.Hits {
		sum += hit.ERes * hit.ERes
	}
	for _, elem := range rese.Elems {
		v := elem.EnergyRes()
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Pos returns the position of the RESE: the hit position, the
// energy-weighted centroid of a cluster or the entry point of a track.
func (rese RESE) Pos() r3.Vec {
	switch {
	case len(rese.Elems) > 0:
		return rese.Elems[0].Pos()
	case len(rese.Hits) == 1:
		return rese.Hits[0].Pos
	case len(rese.Hits) == 0:
		return r3.Vec{}
	}

	var (
		sum  r3.Vec
		wsum = 0.0
	)
	for _, hit := range rese.Hits {
		sum = r3.Add(sum, r3.Scale(hit.E, hit.Pos))
		wsum += hit.E
	}
	if wsum <= 0 {
		sum = r3.Vec{}
		for _, hit := range rese.Hits {
			sum = r3.Add(sum, hit.Pos)
		}
		return r3.Scale(1/float64(len(rese.Hits)), sum)
	}
	return r3.Scale(1/wsum, sum)
}

// PosRes returns the position resolution of the RESE.
// For clusters, the per-hit resolutions are combined with the same weights
// as the centroid.
func (rese RESE) PosRes() r3.Vec {
	switch {
	case len(rese.Elems) > 0:
		return rese.Elems[0].PosRes()
	case len(rese.Hits) == 1:
		return rese.Hits[0].PosRes
	case len(rese.Hits) == 0:
		return r3.Vec{}
	}

	var (
		wsum = rese.Energy()
		n    = float64(len(rese.Hits))
		v    r3.Vec
	)
	for _, hit := range rese.Hits {
		w := 1 / n
		if wsum > 0 {
			w = hit.E / wsum
		}
		v.X += w * w * hit.PosRes.X * hit.PosRes.X
		v.Y += w * w * hit.PosRes.Y * hit.PosRes.Y
		v.Z += w * w * hit.PosRes.Z * hit.PosRes.Z
	}
	return r3.Vec{X: math.Sqrt(v.X), Y: math.Sqrt(v.Y), Z: math.Sqrt(v.Z)}
}

// Time returns the earliest time of the sub-elements.
func (rese RESE) Time() float64 {
	t := math.Inf(+1)
	for _, hit := range rese.Hits {
		t = math.Min(t, hit.Time)
	}
	for _, elem := range rese.Elems {
		t = math.Min(t, elem.Time())
	}
	if math.IsInf(t, +1) {
		return 0
	}
	return t
}

// Det returns the detector type of the RESE (of its entry point for tracks).
func (rese RESE) Det() geom.Type {
	switch {
	case len(rese.Elems) > 0:
		return rese.Elems[0].Det()
	case len(rese.Hits) > 0:
		return rese.Hits[0].Det
	}
	return geom.Unknown
}

// DetID returns the detector index of the RESE (of its entry point for tracks).
func (rese RESE) DetID() int {
	switch {
	case len(rese.Elems) > 0:
		return rese.Elems[0].DetID()
	case len(rese.Hits) > 0:
		return rese.Hits[0].DetID
	}
	return -1
}

// Guard returns whether any of the hits was recorded in a guard ring.
func (rese RESE) Guard() bool {
	for _, hit := range rese.Hits {
		if hit.Guard {
			return true
		}
	}
	for _, elem := range rese.Elems {
		if elem.Guard() {
			return true
		}
	}
	return false
}

// Dir returns the direction attached to the RESE: the initial direction of
// a track, or the direction reported by a direction-sensitive detector.
// The zero vector is returned when no direction is known.
func (rese RESE) Dir() r3.Vec {
	if len(rese.Elems) >= 2 {
		d := r3.Sub(rese.Elems[1].Pos(), rese.Elems[0].Pos())
		if r3.Norm(d) > 0 {
			return r3.Unit(d)
		}
		return r3.Vec{}
	}
	if len(rese.Elems) == 1 {
		return rese.Elems[0].Dir()
	}
	for _, hit := range rese.Hits {
		if r3.Norm(hit.Dir) > 0 {
			return r3.Unit(hit.Dir)
		}
	}
	return r3.Vec{}
}

// NHits returns the number of raw hits owned by the RESE.
func (rese RESE) NHits() int {
	n := len(rese.Hits)
	for _, elem := range rese.Elems {
		n += elem.NHits()
	}
	return n
}

// AllHits returns a copy of all the raw hits owned by the RESE.
func (rese RESE) AllHits() []Hit {
	hits := make([]Hit, 0, rese.NHits())
	return rese.appendHits(hits)
}

func (rese RESE) appendHits(hits []Hit) []Hit {
	hits = append(hits, rese.Hits...)
	for _, elem := range rese.Elems {
		hits = elem.appendHits(hits)
	}
	return hits
}

func (rese RESE) String() string {
	o := new(strings.Builder)
	pos := rese.Pos()
	fmt.Fprintf(o, "%s[%d]{det=%v E=%.3f pos=(%.4f, %.4f, %.4f)",
		rese.Kind, rese.ID, rese.Det(), rese.Energy(), pos.X, pos.Y, pos.Z,
	)
	if rese.Kind == KindCluster {
		fmt.Fprintf(o, " hits=%d", len(rese.Hits))
	}
	if rese.Kind == KindTrack {
		fmt.Fprintf(o, " elems=%d", len(rese.Elems))
	}
	o.WriteString("}")
	return o.String()
}
