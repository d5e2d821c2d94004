// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// RawEvent is one event under reconstruction.
//
// Quality and TrackQuality follow the same convention as every scorer of
// the reconstruction: lower is better.
type RawEvent struct {
	ID    uint64
	Time  float64
	RESEs []RESE

	// Seq is the reconstructed sequence, as indices into RESEs.
	// Seq[0] is the start point of the event.
	Seq []int

	Type         Type
	Quality      float64 // Compton sequence quality
	TrackQuality float64 // electron track quality
	Escaped      float64 // escaped energy recovered by the fit
	Reason       Reason
	Flags        Flags
	Decided      bool // a consistent interpretation was found

	Bad       bool   // flagged as bad upstream
	BadReason string // upstream explanation for Bad
}

// Clone returns a deep copy of the event.
func (evt *RawEvent) Clone() *RawEvent {
	if evt == nil {
		return nil
	}
	o := *evt
	if evt.RESEs != nil {
		o.RESEs = make([]RESE, len(evt.RESEs))
		for i, rese := range evt.RESEs {
			o.RESEs[i] = rese.Clone()
		}
	}
	if evt.Seq != nil {
		o.Seq = append([]int(nil), evt.Seq...)
	}
	return &o
}

// Energy returns the total deposited energy.
func (evt *RawEvent) Energy() float64 {
	sum := 0.0
	for _, rese := range evt.RESEs {
		sum += rese.Energy()
	}
	return sum
}

// NHits returns the number of raw hits owned by the event.
func (evt *RawEvent) NHits() int {
	n := 0
	for _, rese := range evt.RESEs {
		n += rese.NHits()
	}
	return n
}

// Hits returns a copy of all the raw hits of the event.
func (evt *RawEvent) Hits() []Hit {
	hits := make([]Hit, 0, evt.NHits())
	for _, rese := range evt.RESEs {
		hits = rese.appendHits(hits)
	}
	return hits
}

// LeverArm returns the largest distance between any two RESEs.
func (evt *RawEvent) LeverArm() float64 {
	max := 0.0
	for i := range evt.RESEs {
		pi := evt.RESEs[i].Pos()
		for j := i + 1; j < len(evt.RESEs); j++ {
			d := r3.Norm(r3.Sub(pi, evt.RESEs[j].Pos()))
			max = math.Max(max, d)
		}
	}
	return max
}

// Start returns the start point of the reconstructed sequence.
func (evt *RawEvent) Start() (RESE, bool) {
	if len(evt.Seq) == 0 {
		return RESE{}, false
	}
	return evt.RESEs[evt.Seq[0]], true
}

// Reject marks the event as rejected for the provided reason.
// The first rejection reason is kept.
func (evt *RawEvent) Reject(r Reason) {
	if evt.Reason != ReasonNone {
		return
	}
	evt.Reason = r
	evt.Decided = false
}

// Rejected returns whether the event was rejected.
func (evt *RawEvent) Rejected() bool { return evt.Reason != ReasonNone }

// Good returns whether the event was successfully reconstructed.
func (evt *RawEvent) Good() bool {
	return evt.Reason == ReasonNone && evt.Decided &&
		evt.Type != Unidentifiable && evt.Type != Bad && evt.Type != Unknown
}

// Score returns the combined score used to rank alternative
// interpretations of an event. Lower is better.
func (evt *RawEvent) Score() float64 {
	return evt.Quality + evt.TrackQuality
}

func (evt *RawEvent) String() string {
	return fmt.Sprintf(
		"RawEvent{id=%d type=%v resees=%d E=%.3f quality=%g reason=%v}",
		evt.ID, evt.Type, len(evt.RESEs), evt.Energy(), evt.Quality, evt.Reason,
	)
}

// Fprint writes a human readable description of the event to w.
func Fprint(w io.Writer, evt *RawEvent) {
	o := new(strings.Builder)
	fmt.Fprintf(o, "=== event %d ===\n", evt.ID)
	fmt.Fprintf(o, "time:      %g s\n", evt.Time)
	fmt.Fprintf(o, "type:      %v\n", evt.Type)
	fmt.Fprintf(o, "energy:    %.3f keV\n", evt.Energy())
	fmt.Fprintf(o, "quality:   %g\n", evt.Quality)
	if evt.TrackQuality != 0 {
		fmt.Fprintf(o, "track-qf:  %g\n", evt.TrackQuality)
	}
	if evt.Flags.Has(FlagEnergyRecovered) {
		fmt.Fprintf(o, "escaped:   %.3f keV\n", evt.Escaped)
	}
	if evt.Flags.Has(FlagLowConfidence) {
		fmt.Fprintf(o, "flags:     low-confidence\n")
	}
	if evt.Bad {
		fmt.Fprintf(o, "bad:       %s\n", evt.BadReason)
	}
	if evt.Rejected() {
		fmt.Fprintf(o, "rejected:  %v\n", evt.Reason)
	}
	fmt.Fprintf(o, "sequence:  %v\n", evt.Seq)
	for i, rese := range evt.RESEs {
		fmt.Fprintf(o, "  [%d] %v\n", i, rese)
		for _, elem := range rese.Elems {
			fmt.Fprintf(o, "        %v\n", elem)
		}
	}
	_, _ = io.WriteString(w, o.String())
}
