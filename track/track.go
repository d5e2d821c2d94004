// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package track reconstructs charged-particle tracks in the tracking
// detectors: minimum ionizing particles, pair-production vertices and
// Compton recoil electrons.
package track // import "github.com/go-lpc/revan/track"

import (
	"fmt"
	"sort"

	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
)

// Tracker identifies electron tracks among the sub-elements of an event.
//
// A Tracker holds no per-event state and may be shared between goroutines.
type Tracker struct {
	cfg   config.Tracking
	geo   *geom.Geometry
	dets  []bool // tracking-capable detectors, by geometry index
	score Scorer
}

// New creates a new tracker.
func New(cfg config.Tracking, geo *geom.Geometry) (*Tracker, error) {
	if geo == nil {
		return nil, fmt.Errorf("track: tracking needs a geometry")
	}

	score, err := NewScorer(cfg)
	if err != nil {
		return nil, err
	}

	trk := &Tracker{
		cfg:   cfg,
		geo:   geo,
		dets:  make([]bool, geo.Len()),
		score: score,
	}

	switch len(cfg.Detectors) {
	case 0:
		for i := range trk.dets {
			trk.dets[i] = geo.Tracking(i)
		}
	default:
		for _, name := range cfg.Detectors {
			i, ok := geo.Index(name)
			if !ok {
				return nil, fmt.Errorf("track: unknown tracking detector %q: %w", name, config.ErrConfig)
			}
			trk.dets[i] = true
		}
	}

	return trk, nil
}

// Scorer returns the scorer used to rank Compton electron tracks.
func (trk *Tracker) Scorer() Scorer { return trk.score }

// Track reconstructs the tracks of evt and returns the alternative
// interpretations of the event, best first.
// evt is not modified.
func (trk *Tracker) Track(evt *event.RawEvent) []*event.RawEvent {
	var (
		ids    = trk.trackerElems(evt)
		layers = trk.layers(evt, ids)
	)

	if len(ids) < 2 {
		return []*event.RawEvent{evt.Clone()}
	}

	if trk.cfg.SearchMIPs {
		if out := trk.searchMIP(evt, ids, layers); out != nil {
			return []*event.RawEvent{out}
		}
	}

	if trk.cfg.SearchPairs {
		if out := trk.searchPair(evt, layers); out != nil {
			return []*event.RawEvent{out}
		}
	}

	if trk.cfg.SearchComptons {
		return trk.searchComptons(evt, ids)
	}

	return []*event.RawEvent{evt.Clone()}
}

// trackerElems returns the indices of the RESEs lying in a
// tracking-capable detector.
func (trk *Tracker) trackerElems(evt *event.RawEvent) []int {
	var ids []int
	for i, rese := range evt.RESEs {
		if rese.IsTrack() {
			continue
		}
		det := rese.DetID()
		if det < 0 || det >= len(trk.dets) || !trk.dets[det] {
			continue
		}
		ids = append(ids, i)
	}
	return ids
}

// layer is one detector layer holding tracker elements.
type layer struct {
	det   int
	idx   int
	z     float64
	elems []int // indices into the event RESEs
}

// layers groups the provided elements by detector layer, top layer first.
func (trk *Tracker) layers(evt *event.RawEvent, ids []int) []layer {
	type key struct{ det, idx int }
	var (
		set = make(map[key]int)
		out []layer
	)
	for _, i := range ids {
		var (
			pos = evt.RESEs[i].Pos()
			det = evt.RESEs[i].DetID()
			k   = key{det, trk.geo.Layer(det, pos)}
		)
		j, ok := set[k]
		if !ok {
			j = len(out)
			set[k] = j
			out = append(out, layer{det: k.det, idx: k.idx})
		}
		out[j].elems = append(out[j].elems, i)
	}
	for i := range out {
		z := 0.0
		for _, j := range out[i].elems {
			z += evt.RESEs[j].Pos().Z
		}
		out[i].z = z / float64(len(out[i].elems))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].z != out[j].z {
			return out[i].z > out[j].z
		}
		if out[i].det != out[j].det {
			return out[i].det < out[j].det
		}
		return out[i].idx > out[j].idx
	})
	return out
}

// rebuild returns a copy of evt where each group of RESE indices is
// replaced by a track made of these RESEs, in order.
// The untouched RESEs come first, followed by the tracks.
func rebuild(evt *event.RawEvent, tracks [][]int) (*event.RawEvent, []int) {
	out := evt.Clone()
	used := make([]bool, len(evt.RESEs))
	for _, trk := range tracks {
		for _, i := range trk {
			used[i] = true
		}
	}

	out.RESEs = out.RESEs[:0]
	for i, rese := range evt.RESEs {
		if used[i] {
			continue
		}
		rese = rese.Clone()
		rese.ID = len(out.RESEs) + 1
		out.RESEs = append(out.RESEs, rese)
	}

	idx := make([]int, len(tracks))
	for k, trk := range tracks {
		elems := make([]event.RESE, len(trk))
		for j, i := range trk {
			elems[j] = evt.RESEs[i]
		}
		idx[k] = len(out.RESEs)
		out.RESEs = append(out.RESEs, event.NewTrack(len(out.RESEs)+1, elems...))
	}
	out.Seq = nil
	return out, idx
}
