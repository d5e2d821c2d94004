// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package track

import (
	"sort"

	"github.com/go-lpc/revan/event"
	"gonum.org/v1/gonum/spatial/r3"
)

type ordering struct {
	seq   []int // indices into the event RESEs, entry point first
	score float64
}

// less orders by score then lexicographically by sequence.
func (o ordering) less(v ordering) bool {
	if o.score != v.score {
		return o.score < v.score
	}
	for i := range o.seq {
		if o.seq[i] != v.seq[i] {
			return o.seq[i] < v.seq[i]
		}
	}
	return false
}

// searchComptons builds Compton recoil electron tracks out of chains of
// connected tracker elements and returns one alternative interpretation
// per retained ordering.
func (trk *Tracker) searchComptons(evt *event.RawEvent, ids []int) []*event.RawEvent {
	var (
		keep = trk.cfg.NSequencesToKeep
		per  [][]ordering
	)
	if keep < 1 {
		keep = 1
	}

	for _, comp := range trk.components(evt, ids) {
		if len(comp) < 2 || len(comp) > trk.cfg.MaxTrackElements {
			continue
		}
		ords := trk.orderings(evt, comp)
		if len(ords) == 0 {
			out := evt.Clone()
			out.Reject(event.ReasonBadTrack)
			return []*event.RawEvent{out}
		}
		sort.Slice(ords, func(i, j int) bool { return ords[i].less(ords[j]) })
		if len(ords) > keep {
			ords = ords[:keep]
		}
		if trk.cfg.RejectPurelyAmbiguous && keep > 1 && ambiguous(ords) {
			out := evt.Clone()
			out.Reject(event.ReasonAmbiguousTrack)
			return []*event.RawEvent{out}
		}
		per = append(per, ords)
	}

	if len(per) == 0 {
		return []*event.RawEvent{evt.Clone()}
	}

	nalt := 0
	for _, ords := range per {
		if len(ords) > nalt {
			nalt = len(ords)
		}
	}

	alts := make([]*event.RawEvent, 0, nalt)
	for r := 0; r < nalt; r++ {
		var (
			tracks  = make([][]int, len(per))
			quality = 0.0
		)
		for i, ords := range per {
			o := ords[len(ords)-1]
			if r < len(ords) {
				o = ords[r]
			}
			tracks[i] = o.seq
			quality += o.score
		}
		out, _ := rebuild(evt, tracks)
		out.TrackQuality = quality
		alts = append(alts, out)
	}
	return alts
}

// ambiguous returns whether all the orderings share the same score.
func ambiguous(ords []ordering) bool {
	if len(ords) < 2 {
		return false
	}
	for _, o := range ords[1:] {
		if o.score != ords[0].score {
			return false
		}
	}
	return true
}

// linked returns whether two tracker elements may be consecutive along
// a Compton recoil electron track.
func (trk *Tracker) linked(evt *event.RawEvent, i, j int) bool {
	a, b := evt.RESEs[i], evt.RESEs[j]
	det := a.DetID()
	if det != b.DetID() {
		return false
	}
	jump := trk.geo.Layer(det, a.Pos()) - trk.geo.Layer(det, b.Pos())
	if jump < 0 {
		jump = -jump
	}
	if jump < 1 || jump > trk.cfg.MaxComptonJump {
		return false
	}
	return r3.Norm(r3.Sub(a.Pos(), b.Pos())) <= trk.cfg.MaxElementDistance
}

// components returns the connected components of the tracker elements.
func (trk *Tracker) components(evt *event.RawEvent, ids []int) [][]int {
	var (
		seen  = make(map[int]bool, len(ids))
		comps [][]int
	)
	for _, start := range ids {
		if seen[start] {
			continue
		}
		seen[start] = true
		comp := []int{start}
		for k := 0; k < len(comp); k++ {
			for _, j := range ids {
				if seen[j] || !trk.linked(evt, comp[k], j) {
					continue
				}
				seen[j] = true
				comp = append(comp, j)
			}
		}
		sort.Ints(comp)
		comps = append(comps, comp)
	}
	return comps
}

// orderings returns all the scored paths visiting each element of comp
// exactly once, consecutive elements being linked.
func (trk *Tracker) orderings(evt *event.RawEvent, comp []int) []ordering {
	var (
		out   []ordering
		path  = make([]int, 0, len(comp))
		used  = make(map[int]bool, len(comp))
		elems = make([]event.RESE, len(comp))
		visit func()
	)

	visit = func() {
		if len(path) == len(comp) {
			for i, j := range path {
				elems[i] = evt.RESEs[j]
			}
			out = append(out, ordering{
				seq:   append([]int(nil), path...),
				score: trk.score.Score(elems),
			})
			return
		}
		for _, j := range comp {
			if used[j] {
				continue
			}
			if n := len(path); n > 0 && !trk.linked(evt, path[n-1], j) {
				continue
			}
			used[j] = true
			path = append(path, j)
			visit()
			path = path[:len(path)-1]
			used[j] = false
		}
	}
	visit()
	return out
}
