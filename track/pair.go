// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package track

import (
	"math"

	"github.com/go-lpc/revan/event"
	"gonum.org/v1/gonum/spatial/r3"
)

// searchPair looks for a pair-production vertex: a single element in the
// top layer, followed by at least two layers holding two or more elements
// within the vertex search depth.
// The electron and positron tracks are then followed greedily, layer by
// layer, along their extrapolated direction.
func (trk *Tracker) searchPair(evt *event.RawEvent, layers []layer) *event.RawEvent {
	if len(layers) < 3 || len(layers[0].elems) != 1 {
		return nil
	}

	var (
		vtx   = layers[0].elems[0]
		depth = trk.cfg.NLayersForVertexSearch
		first = -1
		n     = 0
	)
	if depth > len(layers)-1 {
		depth = len(layers) - 1
	}
	for i := 1; i <= depth; i++ {
		if len(layers[i].elems) < 2 {
			continue
		}
		n++
		if first < 0 {
			first = i
		}
	}
	if n < 2 {
		return nil
	}

	pos := func(i int) r3.Vec { return evt.RESEs[i].Pos() }

	a, b := widest(evt, layers[first].elems)
	var (
		tracks = [2][]int{{vtx, a}, {b}}
		prev   = [2]r3.Vec{pos(vtx), pos(vtx)}
		last   = [2]r3.Vec{pos(a), pos(b)}
		used   = map[int]bool{vtx: true, a: true, b: true}
	)

	for _, lay := range layers[first+1:] {
		for k := range tracks {
			pred := extrapolate(prev[k], last[k], lay.z)
			best := -1
			dmin := math.Inf(+1)
			for _, i := range lay.elems {
				if used[i] {
					continue
				}
				d := r3.Norm(r3.Sub(pos(i), pred))
				if d <= trk.cfg.MaxElementDistance && d < dmin {
					best, dmin = i, d
				}
			}
			if best < 0 {
				continue
			}
			used[best] = true
			tracks[k] = append(tracks[k], best)
			prev[k], last[k] = last[k], pos(best)
		}
	}

	var (
		da = r3.Sub(pos(a), pos(vtx))
		db = r3.Sub(pos(b), pos(vtx))
	)
	if r3.Norm(da) == 0 || r3.Norm(db) == 0 {
		return nil
	}
	opening := math.Acos(math.Max(-1, math.Min(1, r3.Cos(da, db))))
	if !(opening > 0) {
		return nil
	}

	out, idx := rebuild(evt, tracks[:])
	out.Type = event.Pair
	out.Decided = true
	out.Seq = idx
	return out
}

// widest returns the two elements of ids with the largest separation.
func widest(evt *event.RawEvent, ids []int) (int, int) {
	var (
		a, b = ids[0], ids[1]
		dmax = -1.0
	)
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			d := r3.Norm(r3.Sub(evt.RESEs[ids[i]].Pos(), evt.RESEs[ids[j]].Pos()))
			if d > dmax {
				a, b, dmax = ids[i], ids[j], d
			}
		}
	}
	return a, b
}

// extrapolate returns the point at height z on the line through p and q.
func extrapolate(p, q r3.Vec, z float64) r3.Vec {
	dz := q.Z - p.Z
	if dz == 0 {
		return q
	}
	t := (z - q.Z) / dz
	return r3.Add(q, r3.Scale(t, r3.Sub(q, p)))
}
