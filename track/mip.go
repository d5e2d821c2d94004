// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package track

import (
	"math"

	"github.com/go-lpc/revan/event"
	"gonum.org/v1/gonum/stat"
)

// searchMIP looks for a straight through-going track made of exactly one
// element per layer.
func (trk *Tracker) searchMIP(evt *event.RawEvent, ids []int, layers []layer) *event.RawEvent {
	if len(layers) < trk.cfg.MIPMinLayers || len(layers) != len(ids) {
		return nil
	}

	var (
		n  = len(layers)
		xs = make([]float64, n)
		ys = make([]float64, n)
		zs = make([]float64, n)
		ok = false
	)
	for i, lay := range layers {
		pos := evt.RESEs[lay.elems[0]].Pos()
		xs[i] = pos.X
		ys[i] = pos.Y
		zs[i] = pos.Z
		if zs[i] != zs[0] {
			ok = true
		}
	}
	if !ok {
		return nil
	}

	res := fitResiduals(zs, xs, ys)
	for _, r := range res {
		if r >= trk.cfg.MIPMaxResidual {
			return nil
		}
	}

	seq := make([]int, n)
	chi2 := 0.0
	for i, lay := range layers {
		seq[i] = lay.elems[0]
		chi2 += res[i] * res[i]
	}

	out, idx := rebuild(evt, [][]int{seq})
	out.Type = event.MIP
	out.Decided = true
	out.Seq = idx
	out.TrackQuality = chi2 / float64(n)
	return out
}

// fitResiduals fits x(z) and y(z) with straight lines and returns the
// transverse distance of each point to the fitted line.
func fitResiduals(zs, xs, ys []float64) []float64 {
	var (
		ax, bx = stat.LinearRegression(zs, xs, nil, false)
		ay, by = stat.LinearRegression(zs, ys, nil, false)
		res    = make([]float64, len(zs))
	)
	for i, z := range zs {
		dx := xs[i] - (ax + bx*z)
		dy := ys[i] - (ay + by*z)
		res[i] = math.Hypot(dx, dy)
	}
	return res
}
