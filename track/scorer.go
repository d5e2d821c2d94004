// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package track

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/internal/response"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// Scorer rates one ordering of the elements of an electron track,
// entry point first. Lower scores are better.
type Scorer interface {
	Score(elems []event.RESE) float64
}

// Response file histograms used by the Bayesian scorer: distributions of
// the scatter angle (radians) along correctly and wrongly ordered tracks.
const (
	AngleGood = "track/angle/good"
	AngleBad  = "track/angle/bad"
)

// NewScorer creates the scorer selected by the provided settings.
func NewScorer(cfg config.Tracking) (Scorer, error) {
	switch cfg.Algorithm {
	case config.TrackPearson:
		return Pearson{}, nil
	case config.TrackRank:
		return Rank{}, nil
	case config.TrackChi2:
		return Chi2{Scale: DefaultScatterScale}, nil
	case config.TrackGas:
		return Gas{}, nil
	case config.TrackDirectional:
		return Directional{}, nil
	case config.TrackBayesian:
		f, err := response.Open(cfg.ResponseFile)
		if err != nil {
			return nil, fmt.Errorf("track: could not load bayesian response: %w", err)
		}
		return NewBayesian(f)
	}
	return nil, fmt.Errorf("track: unknown tracking algorithm %q", cfg.Algorithm)
}

// Pearson scores an ordering with 1-r, r being the Pearson correlation
// between the step index and the deposited energy.
// Electrons deposit more energy as they slow down.
type Pearson struct{}

func (Pearson) Score(elems []event.RESE) float64 {
	xs, ys := profile(elems)
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return 1
	}
	return 1 - r
}

// Rank scores an ordering with 1-ρ, ρ being the Spearman rank correlation
// between the step index and the deposited energy.
type Rank struct{}

func (Rank) Score(elems []event.RESE) float64 {
	xs, ys := profile(elems)
	r := stat.Correlation(ranks(xs), ranks(ys), nil)
	if math.IsNaN(r) {
		return 1
	}
	return 1 - r
}

// DefaultScatterScale is the default multiple-scattering scale, in keV.rad.
const DefaultScatterScale = 1000

// Chi2 scores an ordering with the mean squared ratio of the measured
// scatter angles to the multiple-scattering angle expected from the
// remaining electron energy, Scale/E, plus the fraction of steps along
// which the deposited energy decreases.
type Chi2 struct {
	Scale float64
}

func (s Chi2) Score(elems []event.RESE) float64 {
	remain := 0.0
	for _, elem := range elems {
		remain += elem.Energy()
	}

	var (
		chi2 = 0.0
		ndf  = 0
	)
	for i := 1; i+1 < len(elems); i++ {
		remain -= elems[i-1].Energy()
		theta := scatter(elems[i-1].Pos(), elems[i].Pos(), elems[i+1].Pos())
		v := theta * math.Max(remain, 1) / s.Scale
		chi2 += v * v
		ndf++
	}
	if ndf > 0 {
		chi2 /= float64(ndf)
	}
	return chi2 + decreasing(elems)
}

// Gas scores an ordering with the spacing-weighted mean of 1-cos(θ) over
// consecutive segments, θ being the angle between two segments, and a
// penalty when the track ends with a smaller deposit than it started.
// It is suited to low density detectors where tracks are long and smooth.
type Gas struct{}

func (Gas) Score(elems []event.RESE) float64 {
	var (
		n    = len(elems)
		sum  = 0.0
		wsum = 0.0
	)
	for i := 1; i+1 < n; i++ {
		var (
			a = r3.Sub(elems[i].Pos(), elems[i-1].Pos())
			b = r3.Sub(elems[i+1].Pos(), elems[i].Pos())
			w = math.Min(r3.Norm(a), r3.Norm(b))
		)
		if w <= 0 {
			continue
		}
		sum += w * (1 - r3.Cos(a, b))
		wsum += w
	}
	score := 0.0
	if wsum > 0 {
		score = sum / wsum
	}
	if elems[0].Energy() > elems[n-1].Energy() {
		score += 0.5
	}
	return score
}

// Directional scores an ordering with 1-cos(α), α being the angle between
// the electron direction reported by the detector at the entry point and
// the first segment of the track.
// Orderings whose entry point has no measured direction score 1.
type Directional struct{}

func (Directional) Score(elems []event.RESE) float64 {
	dir := elems[0].Dir()
	if r3.Norm(dir) == 0 || len(elems) < 2 {
		return 1
	}
	seg := r3.Sub(elems[1].Pos(), elems[0].Pos())
	if r3.Norm(seg) == 0 {
		return 1
	}
	return 1 - r3.Cos(dir, seg)
}

// Bayesian scores an ordering with -Σ log(P_good(θ)/P_bad(θ)) over the
// scatter angles θ along the track.
type Bayesian struct {
	good response.Table
	bad  response.Table
}

// NewBayesian creates a Bayesian scorer from a loaded response file.
func NewBayesian(f *response.File) (*Bayesian, error) {
	var s Bayesian
	for _, v := range []struct {
		name string
		ptr  *response.Table
	}{
		{AngleGood, &s.good},
		{AngleBad, &s.bad},
	} {
		h, err := f.Must(v.name)
		if err != nil {
			return nil, fmt.Errorf("track: invalid bayesian response: %w", err)
		}
		*v.ptr, err = response.NewTable(h)
		if err != nil {
			return nil, fmt.Errorf("track: invalid bayesian response: %w", err)
		}
	}
	return &s, nil
}

// minDensity bounds the log-likelihood ratio for angles never seen in
// the training sample.
const minDensity = 1e-9

func (s *Bayesian) Score(elems []event.RESE) float64 {
	score := 0.0
	for i := 1; i+1 < len(elems); i++ {
		theta := scatter(elems[i-1].Pos(), elems[i].Pos(), elems[i+1].Pos())
		pg := math.Max(s.good.Density(theta), minDensity)
		pb := math.Max(s.bad.Density(theta), minDensity)
		score -= math.Log(pg / pb)
	}
	return score
}

// profile returns the step indices and deposited energies of elems.
func profile(elems []event.RESE) (xs, ys []float64) {
	xs = make([]float64, len(elems))
	ys = make([]float64, len(elems))
	for i, elem := range elems {
		xs[i] = float64(i)
		ys[i] = elem.Energy()
	}
	return xs, ys
}

// ranks returns the fractional ranks of vs, ties sharing their mean rank.
func ranks(vs []float64) []float64 {
	idx := make([]int, len(vs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return vs[idx[i]] < vs[idx[j]] })

	rs := make([]float64, len(vs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && vs[idx[j+1]] == vs[idx[i]] {
			j++
		}
		r := 0.5 * float64(i+j)
		for k := i; k <= j; k++ {
			rs[idx[k]] = r
		}
		i = j + 1
	}
	return rs
}

// scatter returns the angle between the segments a->b and b->c.
func scatter(a, b, c r3.Vec) float64 {
	u := r3.Sub(b, a)
	v := r3.Sub(c, b)
	if r3.Norm(u) == 0 || r3.Norm(v) == 0 {
		return 0
	}
	cos := math.Max(-1, math.Min(1, r3.Cos(u, v)))
	return math.Acos(cos)
}

// decreasing returns the fraction of steps along which the deposited
// energy decreases.
func decreasing(elems []event.RESE) float64 {
	if len(elems) < 2 {
		return 0
	}
	n := 0
	for i := 1; i < len(elems); i++ {
		if elems[i].Energy() < elems[i-1].Energy() {
			n++
		}
	}
	return float64(n) / float64(len(elems)-1)
}

var (
	_ Scorer = (*Pearson)(nil)
	_ Scorer = (*Rank)(nil)
	_ Scorer = (*Chi2)(nil)
	_ Scorer = (*Gas)(nil)
	_ Scorer = (*Directional)(nil)
	_ Scorer = (*Bayesian)(nil)
)
