// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"fmt"
	"math"

	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/internal/response"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/spatial/r3"
)

// Result is the outcome of scoring one sequence.
// Quality is lower for better sequences.
type Result struct {
	Quality float64
	Escaped float64 // recovered escaped energy, in keV
	OK      bool    // sequence is physically valid
}

// Scorer scores a complete Compton sequence.
//
// Scorers are not safe for concurrent use.
type Scorer interface {
	Score(sites []Site, seq []int) Result
}

// NewScorer creates the scorer selected by the provided settings.
// Response and model files are loaded once, here.
func NewScorer(cfg config.CSR) (Scorer, error) {
	switch cfg.Algorithm {
	case config.CSRFoM, config.CSRNone:
		return NewFoM(), nil
	case config.CSREnergyRecovery:
		return NewEnergyRecovery(), nil
	case config.CSRToF:
		return NewToF(cfg.TimeResolution), nil
	case config.CSRToFEnergyRecovery:
		return NewToFEnergyRecovery(cfg.TimeResolution), nil
	case config.CSRBayesian:
		f, err := response.Open(cfg.ResponseFile)
		if err != nil {
			return nil, fmt.Errorf("csr: could not load bayesian response: %w", err)
		}
		return NewBayesian(f)
	case config.CSRClassifier:
		m, err := LoadModel(cfg.ClassifierFile)
		if err != nil {
			return nil, fmt.Errorf("csr: could not load classifier: %w", err)
		}
		return NewClassifier(m)
	}
	return nil, fmt.Errorf("csr: unknown sequencing algorithm %q", cfg.Algorithm)
}

// FoM scores a sequence with the reduced χ² of the differences between the
// kinematic and geometric Compton scatter angle cosines at each interior
// site.
// Sequences with no interior site score zero.
//
// FoM optionally fits the escaped energy and adds a time-of-flight term.
type FoM struct {
	// Recover enables the fit of the energy which escaped the detector.
	Recover bool
	// TimeRes is the time resolution, in seconds, used by the
	// time-of-flight term. Zero disables the time-of-flight term.
	TimeRes float64

	terms []scatterTerm
}

// NewFoM returns the classic angle-based scorer.
func NewFoM() *FoM { return &FoM{} }

// NewEnergyRecovery returns the angle-based scorer fitting the escaped energy.
func NewEnergyRecovery() *FoM { return &FoM{Recover: true} }

// NewToF returns the angle-based scorer with a time-of-flight term.
func NewToF(res float64) *FoM { return &FoM{TimeRes: res} }

// NewToFEnergyRecovery returns the angle-based scorer with a time-of-flight
// term, fitting the escaped energy.
func NewToFEnergyRecovery(res float64) *FoM { return &FoM{Recover: true, TimeRes: res} }

// infeasible is the χ² assigned to kinematically forbidden escaped energies
// while fitting.
const infeasible = 1e12

func (fom *FoM) Score(sites []Site, seq []int) Result {
	edep := sumE(sites)
	chi2, ndf, ok := fom.chi2(sites, seq, edep)
	res := Result{OK: ok}
	if ok {
		res.Quality = reduced(chi2, ndf)
	}
	if !fom.Recover || len(seq) < 3 {
		return res
	}

	// escaped energy is parametrized as x² to stay positive.
	fct := func(x []float64) float64 {
		chi2, ndf, ok := fom.chi2(sites, seq, edep+x[0]*x[0])
		if !ok {
			return infeasible
		}
		return reduced(chi2, ndf)
	}
	// coarse scan to start the fit inside the kinematically allowed region.
	var (
		x0 = []float64{0}
		f0 = infeasible
	)
	for k := -6; k <= 4; k++ {
		x := []float64{math.Sqrt(edep * math.Ldexp(1, k))}
		if f := fct(x); f < f0 {
			x0, f0 = x, f
		}
	}
	if f0 >= infeasible {
		return res
	}

	// unconverged fits still hold the best location found so far.
	opt, _ := optimize.Minimize(optimize.Problem{Func: fct}, x0, nil, &optimize.NelderMead{})
	if opt != nil && opt.F < f0 {
		x0, f0 = opt.X, opt.F
	}
	if res.OK && res.Quality <= f0 {
		return res
	}
	return Result{
		Quality: f0,
		Escaped: x0[0] * x0[0],
		OK:      true,
	}
}

func (fom *FoM) chi2(sites []Site, seq []int, etot float64) (float64, int, bool) {
	terms, ok := scatters(fom.terms, sites, seq, etot)
	fom.terms = terms
	if !ok {
		return 0, 0, false
	}
	var (
		chi2 = 0.0
		ndf  = len(terms)
	)
	for _, t := range terms {
		v := t.dcos / t.sigma
		chi2 += v * v
	}
	if fom.TimeRes > 0 {
		chi2 += tof(sites, seq, fom.TimeRes)
		ndf += len(seq) - 1
	}
	return chi2, ndf, true
}

// tof returns the time-of-flight χ² along seq: the photon travels from one
// site to the next at the speed of light.
func tof(sites []Site, seq []int, res float64) float64 {
	var (
		chi2  = 0.0
		sigma = res * math.Sqrt2
	)
	for j := 1; j < len(seq); j++ {
		var (
			a  = sites[seq[j-1]]
			b  = sites[seq[j]]
			dt = b.Time - a.Time
			d  = r3.Norm(r3.Sub(b.Pos, a.Pos))
			v  = (dt - d/SpeedOfLight) / sigma
		)
		chi2 += v * v
	}
	return chi2
}

func reduced(chi2 float64, ndf int) float64 {
	if ndf <= 0 {
		return 0
	}
	return chi2 / float64(ndf)
}

var (
	_ Scorer = (*FoM)(nil)
)
