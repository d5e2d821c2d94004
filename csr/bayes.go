// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"fmt"
	"math"

	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/internal/response"
)

// Response file histograms used by the Bayesian scorer.
//
// DCosGood and DCosBad hold the distributions of the difference between the
// kinematic and geometric scatter angle cosines for correctly and wrongly
// ordered sequences. Per detector type distributions, named
// DCosGood+"/"+type, take precedence when present.
// EFracGood and EFracBad hold the distributions of the fraction of the
// total energy deposited at the first site.
const (
	DCosGood  = "csr/dcos/good"
	DCosBad   = "csr/dcos/bad"
	EFracGood = "csr/efrac/good"
	EFracBad  = "csr/efrac/bad"
)

type likelihood struct {
	good response.Table
	bad  response.Table
}

func newLikelihood(f *response.File, good, bad string) (likelihood, error) {
	var lh likelihood
	for _, v := range []struct {
		name string
		ptr  *response.Table
	}{
		{good, &lh.good},
		{bad, &lh.bad},
	} {
		h, err := f.Must(v.name)
		if err != nil {
			return lh, err
		}
		*v.ptr, err = response.NewTable(h)
		if err != nil {
			return lh, err
		}
	}
	return lh, nil
}

// minDensity bounds the log-likelihood ratio for values never seen in the
// training sample.
const minDensity = 1e-9

// ratio returns log(P_good(x)/P_bad(x)).
func (lh likelihood) ratio(x float64) float64 {
	pg := math.Max(lh.good.Density(x), minDensity)
	pb := math.Max(lh.bad.Density(x), minDensity)
	return math.Log(pg / pb)
}

// Bayesian scores a sequence with -log P(good|sequence), assuming equal
// priors for correctly and wrongly ordered sequences:
//
//	quality = log(1 + exp(-L)),  L = Σ log(P_good/P_bad).
//
// A quality of log(2) corresponds to an undecided sequence.
type Bayesian struct {
	dcos  likelihood
	types [geom.NTypes]*likelihood
	efrac likelihood

	terms []scatterTerm
}

// NewBayesian creates a Bayesian scorer from a loaded response file.
func NewBayesian(f *response.File) (*Bayesian, error) {
	if f == nil {
		return nil, fmt.Errorf("csr: nil bayesian response")
	}
	var (
		s   Bayesian
		err error
	)
	s.dcos, err = newLikelihood(f, DCosGood, DCosBad)
	if err != nil {
		return nil, fmt.Errorf("csr: invalid bayesian response: %w", err)
	}
	s.efrac, err = newLikelihood(f, EFracGood, EFracBad)
	if err != nil {
		return nil, fmt.Errorf("csr: invalid bayesian response: %w", err)
	}

	for _, t := range geom.Types() {
		var (
			good = DCosGood + "/" + t.String()
			bad  = DCosBad + "/" + t.String()
		)
		_, okg := f.H1D(good)
		_, okb := f.H1D(bad)
		if !okg && !okb {
			continue
		}
		lh, err := newLikelihood(f, good, bad)
		if err != nil {
			return nil, fmt.Errorf("csr: invalid bayesian response for %v: %w", t, err)
		}
		s.types[t-1] = &lh
	}
	return &s, nil
}

func (s *Bayesian) Score(sites []Site, seq []int) Result {
	etot := sumE(sites)
	terms, ok := scatters(s.terms, sites, seq, etot)
	s.terms = terms
	if !ok || !(etot > 0) {
		return Result{}
	}

	llr := s.efrac.ratio(sites[seq[0]].E / etot)
	for _, t := range terms {
		lh := &s.dcos
		if det := sites[seq[t.site]].Det; det.Valid() && s.types[det-1] != nil {
			lh = s.types[det-1]
		}
		llr += lh.ratio(t.dcos)
	}
	return Result{Quality: softplus(-llr), OK: true}
}

// softplus returns log(1+exp(x)).
func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

var _ Scorer = (*Bayesian)(nil)
