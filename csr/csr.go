// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package csr implements the Compton sequence reconstruction: finding the
// chronological order of the interaction sites of a photon.
//
// All the scorers of the package follow the same convention: the quality of
// a sequence is lower for better sequences.
package csr // import "github.com/go-lpc/revan/csr"

import (
	"fmt"

	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
)

// Reconstructor classifies events and reconstructs their Compton sequence.
//
// A Reconstructor is not safe for concurrent use.
type Reconstructor struct {
	cfg    config.CSR
	geo    *geom.Geometry
	search Search
}

// New creates a new Compton sequence reconstructor.
func New(cfg config.CSR, geo *geom.Geometry) (*Reconstructor, error) {
	if cfg.MaxNHits > config.MaxNHitsCeiling {
		return nil, fmt.Errorf(
			"csr: max-nhits=%d above ceiling %d: %w",
			cfg.MaxNHits, config.MaxNHitsCeiling, config.ErrConfig,
		)
	}

	rec := &Reconstructor{cfg: cfg, geo: geo}
	if cfg.Algorithm == config.CSRNone {
		return rec, nil
	}

	scorer, err := NewScorer(cfg)
	if err != nil {
		return nil, fmt.Errorf("csr: could not create scorer: %w", err)
	}
	rec.search.Scorer = scorer

	if cfg.GuaranteeStartD1 {
		rec.search.Pruners = append(rec.search.Pruners, StartD1())
	}
	if cfg.MaxLayerJump > 0 {
		rec.search.Pruners = append(rec.search.Pruners, LayerJump(cfg.MaxLayerJump))
	}
	switch cfg.Algorithm {
	case config.CSREnergyRecovery, config.CSRToFEnergyRecovery:
		// escaped energy relaxes the kinematic constraints.
	default:
		rec.search.Pruners = append(rec.search.Pruners, Kinematic())
	}
	return rec, nil
}

// Scorer returns the sequence scorer, or nil when sequencing is disabled.
func (rec *Reconstructor) Scorer() Scorer { return rec.search.Scorer }

// Reconstruct classifies evt and fills its sequence and quality.
// Rejected events and events already classified as pair or MIP by the
// electron tracking are left untouched.
func (rec *Reconstructor) Reconstruct(evt *event.RawEvent) {
	if evt.Rejected() {
		return
	}
	if evt.Decided && (evt.Type == event.Pair || evt.Type == event.MIP) {
		return
	}

	n := len(evt.RESEs)
	switch n {
	case 0:
		evt.Reject(event.ReasonNoHits)
		return
	case 1:
		evt.Type = event.Photo
		evt.Seq = []int{0}
		evt.Quality = 0
		evt.Decided = true
		return
	}

	if rec.search.Scorer == nil {
		return
	}

	if rec.cfg.RejectOneDetectorTypeOnly && oneType(evt) {
		evt.Reject(event.ReasonOneDetectorTypeOnly)
		return
	}
	if n > rec.cfg.MaxNHits {
		evt.Reject(event.ReasonTooManyHits)
		return
	}

	sites := Sites(evt, rec.geo)
	best, reason := rec.sequence(sites)
	if reason != event.ReasonNone {
		switch reason {
		case event.ReasonNoValidSequence, event.ReasonStartNotD1:
			evt.Type = event.Unidentifiable
		}
		evt.Reject(reason)
		return
	}

	evt.Type = event.Compton
	evt.Seq = best.Seq
	evt.Quality = best.Quality
	evt.Escaped = best.Escaped
	evt.Decided = true
	if best.Escaped > 0 {
		evt.Flags |= event.FlagEnergyRecovered
	}

	if !rec.cfg.Threshold.Contains(best.Quality) {
		switch rec.cfg.ThresholdAction {
		case config.ThresholdFlag:
			evt.Flags |= event.FlagLowConfidence
		default:
			evt.Reject(event.ReasonQualityOutOfRange)
		}
	}
}

func (rec *Reconstructor) sequence(sites []Site) (Candidate, event.Reason) {
	if len(sites) == 2 && rec.timed() && !sites[0].Tracked && !sites[1].Tracked {
		return rec.timeOrder(sites)
	}
	if len(sites) == 2 {
		seq, reason := TwoSite(rec.cfg.TwoSite, sites)
		if reason != event.ReasonNone {
			return Candidate{}, reason
		}
		if rec.cfg.GuaranteeStartD1 && !sites[seq[0]].Det.IsD1() {
			return Candidate{}, event.ReasonStartNotD1
		}
		res := rec.search.Scorer.Score(sites, seq)
		if !res.OK {
			return Candidate{}, event.ReasonNoValidSequence
		}
		return Candidate{Seq: seq, Result: res}, event.ReasonNone
	}

	best, _, err := rec.search.Run(sites)
	if err != nil {
		return Candidate{}, event.ReasonTooManyHits
	}
	if best.Seq == nil {
		if rec.cfg.GuaranteeStartD1 && !anyD1(sites) {
			return Candidate{}, event.ReasonStartNotD1
		}
		return Candidate{}, event.ReasonNoValidSequence
	}
	return best, event.ReasonNone
}

// timed reports whether the scorer carries a time-of-flight term.
func (rec *Reconstructor) timed() bool {
	switch rec.cfg.Algorithm {
	case config.CSRToF, config.CSRToFEnergyRecovery:
		return rec.cfg.TimeResolution > 0
	}
	return false
}

// timeOrder scores both orderings of a two-site event and keeps the best
// one, so the time of flight decides instead of the two-site policy.
func (rec *Reconstructor) timeOrder(sites []Site) (Candidate, event.Reason) {
	var (
		best Candidate
		d1   bool
	)
	for _, seq := range [][]int{{0, 1}, {1, 0}} {
		if rec.cfg.GuaranteeStartD1 && !sites[seq[0]].Det.IsD1() {
			continue
		}
		d1 = true
		res := rec.search.Scorer.Score(sites, seq)
		if !res.OK {
			continue
		}
		if best.Seq == nil || res.Quality < best.Quality {
			best = Candidate{Seq: seq, Result: res}
		}
	}
	switch {
	case best.Seq != nil:
		return best, event.ReasonNone
	case !d1:
		return Candidate{}, event.ReasonStartNotD1
	}
	return Candidate{}, event.ReasonNoValidSequence
}

func oneType(evt *event.RawEvent) bool {
	for _, rese := range evt.RESEs[1:] {
		if rese.Det() != evt.RESEs[0].Det() {
			return false
		}
	}
	return true
}

func anyD1(sites []Site) bool {
	for _, s := range sites {
		if s.Det.IsD1() {
			return true
		}
	}
	return false
}
