// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"fmt"
	"math"

	"github.com/go-lpc/revan/config"
)

// Pruner discards partial sequences that cannot lead to a valid sequence.
type Pruner interface {
	// Prune returns true when the partial sequence seq must be discarded.
	// Only the last site of seq is new since the previous call.
	Prune(sites []Site, seq []int) bool
}

// PrunerFunc adapts a function to the Pruner interface.
type PrunerFunc func(sites []Site, seq []int) bool

func (f PrunerFunc) Prune(sites []Site, seq []int) bool { return f(sites, seq) }

// StartD1 discards sequences not starting in a strip or drift-chamber
// detector.
func StartD1() Pruner {
	return PrunerFunc(func(sites []Site, seq []int) bool {
		return len(seq) == 1 && !sites[seq[0]].Det.IsD1()
	})
}

// LayerJump discards sequences where two consecutive sites of the same
// tracking detector are more than max layers apart.
func LayerJump(max int) Pruner {
	return PrunerFunc(func(sites []Site, seq []int) bool {
		n := len(seq)
		if n < 2 {
			return false
		}
		a, b := sites[seq[n-2]], sites[seq[n-1]]
		if a.DetID != b.DetID || a.Layer < 0 || b.Layer < 0 {
			return false
		}
		jump := a.Layer - b.Layer
		if jump < 0 {
			jump = -jump
		}
		return jump > max
	})
}

// Kinematic discards sequences where a scatter is kinematically forbidden,
// assuming the incident photon was fully absorbed.
func Kinematic() Pruner {
	return PrunerFunc(func(sites []Site, seq []int) bool {
		n := len(seq)
		if n == len(sites) {
			// last site is the photo-absorption.
			return false
		}
		ein := sumE(sites)
		for _, i := range seq[:n-1] {
			ein -= sites[i].E
		}
		eout := ein - sites[seq[n-1]].E
		if !(eout > 0) {
			return true
		}
		cos := ComptonCos(ein, eout)
		return cos < -1 || cos > 1
	})
}

// Candidate is a scored Compton sequence.
type Candidate struct {
	Seq []int // indices into the sites, first interaction first
	Result
}

// Search is a backtracking search over the orderings of interaction sites.
type Search struct {
	Pruners []Pruner
	Scorer  Scorer
}

// Run returns the best scored sequence of sites and the number of valid
// sequences. Ties are resolved in favor of the lexicographically smallest
// sequence.
// Run fails when more than config.MaxNHitsCeiling sites are provided.
func (s *Search) Run(sites []Site) (Candidate, int, error) {
	n := len(sites)
	if n > config.MaxNHitsCeiling {
		return Candidate{}, 0, fmt.Errorf(
			"csr: too many sites for a sequence search (n=%d, max=%d)",
			n, config.MaxNHitsCeiling,
		)
	}

	var (
		best  = Candidate{Result: Result{Quality: math.Inf(+1)}}
		valid = 0
		seq   = make([]int, 0, n)
		used  = make([]bool, n)
		visit func()
	)

	visit = func() {
		if len(seq) == n {
			res := s.Scorer.Score(sites, seq)
			if !res.OK || math.IsNaN(res.Quality) {
				return
			}
			valid++
			if best.Seq == nil || res.Quality < best.Quality {
				best.Seq = append(best.Seq[:0], seq...)
				best.Result = res
			}
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			seq = append(seq, i)
			if !s.prune(sites, seq) {
				used[i] = true
				visit()
				used[i] = false
			}
			seq = seq[:len(seq)-1]
		}
	}
	if n > 0 {
		visit()
	}

	if best.Seq == nil {
		return Candidate{}, 0, nil
	}
	return best, valid, nil
}

func (s *Search) prune(sites []Site, seq []int) bool {
	for _, p := range s.Pruners {
		if p.Prune(sites, seq) {
			return true
		}
	}
	return false
}
