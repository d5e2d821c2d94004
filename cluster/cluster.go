// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cluster merges raw hits originating from the same physical
// interaction into clusters.
//
// All clusterers only merge hits recorded by the same detector and
// produce the same partition whatever the order of their input hits.
package cluster // import "github.com/go-lpc/revan/cluster"

import (
	"fmt"
	"sort"

	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/internal/response"
)

// Clusterer partitions the hits of one event into clusters.
//
// Clusterers hold no per-event state and may be shared between goroutines.
type Clusterer interface {
	Cluster(hits []event.Hit) []event.RESE
}

// New creates the clusterer selected by the provided settings.
// New returns a nil Clusterer when clustering is disabled.
func New(cfg config.Clustering, geo *geom.Geometry) (Clusterer, error) {
	switch cfg.Algorithm {
	case config.ClusterNone:
		return nil, nil
	case config.ClusterDistance:
		return NewDistance(cfg.Distances, cfg.UseCentroid), nil
	case config.ClusterAdjacent:
		return NewAdjacent(geo, cfg.Level, cfg.Sigma)
	case config.ClusterPDF:
		f, err := response.Open(cfg.PDFFile)
		if err != nil {
			return nil, fmt.Errorf("cluster: could not load pdf response: %w", err)
		}
		return NewPDF(f, cfg.MinProbability)
	}
	return nil, fmt.Errorf("cluster: unknown clustering algorithm %q", cfg.Algorithm)
}

// Apply replaces the sub-elements of evt with the clusters of its hits.
// A nil clusterer leaves each hit in its own sub-element.
func Apply(c Clusterer, evt *event.RawEvent) {
	hits := evt.Hits()
	if c == nil {
		evt.RESEs = evt.RESEs[:0]
		for i, hit := range hits {
			evt.RESEs = append(evt.RESEs, event.NewHit(i+1, hit))
		}
		return
	}
	evt.RESEs = c.Cluster(hits)
}

// canonical returns a sorted copy of hits.
func canonical(hits []event.Hit) []event.Hit {
	o := append([]event.Hit(nil), hits...)
	sort.SliceStable(o, func(i, j int) bool { return event.LessHit(o[i], o[j]) })
	return o
}

// link merges the canonically ordered hits for which merge returns true
// into connected components.
func link(hits []event.Hit, merge func(a, b event.Hit) bool) []event.RESE {
	hits = canonical(hits)
	uf := newUnionFind(len(hits))
	for i := range hits {
		for j := i + 1; j < len(hits); j++ {
			if hits[i].DetID != hits[j].DetID {
				// hits are sorted by detector first.
				break
			}
			if merge(hits[i], hits[j]) {
				uf.union(i, j)
			}
		}
	}
	return uf.groups(hits)
}

// build creates the RESEs of the provided hit groups.
// Single hit groups yield a hit RESE.
func build(groups [][]event.Hit) []event.RESE {
	out := make([]event.RESE, 0, len(groups))
	for _, grp := range groups {
		id := len(out) + 1
		switch len(grp) {
		case 0:
			continue
		case 1:
			out = append(out, event.NewHit(id, grp[0]))
		default:
			out = append(out, event.NewCluster(id, grp...))
		}
	}
	return out
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

// union attaches the component of j to the one of i.
// The root of a component is always its lowest index.
func (uf *unionFind) union(i, j int) {
	ri, rj := uf.find(i), uf.find(j)
	switch {
	case ri == rj:
		return
	case ri < rj:
		uf.parent[rj] = ri
	default:
		uf.parent[ri] = rj
	}
}

// groups returns the components, ordered by their lowest hit index.
func (uf *unionFind) groups(hits []event.Hit) []event.RESE {
	var (
		idx    = make(map[int]int)
		groups [][]event.Hit
	)
	for i, hit := range hits {
		root := uf.find(i)
		j, ok := idx[root]
		if !ok {
			j = len(groups)
			idx[root] = j
			groups = append(groups, nil)
		}
		groups[j] = append(groups[j], hit)
	}
	return build(groups)
}
