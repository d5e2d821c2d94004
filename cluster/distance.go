// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cluster

import (
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Distance merges hits closer than a per-detector-type distance threshold.
//
// Two hits exactly at the threshold distance are not merged.
type Distance struct {
	thr      [geom.NTypes]float64
	centroid bool
}

// NewDistance creates a distance clusterer.
// thresholds are given in geom.Types order. When centroid is set, distances
// are computed between the running cluster centroids instead of hits.
func NewDistance(thresholds []float64, centroid bool) *Distance {
	c := &Distance{centroid: centroid}
	copy(c.thr[:], thresholds)
	return c
}

func (c *Distance) threshold(t geom.Type) float64 {
	if !t.Valid() {
		return 0
	}
	return c.thr[t-1]
}

// Cluster implements Clusterer.
func (c *Distance) Cluster(hits []event.Hit) []event.RESE {
	if !c.centroid {
		return link(hits, func(a, b event.Hit) bool {
			return r3.Norm(r3.Sub(a.Pos, b.Pos)) < c.threshold(a.Det)
		})
	}
	return c.clusterCentroid(hits)
}

// clusterCentroid repeatedly merges the lowest-index pair of clusters
// whose centroids lie within the threshold.
func (c *Distance) clusterCentroid(hits []event.Hit) []event.RESE {
	hits = canonical(hits)
	var (
		groups = make([][]event.Hit, len(hits))
		pos    = make([]r3.Vec, len(hits))
	)
	for i, hit := range hits {
		groups[i] = []event.Hit{hit}
		pos[i] = hit.Pos
	}

	for {
		i, j := c.closest(groups, pos)
		if i < 0 {
			break
		}
		groups[i] = append(groups[i], groups[j]...)
		pos[i] = event.NewCluster(0, groups[i]...).Pos()

		groups = append(groups[:j], groups[j+1:]...)
		pos = append(pos[:j], pos[j+1:]...)
	}
	return build(groups)
}

func (c *Distance) closest(groups [][]event.Hit, pos []r3.Vec) (int, int) {
	for i := range groups {
		var (
			det = groups[i][0].DetID
			thr = c.threshold(groups[i][0].Det)
		)
		for j := i + 1; j < len(groups); j++ {
			if groups[j][0].DetID != det {
				continue
			}
			if r3.Norm(r3.Sub(pos[i], pos[j])) < thr {
				return i, j
			}
		}
	}
	return -1, -1
}

var _ Clusterer = (*Distance)(nil)
