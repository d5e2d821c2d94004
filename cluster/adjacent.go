// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cluster

import (
	"fmt"

	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
)

// Adjacent merges hits lying in neighboring voxels of the same detector.
type Adjacent struct {
	geo   *geom.Geometry
	level int
	sigma float64
}

// NewAdjacent creates an adjacent-voxel clusterer.
// level is the neighborhood level (see geom.ValidLevel), sigma the depth
// agreement used for detectors with a non-discretized depth axis.
func NewAdjacent(geo *geom.Geometry, level int, sigma float64) (*Adjacent, error) {
	if geo == nil {
		return nil, fmt.Errorf("cluster: adjacent clustering needs a geometry")
	}
	if !geom.ValidLevel(level) {
		return nil, fmt.Errorf("cluster: invalid neighborhood level %d", level)
	}
	return &Adjacent{geo: geo, level: level, sigma: sigma}, nil
}

// Cluster implements Clusterer.
func (c *Adjacent) Cluster(hits []event.Hit) []event.RESE {
	return link(hits, func(a, b event.Hit) bool {
		if a.DetID < 0 || a.DetID >= c.geo.Len() {
			return false
		}
		return c.geo.Adjacent(a.DetID, a.Pos, a.PosRes, b.Pos, b.PosRes, c.level, c.sigma)
	})
}

var _ Clusterer = (*Adjacent)(nil)
