// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cluster

import (
	"fmt"

	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/internal/response"
	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/spatial/r3"
)

// PDFPrefix is the prefix of the merge probability histograms in a
// response file. The histogram of a detector type is named
// PDFPrefix + type name.
const PDFPrefix = "cluster/pdf/"

// PDF merges two hits when the trained probability that they belong to the
// same interaction, given their distance, reaches a minimal probability.
//
// Detector types without a probability histogram never merge hits.
type PDF struct {
	pdfs [geom.NTypes]*hbook.H1D
	min  float64
}

// NewPDF creates a PDF clusterer from a loaded response file.
func NewPDF(f *response.File, min float64) (*PDF, error) {
	if f == nil {
		return nil, fmt.Errorf("cluster: nil pdf response")
	}
	c := &PDF{min: min}
	n := 0
	for _, t := range geom.Types() {
		h, ok := f.H1D(PDFPrefix + t.String())
		if !ok {
			continue
		}
		c.pdfs[t-1] = h
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("cluster: response %q holds no %q histogram", f.Name, PDFPrefix)
	}
	return c, nil
}

// Probability returns the merge probability of two hits of type t
// separated by distance d.
func (c *PDF) Probability(t geom.Type, d float64) float64 {
	if !t.Valid() {
		return 0
	}
	h := c.pdfs[t-1]
	if h == nil {
		return 0
	}
	return response.Lookup(h, d)
}

// Cluster implements Clusterer.
func (c *PDF) Cluster(hits []event.Hit) []event.RESE {
	return link(hits, func(a, b event.Hit) bool {
		d := r3.Norm(r3.Sub(a.Pos, b.Pos))
		p := c.Probability(a.Det, d)
		return p > 0 && p >= c.min
	})
}

var _ Clusterer = (*PDF)(nil)
