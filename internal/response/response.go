// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package response loads the trained response files consumed by the
// probabilistic clustering, tracking and sequencing algorithms.
//
// A response file is a YODA archive of 1-dim histograms, each identified
// by a slash-separated name (e.g. "csr/dcos/good").
package response // import "github.com/go-lpc/revan/internal/response"

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/go-lpc/revan/internal/mmap"
	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hbook/yodacnv"
)

// File is a loaded response file.
type File struct {
	Name  string
	hists map[string]*hbook.H1D
}

// Open loads the named response file.
func Open(fname string) (*File, error) {
	h, err := mmap.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("response: could not open response file: %w", err)
	}
	defer h.Close()

	f, err := Read(h.Reader())
	if err != nil {
		return nil, fmt.Errorf("response: could not load %q: %w", fname, err)
	}
	f.Name = fname
	return f, nil
}

// Read decodes a response file from r.
func Read(r io.Reader) (*File, error) {
	vs, err := yodacnv.Read(r)
	if err != nil {
		return nil, fmt.Errorf("response: could not decode YODA content: %w", err)
	}

	f := &File{hists: make(map[string]*hbook.H1D, len(vs))}
	for _, v := range vs {
		h, ok := v.(*hbook.H1D)
		if !ok {
			continue
		}
		name := key(h)
		if name == "" {
			return nil, fmt.Errorf("response: histogram without a name")
		}
		if _, dup := f.hists[name]; dup {
			return nil, fmt.Errorf("response: duplicate histogram %q", name)
		}
		if h.Len() == 0 || !(h.XMin() < h.XMax()) {
			return nil, fmt.Errorf("response: histogram %q has an invalid binning", name)
		}
		f.hists[name] = h
	}

	if len(f.hists) == 0 {
		return nil, fmt.Errorf("response: no histogram found")
	}
	return f, nil
}

// Write encodes the provided histograms as a response file to w.
func Write(w io.Writer, hs ...*hbook.H1D) error {
	vs := make([]yodacnv.Marshaler, len(hs))
	for i, h := range hs {
		vs[i] = h
	}
	err := yodacnv.Write(w, vs...)
	if err != nil {
		return fmt.Errorf("response: could not encode histograms: %w", err)
	}
	return nil
}

// New creates a new named histogram for a response file.
func New(name string, nbins int, xmin, xmax float64) *hbook.H1D {
	h := hbook.NewH1D(nbins, xmin, xmax)
	h.Annotation()["name"] = strings.TrimPrefix(name, "/")
	return h
}

func key(h *hbook.H1D) string {
	name := h.Name()
	if name == "" {
		if v, ok := h.Annotation()["Path"].(string); ok {
			name = v
		}
	}
	return strings.TrimPrefix(name, "/")
}

// H1D returns the named histogram.
func (f *File) H1D(name string) (*hbook.H1D, bool) {
	h, ok := f.hists[strings.TrimPrefix(name, "/")]
	return h, ok
}

// Must returns the named histogram, or an error naming the missing entry.
func (f *File) Must(name string) (*hbook.H1D, error) {
	h, ok := f.H1D(name)
	if !ok {
		return nil, fmt.Errorf("response: no histogram %q in %q", name, f.Name)
	}
	return h, nil
}

// Names returns the sorted list of histogram names.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.hists))
	for k := range f.hists {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Bin returns the index of the bin holding x, or -1 when x lies outside
// the histogram range.
func Bin(h *hbook.H1D, x float64) int {
	xmin, xmax := h.XMin(), h.XMax()
	if math.IsNaN(x) || x < xmin || x >= xmax {
		return -1
	}
	n := h.Len()
	i := int(float64(n) * (x - xmin) / (xmax - xmin))
	if i >= n {
		i = n - 1
	}
	return i
}

// Lookup returns the content of the bin holding x, or zero when x lies
// outside the histogram range.
func Lookup(h *hbook.H1D, x float64) float64 {
	i := Bin(h, x)
	if i < 0 {
		return 0
	}
	return h.Value(i)
}

// Table is a normalized probability density backed by a histogram.
type Table struct {
	h    *hbook.H1D
	norm float64 // 1/(integral*width)
}

// NewTable creates a probability density from h.
// NewTable fails if h has no positive content.
func NewTable(h *hbook.H1D) (Table, error) {
	sum := 0.0
	for i := 0; i < h.Len(); i++ {
		v := h.Value(i)
		if v < 0 {
			return Table{}, fmt.Errorf("response: histogram %q has negative content", key(h))
		}
		sum += v
	}
	if sum <= 0 {
		return Table{}, fmt.Errorf("response: histogram %q is empty", key(h))
	}
	width := (h.XMax() - h.XMin()) / float64(h.Len())
	return Table{h: h, norm: 1 / (sum * width)}, nil
}

// Density returns the probability density at x.
func (t Table) Density(x float64) float64 {
	i := Bin(t.h, x)
	if i < 0 {
		return 0
	}
	return t.h.Value(i) * t.norm
}
