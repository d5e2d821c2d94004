// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/revan/cluster"
	"github.com/go-lpc/revan/csr"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/internal/response"
	"github.com/go-lpc/revan/track"
)

func TestCreate(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "resp.yoda")

	opts := defaults()
	err := create(fname, opts)
	if err != nil {
		t.Fatalf("could not create response file: %+v", err)
	}

	f, err := response.Open(fname)
	if err != nil {
		t.Fatalf("could not open response file: %+v", err)
	}

	if got, want := len(f.Names()), geom.NTypes+6; got != want {
		t.Fatalf("invalid number of histograms: got=%d, want=%d", got, want)
	}

	pdf, err := cluster.NewPDF(f, 0.5)
	if err != nil {
		t.Fatalf("could not create pdf clusterer: %+v", err)
	}
	for _, tc := range []struct {
		d    float64
		want float64
	}{
		{0.01, math.Exp(-0.05 / opts.scale)},
		{0.25, math.Exp(-0.25 / opts.scale)},
		{4.99, math.Exp(-4.95 / opts.scale)},
		{5.5, 0},
	} {
		got := pdf.Probability(geom.Calorimeter, tc.d)
		if math.Abs(got-tc.want) > 1e-6 {
			t.Fatalf("invalid probability at d=%v: got=%v, want=%v", tc.d, got, tc.want)
		}
	}

	_, err = track.NewBayesian(f)
	if err != nil {
		t.Fatalf("could not create bayesian tracking scorer: %+v", err)
	}

	_, err = csr.NewBayesian(f)
	if err != nil {
		t.Fatalf("could not create bayesian sequencing scorer: %+v", err)
	}

	out := new(strings.Builder)
	err = list(out, fname)
	if err != nil {
		t.Fatalf("could not list response file: %+v", err)
	}
	for _, want := range []string{
		"=== " + fname + " ===\n",
		"cluster/pdf/strip2d            bins=  50 range=[0, 5]",
		"csr/dcos/good",
		"track/angle/bad",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in listing:\n%s", want, out.String())
		}
	}
}

func TestCreateInvalid(t *testing.T) {
	tmp := t.TempDir()
	for _, tc := range []struct {
		name string
		mod  func(o *options)
		want string
	}{
		{"bins", func(o *options) { o.nbins = 0 }, "invalid number of bins 0"},
		{"dmax", func(o *options) { o.dmax = -1 }, "invalid maximal distance -1"},
		{"scale", func(o *options) { o.scale = 0 }, "invalid decay length 0"},
		{"angle", func(o *options) { o.angle = 0 }, "invalid mean scatter angle 0"},
		{"sigma", func(o *options) { o.sigma = 0 }, "invalid cosine difference width 0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := defaults()
			tc.mod(&opts)
			err := create(filepath.Join(tmp, tc.name+".yoda"), opts)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.want; got != want {
				t.Fatalf("invalid error: got=%q, want=%q", got, want)
			}
		})
	}

	err := list(new(strings.Builder), filepath.Join(tmp, "not-there.yoda"))
	if err == nil {
		t.Fatalf("expected an error listing a missing file")
	}
}
