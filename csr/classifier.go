// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// ModelKind is the kind of a trained sequence classifier.
type ModelKind string

const (
	Logistic ModelKind = "logistic" // s = 1/(1+exp(-z))
	Fisher   ModelKind = "fisher"   // s = z
)

// Model is a trained linear classifier of Compton sequences.
// The response is z = Bias + Σ Weights[i]*feature(Features[i]).
type Model struct {
	Kind     ModelKind `yaml:"kind"`
	Features []string  `yaml:"features"`
	Weights  []float64 `yaml:"weights"`
	Bias     float64   `yaml:"bias"`
}

// LoadModel loads a classifier model from the named YAML file.
func LoadModel(fname string) (Model, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Model{}, fmt.Errorf("csr: could not open model file: %w", err)
	}
	defer f.Close()

	m, err := ReadModel(f)
	if err != nil {
		return m, fmt.Errorf("csr: could not read model %q: %w", fname, err)
	}
	return m, nil
}

// ReadModel decodes a classifier model from r.
func ReadModel(r io.Reader) (Model, error) {
	var m Model
	err := yaml.NewDecoder(r).Decode(&m)
	if err != nil {
		return m, fmt.Errorf("csr: could not decode model: %w", err)
	}
	return m, nil
}

// Write encodes the model as YAML to w.
func (m Model) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	err := enc.Encode(m)
	if err != nil {
		return fmt.Errorf("csr: could not encode model: %w", err)
	}
	return enc.Close()
}

type feature func(sites []Site, seq []int, f *featureSet) float64

// featureSet holds the per-sequence quantities shared by the features.
type featureSet struct {
	etot  float64
	terms []scatterTerm
}

// Features lists the names of the sequence features a model may use.
func Features() []string {
	return append([]string(nil), featureNames...)
}

var featureNames = []string{
	"n-sites", "e-total", "e-first", "e-first-frac",
	"dist-first", "min-dist", "cos-first", "dcos-mean", "dcos-max",
}

var features = map[string]feature{
	"n-sites": func(sites []Site, seq []int, f *featureSet) float64 {
		return float64(len(seq))
	},
	"e-total": func(sites []Site, seq []int, f *featureSet) float64 {
		return f.etot
	},
	"e-first": func(sites []Site, seq []int, f *featureSet) float64 {
		return sites[seq[0]].E
	},
	"e-first-frac": func(sites []Site, seq []int, f *featureSet) float64 {
		return sites[seq[0]].E / f.etot
	},
	"dist-first": func(sites []Site, seq []int, f *featureSet) float64 {
		if len(seq) < 2 {
			return 0
		}
		return r3.Norm(r3.Sub(sites[seq[1]].Pos, sites[seq[0]].Pos))
	},
	"min-dist": func(sites []Site, seq []int, f *featureSet) float64 {
		if len(seq) < 2 {
			return 0
		}
		min := math.Inf(+1)
		for j := 1; j < len(seq); j++ {
			min = math.Min(min, r3.Norm(r3.Sub(sites[seq[j]].Pos, sites[seq[j-1]].Pos)))
		}
		return min
	},
	"cos-first": func(sites []Site, seq []int, f *featureSet) float64 {
		return ComptonCos(f.etot, f.etot-sites[seq[0]].E)
	},
	"dcos-mean": func(sites []Site, seq []int, f *featureSet) float64 {
		if len(f.terms) == 0 {
			return 0
		}
		sum := 0.0
		for _, t := range f.terms {
			sum += math.Abs(t.dcos)
		}
		return sum / float64(len(f.terms))
	},
	"dcos-max": func(sites []Site, seq []int, f *featureSet) float64 {
		max := 0.0
		for _, t := range f.terms {
			max = math.Max(max, math.Abs(t.dcos))
		}
		return max
	},
}

// Classifier scores a sequence with 1-s, s being the response of a trained
// linear classifier.
type Classifier struct {
	kind ModelKind
	fcts []feature
	ws   []float64
	bias float64

	fs   featureSet
	vals []float64
}

// NewClassifier creates a classifier scorer from a trained model.
func NewClassifier(m Model) (*Classifier, error) {
	switch m.Kind {
	case Logistic, Fisher:
	default:
		return nil, fmt.Errorf("csr: unknown classifier kind %q", m.Kind)
	}
	if len(m.Features) != len(m.Weights) {
		return nil, fmt.Errorf(
			"csr: classifier features/weights mismatch (features=%d, weights=%d)",
			len(m.Features), len(m.Weights),
		)
	}
	c := &Classifier{
		kind: m.Kind,
		fcts: make([]feature, len(m.Features)),
		ws:   append([]float64(nil), m.Weights...),
		bias: m.Bias,
		vals: make([]float64, len(m.Features)),
	}
	for i, name := range m.Features {
		f, ok := features[name]
		if !ok {
			return nil, fmt.Errorf("csr: unknown classifier feature %q", name)
		}
		c.fcts[i] = f
	}
	return c, nil
}

// Response returns the classifier response s for the sequence.
func (c *Classifier) Response(sites []Site, seq []int) (float64, bool) {
	c.fs.etot = sumE(sites)
	terms, ok := scatters(c.fs.terms, sites, seq, c.fs.etot)
	c.fs.terms = terms
	if !ok || !(c.fs.etot > 0) {
		return 0, false
	}
	for i, f := range c.fcts {
		c.vals[i] = f(sites, seq, &c.fs)
	}
	z := c.bias + floats.Dot(c.ws, c.vals)
	switch c.kind {
	case Logistic:
		return 1 / (1 + math.Exp(-z)), true
	default:
		return z, true
	}
}

func (c *Classifier) Score(sites []Site, seq []int) Result {
	s, ok := c.Response(sites, seq)
	if !ok || math.IsNaN(s) {
		return Result{}
	}
	return Result{Quality: 1 - s, OK: true}
}

var _ Scorer = (*Classifier)(nil)
