// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/go-lpc/revan/event"
	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hbook/yodacnv"
)

// Histos holds the monitoring histograms of a reconstruction run.
//
// Histos is safe for concurrent use.
type Histos struct {
	mu sync.Mutex

	Energy  *hbook.H1D // total deposited energy (keV) of good events
	Quality *hbook.H1D // log10 of the sequence quality of Compton events
	Sites   *hbook.H1D // number of interaction sites of good events
	Types   *hbook.H1D // event types
	Reasons *hbook.H1D // rejection reasons
	Escaped *hbook.H1D // recovered escaped energy (keV)
}

// NewHistos creates the monitoring histograms.
func NewHistos() *Histos {
	return &Histos{
		Energy:  newH1D("energy", 200, 0, 10000),
		Quality: newH1D("quality", 100, -10, 5),
		Sites:   newH1D("nsites", 20, 0, 20),
		Types:   newH1D("types", event.NTypes, 0, event.NTypes),
		Reasons: newH1D("reasons", event.NReasons, 0, event.NReasons),
		Escaped: newH1D("escaped", 200, 0, 10000),
	}
}

func newH1D(name string, n int, xmin, xmax float64) *hbook.H1D {
	h := hbook.NewH1D(n, xmin, xmax)
	h.Annotation()["name"] = name
	return h
}

// Fill accounts for a fully processed event.
func (hs *Histos) Fill(evt *event.RawEvent) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	hs.Types.Fill(float64(evt.Type)+0.5, 1)
	if evt.Rejected() {
		hs.Reasons.Fill(float64(evt.Reason)+0.5, 1)
		return
	}
	if !evt.Good() {
		return
	}
	hs.Energy.Fill(evt.Energy(), 1)
	hs.Sites.Fill(float64(len(evt.RESEs)), 1)
	if evt.Type == event.Compton {
		hs.Quality.Fill(math.Log10(math.Max(evt.Quality, 1e-10)), 1)
	}
	if evt.Escaped > 0 {
		hs.Escaped.Fill(evt.Escaped, 1)
	}
}

func (hs *Histos) list() []yodacnv.Marshaler {
	return []yodacnv.Marshaler{
		hs.Energy, hs.Quality, hs.Sites, hs.Types, hs.Reasons, hs.Escaped,
	}
}

// Write encodes the histograms in the YODA format to w.
func (hs *Histos) Write(w io.Writer) error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	err := yodacnv.Write(w, hs.list()...)
	if err != nil {
		return fmt.Errorf("stats: could not write histograms: %w", err)
	}
	return nil
}

// Save writes the histograms to the named YODA file.
func (hs *Histos) Save(fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("stats: could not create histograms file: %w", err)
	}
	defer f.Close()

	err = hs.Write(f)
	if err != nil {
		return err
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("stats: could not close histograms file: %w", err)
	}
	return nil
}
