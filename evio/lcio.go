// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evio

import (
	"compress/flate"
	"errors"
	"fmt"
	"io"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/internal/xcnv"
	"go-hep.org/x/hep/lcio"
)

// LCIOReader reads raw events from an LCIO file.
type LCIOReader struct {
	r   *lcio.Reader
	msg log.MsgStream
	n   int
}

// OpenLCIO opens the named LCIO file.
func OpenLCIO(fname string, msg log.MsgStream) (*LCIOReader, error) {
	r, err := lcio.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("evio: could not open LCIO file %q: %w", fname, err)
	}
	return &LCIOReader{r: r, msg: msg}, nil
}

// Next returns the next raw event from the LCIO file.
// A failure to read past the last complete event is reported as a
// warning and ends the stream.
func (r *LCIOReader) Next() (*event.RawEvent, error) {
	if !r.r.Next() {
		err := r.r.Err()
		if err != nil && !errors.Is(err, io.EOF) {
			r.msg.Warnf("could not read LCIO record after %d events: %+v", r.n, err)
		}
		return nil, io.EOF
	}

	evt := r.r.Event()
	raw, err := xcnv.FromLCIO(&evt)
	if err != nil {
		return nil, fmt.Errorf("evio: could not convert LCIO event %d: %w", evt.EventNumber, err)
	}
	r.n++
	return raw, nil
}

// Close closes the underlying LCIO file.
func (r *LCIOReader) Close() error {
	err := r.r.Close()
	if err != nil {
		return fmt.Errorf("evio: could not close LCIO file: %w", err)
	}
	return nil
}

// LCIOWriter writes reconstructed events to an LCIO file.
type LCIOWriter struct {
	w   *lcio.Writer
	run int32
}

// CreateLCIO creates the named LCIO file and writes its run header.
func CreateLCIO(fname string, run int32) (*LCIOWriter, error) {
	w, err := lcio.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("evio: could not create LCIO file %q: %w", fname, err)
	}
	w.SetCompressionLevel(flate.BestCompression)

	err = w.WriteRunHeader(&lcio.RunHeader{
		RunNumber: run,
		Detector:  xcnv.Detector,
		Descr:     "reconstructed events",
		Params: lcio.Params{
			Strings: map[string][]string{
				"Collections": {xcnv.RawHits, xcnv.RESEs},
			},
		},
	})
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("evio: could not write LCIO run header: %w", err)
	}

	return &LCIOWriter{w: w, run: run}, nil
}

// Write writes the hits and the reconstruction of evt.
func (w *LCIOWriter) Write(evt *event.RawEvent) error {
	out := xcnv.ToLCIO(evt, w.run)
	err := w.w.WriteEvent(&out)
	if err != nil {
		return fmt.Errorf("evio: could not write LCIO event %d: %w", evt.ID, err)
	}
	return nil
}

// Close flushes and closes the LCIO file.
func (w *LCIOWriter) Close() error {
	err := w.w.Close()
	if err != nil {
		return fmt.Errorf("evio: could not close LCIO file: %w", err)
	}
	return nil
}

var (
	_ Source = (*LCIOReader)(nil)
	_ Sink   = (*LCIOWriter)(nil)
)
