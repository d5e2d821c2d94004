// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package evio provides sources of raw events and sinks of reconstructed
// events.
//
// Sources read raw events from LCIO files, from text .evta files or from
// a push-mode Feeder.
// Sinks write reconstructed events to LCIO files, to text .evta files or to
// a channel.
package evio // import "github.com/go-lpc/revan/evio"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/revan/event"
)

// ErrEmpty is returned by a push-mode source whose queue is currently
// empty while its input is still open.
var ErrEmpty = errors.New("evio: no event available")

// Source is a stream of raw events.
//
// Next returns io.EOF once the stream is exhausted.
type Source interface {
	Next() (*event.RawEvent, error)
	Close() error
}

// Sink consumes reconstructed events.
type Sink interface {
	Write(evt *event.RawEvent) error
	Close() error
}

// Open opens the named file as a source of raw events.
// The file format is inferred from the file extension.
func Open(fname string, msg log.MsgStream) (Source, error) {
	if msg == nil {
		msg = log.NewMsgStream("evio", log.LvlInfo, os.Stderr)
	}

	switch ext := strings.ToLower(filepath.Ext(fname)); ext {
	case ".slcio", ".lcio":
		r, err := OpenLCIO(fname, msg)
		if err != nil {
			return nil, err
		}
		return r, nil
	case ".evta":
		f, err := os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("evio: could not open %q: %w", fname, err)
		}
		return &fileReader{TextReader: NewTextReader(f, msg), f: f}, nil
	default:
		return nil, fmt.Errorf("evio: unknown file format %q for %q", ext, fname)
	}
}

// Create creates the named file as a sink of reconstructed events.
// The file format is inferred from the file extension.
func Create(fname string, run int32) (Sink, error) {
	switch ext := strings.ToLower(filepath.Ext(fname)); ext {
	case ".slcio", ".lcio":
		w, err := CreateLCIO(fname, run)
		if err != nil {
			return nil, err
		}
		return w, nil
	case ".evta":
		f, err := os.Create(fname)
		if err != nil {
			return nil, fmt.Errorf("evio: could not create %q: %w", fname, err)
		}
		return &fileWriter{TextWriter: NewTextWriter(f), f: f}, nil
	default:
		return nil, fmt.Errorf("evio: unknown file format %q for %q", ext, fname)
	}
}

type fileReader struct {
	*TextReader
	f *os.File
}

func (r *fileReader) Close() error {
	err := r.f.Close()
	if err != nil {
		return fmt.Errorf("evio: could not close %q: %w", r.f.Name(), err)
	}
	return nil
}

type fileWriter struct {
	*TextWriter
	f *os.File
}

func (w *fileWriter) Close() error {
	err := w.TextWriter.Close()
	if err != nil {
		_ = w.f.Close()
		return err
	}

	err = w.f.Close()
	if err != nil {
		return fmt.Errorf("evio: could not close %q: %w", w.f.Name(), err)
	}
	return nil
}
