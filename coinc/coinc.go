// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coinc groups time-stamped hit groups into candidate events.
package coinc // import "github.com/go-lpc/revan/coinc"

import (
	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
)

// Window merges input units whose time lies within a fixed window of the
// first unit of the pending group.
//
// A disabled window passes each input unit through.
type Window struct {
	enabled bool
	width   float64

	pending *event.RawEvent
}

// New creates a new coincidence window from the provided settings.
func New(cfg config.Coincidence) *Window {
	return &Window{
		enabled: cfg.Enabled,
		width:   cfg.Window,
	}
}

// Enabled returns whether the coincidence search is enabled.
func (w *Window) Enabled() bool { return w.enabled }

// Add pushes one input unit into the window.
// Add returns the event closed by this unit, or nil when more input is
// needed to decide whether the pending group is complete.
// Add takes ownership of evt.
func (w *Window) Add(evt *event.RawEvent) *event.RawEvent {
	if !w.enabled {
		return evt
	}

	if w.pending == nil {
		w.pending = evt
		return nil
	}

	if evt.Time-w.pending.Time <= w.width {
		merge(w.pending, evt)
		return nil
	}

	out := w.pending
	w.pending = evt
	return out
}

// Flush returns the pending group, if any, and empties the window.
func (w *Window) Flush() *event.RawEvent {
	out := w.pending
	w.pending = nil
	return out
}

// Pending returns whether a group is waiting for more input.
func (w *Window) Pending() bool { return w.pending != nil }

// merge appends the sub-elements of src to dst.
// dst keeps its ID and time.
func merge(dst, src *event.RawEvent) {
	for _, rese := range src.RESEs {
		rese.ID = len(dst.RESEs) + 1
		dst.RESEs = append(dst.RESEs, rese)
	}
	if src.Bad && !dst.Bad {
		dst.Bad = true
		dst.BadReason = src.BadReason
	}
}
