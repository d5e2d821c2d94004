// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

// List holds alternative interpretations of the same physical event.
type List struct {
	Events []*RawEvent
}

// Add appends a candidate interpretation to the list.
func (list *List) Add(evt *RawEvent) {
	list.Events = append(list.Events, evt)
}

// Len returns the number of candidates.
func (list *List) Len() int { return len(list.Events) }

// Reset empties the list, keeping its storage.
func (list *List) Reset() {
	for i := range list.Events {
		list.Events[i] = nil
	}
	list.Events = list.Events[:0]
}

// Optimum returns the good candidate with the lowest score, or nil.
// Ties are resolved in favor of the earliest candidate.
func (list *List) Optimum() *RawEvent {
	var best *RawEvent
	for _, evt := range list.Events {
		if !evt.Good() {
			continue
		}
		if best == nil || evt.Score() < best.Score() {
			best = evt
		}
	}
	return best
}

// BestTry returns the best candidate, whether or not it was successfully
// reconstructed: good candidates first, then the lowest score.
func (list *List) BestTry() *RawEvent {
	if evt := list.Optimum(); evt != nil {
		return evt
	}
	var best *RawEvent
	for _, evt := range list.Events {
		if best == nil || evt.Score() < best.Score() {
			best = evt
		}
	}
	return best
}
