// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evio

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-lpc/revan/event"
)

// Feeder is a push-mode source of raw events.
//
// Events are queued with Push and consumed in FIFO order with Next.
// Feeder is safe for concurrent use.
type Feeder struct {
	mu     sync.Mutex
	evts   []*event.RawEvent
	closed bool
}

// NewFeeder creates a new, open, push-mode source.
func NewFeeder() *Feeder {
	return &Feeder{}
}

// Push queues evt.
// Push fails once the input has been closed.
func (f *Feeder) Push(evt *event.RawEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("evio: could not push event %d: input closed", evt.ID)
	}
	f.evts = append(f.evts, evt)
	return nil
}

// CloseInput signals no more events will be pushed.
// Already queued events can still be consumed.
func (f *Feeder) CloseInput() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Len returns the number of queued events.
func (f *Feeder) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.evts)
}

// Next returns the oldest queued event.
// Next returns ErrEmpty when the queue is empty and the input still open,
// and io.EOF when the queue is empty and the input closed.
func (f *Feeder) Next() (*event.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.evts) == 0 {
		if f.closed {
			return nil, io.EOF
		}
		return nil, ErrEmpty
	}

	evt := f.evts[0]
	f.evts[0] = nil
	f.evts = f.evts[1:]
	return evt, nil
}

// Close closes the input and drops every queued event.
func (f *Feeder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.evts = nil
	return nil
}

// ChanSink forwards copies of reconstructed events to a channel.
type ChanSink struct {
	ch   chan<- *event.RawEvent
	once sync.Once
}

// NewChanSink creates a sink sending events on ch.
// ch is closed when the sink is closed.
func NewChanSink(ch chan<- *event.RawEvent) *ChanSink {
	return &ChanSink{ch: ch}
}

// Write sends a deep copy of evt on the channel.
func (sink *ChanSink) Write(evt *event.RawEvent) error {
	sink.ch <- evt.Clone()
	return nil
}

// Close closes the underlying channel.
func (sink *ChanSink) Close() error {
	sink.once.Do(func() { close(sink.ch) })
	return nil
}

var (
	_ Source = (*Feeder)(nil)
	_ Sink   = (*ChanSink)(nil)
)
