// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-lpc/revan/coinc"
	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/evio"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/stats"
	"golang.org/x/sync/errgroup"
)

// pollPeriod is the waiting time between two polls of an empty push-mode
// source.
const pollPeriod = time.Millisecond

// RunParallel reconstructs every event of src with n analyzers running
// concurrently, and returns their merged statistics.
//
// The coincidence window is applied by the dispatcher before events are
// handed to the analyzers. Reconstructed events are written to sink, if
// any, in no particular order. sink is closed by RunParallel, src is not.
// Cancelling ctx stops the analysis without error.
func RunParallel(ctx context.Context, n int, src evio.Source, sink evio.Sink, cfg config.Settings, geo *geom.Geometry, opts ...Option) (stats.Statistics, error) {
	var sum stats.Statistics
	if n <= 0 {
		return sum, fmt.Errorf("analyzer: invalid number of workers %d: %w", n, config.ErrConfig)
	}

	var (
		grp, gctx = errgroup.WithContext(ctx)

		shared  = &lockedSink{sink: sink}
		workers = make([]*Analyzer, n)
		ch      = make(chan *event.RawEvent, n)
	)
	for i := range workers {
		wopts := append([]Option(nil), opts...)
		wopts = append(wopts,
			WithSource(&chanSource{ctx: gctx, ch: ch}),
			withoutCoincidence(),
		)
		if sink != nil {
			wopts = append(wopts, WithSink(shared))
		}
		workers[i] = New(cfg, geo, wopts...)
		err := workers[i].PreAnalysis()
		if err != nil {
			return sum, fmt.Errorf("analyzer: could not prepare worker %d: %w", i, err)
		}
	}

	grp.Go(func() error {
		defer close(ch)
		return dispatch(gctx, src, coinc.New(cfg.Coincidence), ch)
	})

	for i := range workers {
		a := workers[i]
		grp.Go(func() error {
			defer a.Close()
			for {
				if gctx.Err() != nil {
					a.Interrupt()
				}
				status, err := a.AnalyzeEvent()
				if err != nil {
					return err
				}
				if status == StatusNoMoreEvents {
					return a.PostAnalysis()
				}
			}
		})
	}

	err := grp.Wait()
	for _, a := range workers {
		sum.Merge(a.Statistics())
	}

	if sink != nil {
		e := sink.Close()
		if e != nil && err == nil {
			err = fmt.Errorf("analyzer: could not close sink: %w", e)
		}
	}

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	return sum, err
}

// dispatch reads src, groups its units with the coincidence window and
// sends the closed events on ch.
func dispatch(ctx context.Context, src evio.Source, win *coinc.Window, ch chan<- *event.RawEvent) error {
	send := func(evt *event.RawEvent) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- evt:
			return nil
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		unit, err := src.Next()
		switch {
		case err == nil:
			if evt := win.Add(unit); evt != nil {
				err = send(evt)
				if err != nil {
					return err
				}
			}

		case errors.Is(err, evio.ErrEmpty):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollPeriod):
			}

		case errors.Is(err, io.EOF):
			if evt := win.Flush(); evt != nil {
				return send(evt)
			}
			return nil

		default:
			return fmt.Errorf("analyzer: could not read next event: %w", err)
		}
	}
}

// chanSource is the source of one worker of RunParallel.
type chanSource struct {
	ctx context.Context
	ch  <-chan *event.RawEvent
}

func (src *chanSource) Next() (*event.RawEvent, error) {
	select {
	case <-src.ctx.Done():
		return nil, io.EOF
	case evt, ok := <-src.ch:
		if !ok {
			return nil, io.EOF
		}
		return evt, nil
	}
}

func (src *chanSource) Close() error { return nil }

// lockedSink serializes the writes of all the workers of RunParallel.
// Closing is left to RunParallel.
type lockedSink struct {
	mu   sync.Mutex
	sink evio.Sink
}

func (s *lockedSink) Write(evt *event.RawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink.Write(evt)
}

func (s *lockedSink) Close() error { return nil }

var (
	_ evio.Source = (*chanSource)(nil)
	_ evio.Sink   = (*lockedSink)(nil)
)
