// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/revan/analyzer"
	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/evio"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/internal/wire"
	"github.com/go-lpc/revan/stats"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	queueSize  = 1024                  // number of reconstructed frames waiting for /rec
	pollPeriod = 10 * time.Millisecond // waiting time when no raw event is queued
)

// server reconstructs the events of one run, from /start to /stop.
type server struct {
	cfgFile string
	geoFile string

	cfg config.Settings
	geo *geom.Geometry

	metrics *stats.Metrics
	dropped prometheus.Counter

	mu    sync.Mutex
	ana   *analyzer.Analyzer
	feed  *evio.Feeder
	total stats.Statistics // statistics of all the completed runs

	out chan []byte
}

func newServer(cfg, geo string, reg prometheus.Registerer) (*server, error) {
	m, err := stats.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("could not create metrics: %w", err)
	}
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "revan",
		Subsystem: "srv",
		Name:      "dropped_frames_total",
		Help:      "Number of reconstructed events dropped because /rec was not drained.",
	})
	err = reg.Register(dropped)
	if err != nil {
		return nil, fmt.Errorf("could not register metrics: %w", err)
	}

	return &server{
		cfgFile: cfg,
		geoFile: geo,
		cfg:     config.Default(),
		metrics: m,
		dropped: dropped,
		out:     make(chan []byte, queueSize),
	}, nil
}

func (srv *server) load() error {
	cfg := config.Default()
	if srv.cfgFile != "" {
		v, err := config.Load(srv.cfgFile)
		if err != nil {
			return fmt.Errorf("could not load settings: %w", err)
		}
		cfg = v
	}

	if srv.geoFile == "" {
		return fmt.Errorf("missing geometry file")
	}
	geo, err := geom.Load(srv.geoFile)
	if err != nil {
		return fmt.Errorf("could not load geometry: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return err
	}
	err = cfg.ValidateGeometry(geo)
	if err != nil {
		return err
	}

	srv.cfg = cfg
	srv.geo = geo
	return nil
}

// OnConfig loads the settings and the geometry.
// The request body may hold the paths to the settings and geometry files,
// overriding the ones given on the command line.
func (srv *server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	if len(req.Body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		cfg := dec.ReadStr()
		geo := dec.ReadStr()
		if err := dec.Err(); err != nil {
			ctx.Msg.Errorf("could not decode /config request: %+v", err)
			return fmt.Errorf("could not decode /config request: %w", err)
		}
		if cfg != "" {
			srv.cfgFile = cfg
		}
		if geo != "" {
			srv.geoFile = geo
		}
	}

	err := srv.load()
	if err != nil {
		ctx.Msg.Errorf("could not configure server: %+v", err)
		return fmt.Errorf("could not configure server: %w", err)
	}
	ctx.Msg.Infof("geometry %q, tracking=%q, csr=%q",
		srv.geo.Name, srv.cfg.Tracking.Algorithm, srv.cfg.CSR.Algorithm,
	)
	return nil
}

func (srv *server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	if srv.geo == nil {
		return fmt.Errorf("could not initialize server: missing /config")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.total = stats.Statistics{}
	return nil
}

func (srv *server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	err := srv.abort()
	srv.total = stats.Statistics{}
	for len(srv.out) > 0 {
		<-srv.out
	}
	return err
}

// OnStart creates the analyzer of the new run.
func (srv *server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.geo == nil {
		return fmt.Errorf("could not start run: missing /config")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.ana != nil {
		return fmt.Errorf("could not start run: run already in progress")
	}

	feed := evio.NewFeeder()
	ana := analyzer.New(
		srv.cfg, srv.geo,
		analyzer.WithSource(feed),
		analyzer.WithSink(&frameSink{srv: srv}),
		analyzer.WithMetrics(srv.metrics),
		analyzer.WithLogger(ctx.Msg),
	)
	err := ana.PreAnalysis()
	if err != nil {
		_ = ana.Close()
		ctx.Msg.Errorf("could not prepare analysis: %+v", err)
		return fmt.Errorf("could not prepare analysis: %w", err)
	}

	srv.ana = ana
	srv.feed = feed
	return nil
}

// OnStop reconstructs all the queued events and ends the run.
func (srv *server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.ana == nil {
		ctx.Msg.Debugf("received /stop command... (no run)")
		return nil
	}
	ctx.Msg.Debugf("received /stop command... -> queued=%d", srv.feed.Len())

	ana := srv.ana
	srv.ana = nil
	srv.feed.CloseInput()
	srv.feed = nil
	defer ana.Close()

	for {
		status, err := ana.AnalyzeEvent()
		if err != nil {
			return fmt.Errorf("could not analyze queued events: %w", err)
		}
		if status == analyzer.StatusNoMoreEvents {
			break
		}
	}

	err := ana.PostAnalysis()
	if err != nil {
		return fmt.Errorf("could not end run: %w", err)
	}
	srv.total.Merge(ana.Statistics())

	return ana.Close()
}

func (srv *server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	srv.mu.Lock()
	defer srv.mu.Unlock()

	ctx.Msg.Infof("statistics:\n%v", srv.total)
	return srv.abort()
}

// abort drops the current run, if any.
func (srv *server) abort() error {
	if srv.ana == nil {
		return nil
	}
	srv.ana.Interrupt()
	err := srv.ana.Close()
	srv.ana = nil
	srv.feed = nil
	return err
}

func (srv *server) raw(ctx tdaq.Context, src tdaq.Frame) error {
	evt, err := wire.Unmarshal(src.Body)
	if err != nil {
		ctx.Msg.Errorf("could not decode raw event: %+v", err)
		return fmt.Errorf("could not decode raw event: %w", err)
	}

	srv.mu.Lock()
	feed := srv.feed
	srv.mu.Unlock()

	if feed == nil {
		ctx.Msg.Warnf("dropping raw event %d: no run in progress", evt.ID)
		return nil
	}

	err = feed.Push(evt)
	if err != nil {
		ctx.Msg.Warnf("dropping raw event %d: %+v", evt.ID, err)
	}
	return nil
}

func (srv *server) rec(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
	case buf := <-srv.out:
		dst.Body = buf
	}
	return nil
}

func (srv *server) step() (analyzer.Status, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.ana == nil {
		return analyzer.StatusNoMoreEvents, nil
	}
	return srv.ana.AnalyzeEvent()
}

func (srv *server) run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
		}

		status, err := srv.step()
		if err != nil {
			ctx.Msg.Errorf("could not analyze event: %+v", err)
			return err
		}

		switch status {
		case analyzer.StatusQueueEmpty, analyzer.StatusNoMoreEvents:
			select {
			case <-ctx.Ctx.Done():
				return nil
			case <-time.After(pollPeriod):
			}
		}
	}
}

// frameSink encodes reconstructed events into /rec frame bodies.
// Events are dropped when the /rec queue is full.
type frameSink struct {
	srv *server
}

func (sink *frameSink) Write(evt *event.RawEvent) error {
	buf, err := wire.Marshal(evt)
	if err != nil {
		return fmt.Errorf("could not encode event %d: %w", evt.ID, err)
	}
	select {
	case sink.srv.out <- buf:
	default:
		sink.srv.dropped.Inc()
	}
	return nil
}

func (sink *frameSink) Close() error { return nil }

var _ evio.Sink = (*frameSink)(nil)
