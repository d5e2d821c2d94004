// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package analyzer drives the reconstruction of raw events through the
// coincidence, clustering, tracking and Compton-sequence stages.
//
// An Analyzer is used as:
//
//	a := analyzer.New(cfg, geo, analyzer.WithSource(src))
//	err := a.PreAnalysis()
//	for {
//		status, err := a.AnalyzeEvent()
//		switch status {
//		case analyzer.StatusOK:
//			evt := a.OptimumEvent()
//		case analyzer.StatusNoMoreEvents:
//			break loop
//		}
//	}
//	err = a.PostAnalysis()
//	err = a.Close()
package analyzer // import "github.com/go-lpc/revan/analyzer"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/revan/cluster"
	"github.com/go-lpc/revan/coinc"
	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/csr"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/evio"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/stats"
	"github.com/go-lpc/revan/track"
)

// Status is the outcome of one AnalyzeEvent call.
type Status uint8

const (
	// StatusOK reports a reconstructed event is available.
	StatusOK Status = iota
	// StatusNeedMoreInput reports the coincidence window absorbed the
	// input unit and needs more input to close the pending event.
	StatusNeedMoreInput
	// StatusQueueEmpty reports no event is currently queued, in push mode.
	StatusQueueEmpty
	// StatusNoMoreEvents reports the input is exhausted, or the analysis
	// was interrupted.
	StatusNoMoreEvents
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNeedMoreInput:
		return "need-more-input"
	case StatusQueueEmpty:
		return "queue-empty"
	case StatusNoMoreEvents:
		return "no-more-events"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

type state uint8

const (
	stateIdle state = iota
	stateReady
	stateAnalyzing
	statePostAnalysis
	stateClosed
)

var stateNames = [...]string{
	stateIdle:         "idle",
	stateReady:        "ready",
	stateAnalyzing:    "analyzing",
	statePostAnalysis: "post-analysis",
	stateClosed:       "closed",
}

func (s state) String() string { return stateNames[s] }

// Analyzer reconstructs raw events, one at a time.
//
// The geometry and the settings are only read and may be shared between
// analyzers. Everything else is owned by one analyzer, which must not be
// used from multiple goroutines, except for Interrupt.
type Analyzer struct {
	cfg config.Settings
	geo *geom.Geometry
	msg log.MsgStream

	src  evio.Source
	sink evio.Sink
	feed *evio.Feeder // push-mode input, nil in file mode

	hists   *stats.Histos
	metrics *stats.Metrics

	state state
	stop  atomic.Bool

	noCoinc bool
	win     *coinc.Window
	clus    cluster.Clusterer
	trk     *track.Tracker // nil when tracking is disabled
	csr     *csr.Reconstructor

	list  event.List
	stats stats.Statistics
}

// Option configures an Analyzer.
type Option func(a *Analyzer)

// WithSource sets the source of raw events.
// Without a source, the analyzer runs in push mode: events are provided
// with AddRawEvent.
func WithSource(src evio.Source) Option {
	return func(a *Analyzer) {
		a.src = src
	}
}

// WithSink sets the sink receiving every reconstructed event.
func WithSink(sink evio.Sink) Option {
	return func(a *Analyzer) {
		a.sink = sink
	}
}

// WithLogger sets the message stream of the analyzer.
func WithLogger(msg log.MsgStream) Option {
	return func(a *Analyzer) {
		a.msg = msg
	}
}

// WithMetrics sets the Prometheus metrics updated with every event.
func WithMetrics(m *stats.Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithHistos sets the monitoring histograms filled with every event.
func WithHistos(hs *stats.Histos) Option {
	return func(a *Analyzer) {
		a.hists = hs
	}
}

// withoutCoincidence disables the coincidence window, for analyzers fed
// with already grouped events.
func withoutCoincidence() Option {
	return func(a *Analyzer) {
		a.noCoinc = true
	}
}

// New creates a new, idle, analyzer.
func New(cfg config.Settings, geo *geom.Geometry, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg: cfg,
		geo: geo,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.msg == nil {
		a.msg = log.NewMsgStream("revan", log.LvlInfo, os.Stdout)
	}
	if a.src == nil {
		a.feed = evio.NewFeeder()
		a.src = a.feed
	}
	return a
}

func (a *Analyzer) check(states ...state) error {
	for _, s := range states {
		if a.state == s {
			return nil
		}
	}
	return fmt.Errorf("analyzer: invalid state %q", a.state)
}

func configError(msg string, err error) error {
	if errors.Is(err, config.ErrConfig) {
		return fmt.Errorf("analyzer: %s: %w", msg, err)
	}
	return fmt.Errorf("analyzer: %s: %w: %w", msg, config.ErrConfig, err)
}

// PreAnalysis validates the settings against the geometry, loads every
// response file the selected algorithms need and instantiates the
// reconstruction stages.
// Every returned error wraps config.ErrConfig.
func (a *Analyzer) PreAnalysis() error {
	err := a.check(stateIdle)
	if err != nil {
		return err
	}

	err = a.cfg.Validate()
	if err != nil {
		return configError("invalid settings", err)
	}
	err = a.cfg.ValidateGeometry(a.geo)
	if err != nil {
		return configError("invalid geometry", err)
	}

	coincidence := a.cfg.Coincidence
	if a.noCoinc {
		coincidence.Enabled = false
	}
	a.win = coinc.New(coincidence)

	a.clus, err = cluster.New(a.cfg.Clustering, a.geo)
	if err != nil {
		return configError("could not create clusterer", err)
	}

	if a.cfg.Tracking.Algorithm != config.TrackNone {
		a.trk, err = track.New(a.cfg.Tracking, a.geo)
		if err != nil {
			return configError("could not create tracker", err)
		}
	}

	a.csr, err = csr.New(a.cfg.CSR, a.geo)
	if err != nil {
		return configError("could not create Compton-sequence reconstructor", err)
	}

	a.msg.Debugf(
		"pre-analysis: clustering=%s tracking=%s csr=%s coincidence=%v",
		a.cfg.Clustering.Algorithm, a.cfg.Tracking.Algorithm,
		a.cfg.CSR.Algorithm, coincidence.Enabled,
	)

	a.state = stateReady
	return nil
}

// AddRawEvent queues evt for analysis, in push mode.
func (a *Analyzer) AddRawEvent(evt *event.RawEvent) error {
	if a.feed == nil {
		return fmt.Errorf("analyzer: could not add event %d: analyzer reads from a source", evt.ID)
	}
	err := a.check(stateIdle, stateReady, stateAnalyzing)
	if err != nil {
		return err
	}
	return a.feed.Push(evt)
}

// CloseInput signals no more events will be added, in push mode.
func (a *Analyzer) CloseInput() {
	if a.feed == nil {
		return
	}
	a.feed.CloseInput()
}

// Interrupt requests the analysis to stop.
// The next call to AnalyzeEvent returns StatusNoMoreEvents.
// Interrupt is safe for concurrent use.
func (a *Analyzer) Interrupt() {
	a.stop.Store(true)
}

// Interrupted returns whether Interrupt was called.
func (a *Analyzer) Interrupted() bool {
	return a.stop.Load()
}

// AnalyzeEvent pulls the next input unit and, once the coincidence stage
// closes an event, reconstructs it.
// Errors are only returned for input or output failures.
func (a *Analyzer) AnalyzeEvent() (Status, error) {
	err := a.check(stateReady, stateAnalyzing)
	if err != nil {
		return StatusNoMoreEvents, err
	}

	if a.stop.Load() {
		return StatusNoMoreEvents, nil
	}

	a.state = stateAnalyzing
	a.list.Reset()

	unit, err := a.src.Next()
	switch {
	case err == nil:
		evt := a.win.Add(unit)
		if evt == nil {
			return StatusNeedMoreInput, nil
		}
		return StatusOK, a.process(evt)

	case errors.Is(err, evio.ErrEmpty):
		return StatusQueueEmpty, nil

	case errors.Is(err, io.EOF):
		if evt := a.win.Flush(); evt != nil {
			return StatusOK, a.process(evt)
		}
		return StatusNoMoreEvents, nil

	default:
		return StatusNoMoreEvents, fmt.Errorf("analyzer: could not read next event: %w", err)
	}
}

// process reconstructs evt, records it and emits it.
func (a *Analyzer) process(evt *event.RawEvent) error {
	a.stats.Read++
	a.reconstruct(evt)

	out := a.list.BestTry()
	a.stats.Record(out)
	if a.hists != nil {
		a.hists.Fill(out)
	}
	if a.metrics != nil {
		a.metrics.Observe(out)
	}
	if out.Rejected() {
		a.msg.Debugf("event %d rejected: %v", out.ID, out.Reason)
	}

	if a.sink == nil {
		return nil
	}
	err := a.sink.Write(out)
	if err != nil {
		return fmt.Errorf("analyzer: could not write event %d: %w", out.ID, err)
	}
	return nil
}

// reconstruct runs the selection and reconstruction stages on evt and
// fills the list of candidate interpretations.
func (a *Analyzer) reconstruct(evt *event.RawEvent) {
	sel := a.cfg.Selection
	switch {
	case evt.Bad && sel.RejectAllBadEvents:
		evt.Reject(event.ReasonBadFlagged)
	case !sel.EventID.Contains(evt.ID):
		evt.Reject(event.ReasonEventIDOutOfRange)
	case evt.NHits() == 0:
		evt.Reject(event.ReasonNoHits)
	case !sel.TotalEnergy.Contains(evt.Energy()):
		evt.Reject(event.ReasonEnergyOutOfRange)
	case !a.triggered(evt):
		evt.Reject(event.ReasonNoTrigger)
	}
	if evt.Rejected() {
		a.list.Add(evt)
		return
	}

	cluster.Apply(a.clus, evt)

	if !sel.LeverArm.Contains(evt.LeverArm()) {
		evt.Reject(event.ReasonLeverArmOutOfRange)
		a.list.Add(evt)
		return
	}

	if n := len(evt.RESEs); n > config.MaxNHitsWarn && n <= a.cfg.CSR.MaxNHits {
		a.msg.Warnf("event %d: sequencing %d interaction sites may be slow", evt.ID, n)
	}

	cands := []*event.RawEvent{evt}
	if a.trk != nil {
		cands = a.trk.Track(evt)
	}
	for _, cand := range cands {
		a.csr.Reconstruct(cand)
		a.list.Add(cand)
	}
}

// triggered returns whether evt holds a hit in a trigger detector.
// Geometries without trigger detectors accept every event.
func (a *Analyzer) triggered(evt *event.RawEvent) bool {
	if !a.geo.HasTrigger() {
		return true
	}
	for _, rese := range evt.RESEs {
		for _, hit := range rese.AllHits() {
			if a.geo.Trigger(hit.DetID) {
				return true
			}
		}
	}
	return false
}

// OptimumEvent returns a copy of the best consistently reconstructed
// interpretation of the last analyzed event, or nil.
func (a *Analyzer) OptimumEvent() *event.RawEvent {
	return a.list.Optimum().Clone()
}

// BestTryEvent returns a copy of the best interpretation of the last
// analyzed event, whether or not it was consistently reconstructed.
func (a *Analyzer) BestTryEvent() *event.RawEvent {
	return a.list.BestTry().Clone()
}

// PostAnalysis finalizes the statistics and closes the sink.
func (a *Analyzer) PostAnalysis() error {
	err := a.check(stateReady, stateAnalyzing)
	if err != nil {
		return err
	}
	a.state = statePostAnalysis

	if a.win.Pending() {
		a.list.Reset()
		err = a.process(a.win.Flush())
		if err != nil {
			return err
		}
	}

	if a.sink != nil {
		err = a.sink.Close()
		a.sink = nil
		if err != nil {
			return fmt.Errorf("analyzer: could not close sink: %w", err)
		}
	}

	a.msg.Infof("statistics:\n%v", a.stats)
	return nil
}

// Statistics returns the counters of the analyzer.
func (a *Analyzer) Statistics() stats.Statistics {
	return a.stats
}

// JoinStatistics merges the counters of o into the analyzer.
func (a *Analyzer) JoinStatistics(o *Analyzer) {
	a.stats.Merge(o.stats)
}

// Close releases the source and, if PostAnalysis was not called, the sink.
func (a *Analyzer) Close() error {
	if a.state == stateClosed {
		return nil
	}
	a.state = stateClosed

	var errs []error
	if a.sink != nil {
		err := a.sink.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("analyzer: could not close sink: %w", err))
		}
		a.sink = nil
	}
	err := a.src.Close()
	if err != nil {
		errs = append(errs, fmt.Errorf("analyzer: could not close source: %w", err))
	}
	return errors.Join(errs...)
}
