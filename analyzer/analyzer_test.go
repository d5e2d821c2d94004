// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package analyzer

import (
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/evio"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/spatial/r3"
)

func newTestGeo(t *testing.T) *geom.Geometry {
	t.Helper()
	geo, err := geom.New("test", []geom.Detector{
		{
			Name: "D1", Type: geom.Strip2D,
			Min:      r3.Vec{X: -10, Y: -10, Z: 0},
			Max:      r3.Vec{X: +10, Y: +10, Z: 10},
			Voxel:    r3.Vec{X: 1, Y: 1, Z: 1},
			Tracking: true,
			Trigger:  true,
		},
		{
			Name: "D2", Type: geom.Calorimeter,
			Min:   r3.Vec{X: -20, Y: -20, Z: -20},
			Max:   r3.Vec{X: +20, Y: +20, Z: -5},
			Voxel: r3.Vec{X: 1, Y: 1, Z: 0},
		},
	})
	if err != nil {
		t.Fatalf("could not create geometry: %+v", err)
	}
	return geo
}

func newSettings() config.Settings {
	cfg := config.Default()
	cfg.Tracking.Algorithm = config.TrackNone
	return cfg
}

func newLogger() log.MsgStream {
	return log.NewMsgStream("revan", log.LvlError, io.Discard)
}

// hit returns a raw hit, in the strip detector when z >= 0 and in the
// calorimeter otherwise.
func hit(x, y, z, e float64) event.Hit {
	h := event.Hit{Pos: r3.Vec{X: x, Y: y, Z: z}, E: e, Det: geom.Strip2D, DetID: 0}
	if z < 0 {
		h.Det, h.DetID = geom.Calorimeter, 1
	}
	return h
}

func newEvent(id uint64, t float64, hits ...event.Hit) *event.RawEvent {
	evt := &event.RawEvent{ID: id, Time: t}
	for i, h := range hits {
		h.Time = t
		evt.RESEs = append(evt.RESEs, event.NewHit(i+1, h))
	}
	return evt
}

// analyze runs a push-mode analyzer over evts and returns the best try
// of each event.
func analyze(t *testing.T, cfg config.Settings, evts ...*event.RawEvent) ([]*event.RawEvent, *Analyzer) {
	t.Helper()

	a := New(cfg, newTestGeo(t), WithLogger(newLogger()))
	err := a.PreAnalysis()
	if err != nil {
		t.Fatalf("could not run pre-analysis: %+v", err)
	}
	for _, evt := range evts {
		err = a.AddRawEvent(evt)
		if err != nil {
			t.Fatalf("could not add event: %+v", err)
		}
	}
	a.CloseInput()

	var out []*event.RawEvent
loop:
	for {
		status, err := a.AnalyzeEvent()
		if err != nil {
			t.Fatalf("could not analyze event: %+v", err)
		}
		switch status {
		case StatusOK:
			out = append(out, a.BestTryEvent())
		case StatusNoMoreEvents:
			break loop
		case StatusQueueEmpty:
			t.Fatalf("unexpected empty queue with closed input")
		}
	}

	err = a.PostAnalysis()
	if err != nil {
		t.Fatalf("could not run post-analysis: %+v", err)
	}
	err = a.Close()
	if err != nil {
		t.Fatalf("could not close analyzer: %+v", err)
	}
	return out, a
}

func TestScenarios(t *testing.T) {
	many := make([]event.Hit, 8)
	for i := range many {
		z := 5.0
		if i%2 == 1 {
			z = -10
		}
		many[i] = hit(float64(3*i-10), 0, z, 100)
	}

	for _, tc := range []struct {
		name   string
		mod    func(cfg *config.Settings)
		evt    *event.RawEvent
		typ    event.Type
		reason event.Reason
		check  func(t *testing.T, evt *event.RawEvent)
	}{
		{
			name: "compton-two-sites",
			evt:  newEvent(1, 0, hit(0, 0, -10, 700), hit(0, 0, 8, 300)),
			typ:  event.Compton,
			check: func(t *testing.T, evt *event.RawEvent) {
				if got, want := len(evt.Seq), 2; got != want {
					t.Fatalf("invalid sequence length: got=%d, want=%d", got, want)
				}
				if got, want := evt.RESEs[evt.Seq[0]].Energy(), 300.0; got != want {
					t.Fatalf("invalid start point energy: got=%v, want=%v", got, want)
				}
				if !evt.Decided {
					t.Fatalf("event not decided")
				}
			},
		},
		{
			name: "photo",
			evt:  newEvent(2, 0, hit(1, 1, 5, 511)),
			typ:  event.Photo,
			check: func(t *testing.T, evt *event.RawEvent) {
				if got, want := evt.Seq, []int{0}; len(got) != 1 || got[0] != want[0] {
					t.Fatalf("invalid sequence: got=%v, want=%v", got, want)
				}
				if evt.Quality != 0 {
					t.Fatalf("invalid photo quality: %v", evt.Quality)
				}
			},
		},
		{
			name: "energy-out-of-range",
			mod: func(cfg *config.Settings) {
				cfg.Selection.TotalEnergy = config.Range{Min: 0, Max: 500}
			},
			evt:    newEvent(3, 0, hit(0, 0, -10, 700), hit(0, 0, 8, 300)),
			typ:    event.Unknown,
			reason: event.ReasonEnergyOutOfRange,
			check: func(t *testing.T, evt *event.RawEvent) {
				if evt.Seq != nil || evt.Decided || evt.Quality != 0 {
					t.Fatalf("rejected event reached the sequencing: %v", evt)
				}
			},
		},
		{
			name:   "too-many-hits",
			evt:    newEvent(4, 0, many...),
			typ:    event.Unknown,
			reason: event.ReasonTooManyHits,
		},
		{
			name:   "no-hits",
			evt:    newEvent(5, 0),
			reason: event.ReasonNoHits,
		},
		{
			name: "bad-flagged",
			evt: func() *event.RawEvent {
				evt := newEvent(6, 0, hit(1, 1, 5, 511))
				evt.Bad = true
				evt.BadReason = "readout"
				return evt
			}(),
			reason: event.ReasonBadFlagged,
		},
		{
			name: "bad-flagged-kept",
			mod: func(cfg *config.Settings) {
				cfg.Selection.RejectAllBadEvents = false
			},
			evt: func() *event.RawEvent {
				evt := newEvent(7, 0, hit(1, 1, 5, 511))
				evt.Bad = true
				return evt
			}(),
			typ: event.Photo,
		},
		{
			name: "event-id-out-of-range",
			mod: func(cfg *config.Settings) {
				cfg.Selection.EventID = config.IDRange{Min: 10, Max: 20}
			},
			evt:    newEvent(8, 0, hit(1, 1, 5, 511)),
			reason: event.ReasonEventIDOutOfRange,
		},
		{
			name: "lever-arm-out-of-range",
			mod: func(cfg *config.Settings) {
				cfg.Selection.LeverArm = config.Range{Min: 0, Max: 5}
			},
			evt:    newEvent(9, 0, hit(0, 0, -10, 700), hit(0, 0, 8, 300)),
			reason: event.ReasonLeverArmOutOfRange,
		},
		{
			name:   "no-trigger",
			evt:    newEvent(10, 0, hit(0, 0, -10, 700)),
			reason: event.ReasonNoTrigger,
		},
		{
			name: "clustered-into-photo",
			evt:  newEvent(11, 0, hit(0, 0, 5, 200), hit(0.2, 0, 5, 311)),
			typ:  event.Photo,
			check: func(t *testing.T, evt *event.RawEvent) {
				if got, want := len(evt.RESEs), 1; got != want {
					t.Fatalf("invalid number of clusters: got=%d, want=%d", got, want)
				}
				if got, want := evt.Energy(), 511.0; got != want {
					t.Fatalf("invalid cluster energy: got=%v, want=%v", got, want)
				}
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newSettings()
			if tc.mod != nil {
				tc.mod(&cfg)
			}

			out, a := analyze(t, cfg, tc.evt)
			if got, want := len(out), 1; got != want {
				t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
			}
			evt := out[0]
			if evt.Type != tc.typ {
				t.Fatalf("invalid event type: got=%v, want=%v", evt.Type, tc.typ)
			}
			if evt.Reason != tc.reason {
				t.Fatalf("invalid rejection reason: got=%v, want=%v", evt.Reason, tc.reason)
			}
			if tc.check != nil {
				tc.check(t, evt)
			}

			st := a.Statistics()
			if got, want := st.Read, uint64(1); got != want {
				t.Fatalf("invalid number of read events: got=%d, want=%d", got, want)
			}
			if got, want := st.Reasons[tc.reason], uint64(1); tc.reason != event.ReasonNone && got != want {
				t.Fatalf("invalid number of rejections: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestPushMode(t *testing.T) {
	cfg := newSettings()
	cfg.Coincidence = config.Coincidence{Enabled: true, Window: 1e-6}

	a := New(cfg, newTestGeo(t), WithLogger(newLogger()))
	defer a.Close()

	_, err := a.AnalyzeEvent()
	if err == nil {
		t.Fatalf("expected an error analyzing before pre-analysis")
	}

	err = a.PreAnalysis()
	if err != nil {
		t.Fatalf("could not run pre-analysis: %+v", err)
	}
	err = a.PreAnalysis()
	if err == nil {
		t.Fatalf("expected an error running pre-analysis twice")
	}

	step := func(want Status) {
		t.Helper()
		got, err := a.AnalyzeEvent()
		if err != nil {
			t.Fatalf("could not analyze event: %+v", err)
		}
		if got != want {
			t.Fatalf("invalid status: got=%v, want=%v", got, want)
		}
	}
	add := func(evt *event.RawEvent) {
		t.Helper()
		err := a.AddRawEvent(evt)
		if err != nil {
			t.Fatalf("could not add event: %+v", err)
		}
	}

	step(StatusQueueEmpty)

	add(newEvent(1, 0, hit(0, 0, -10, 700)))
	add(newEvent(2, 0.5e-6, hit(0, 0, 8, 300)))
	step(StatusNeedMoreInput)
	step(StatusNeedMoreInput)
	step(StatusQueueEmpty)

	add(newEvent(3, 2e-6, hit(1, 1, 5, 511)))
	step(StatusOK)

	evt := a.OptimumEvent()
	if evt == nil {
		t.Fatalf("no optimum event")
	}
	if got, want := evt.ID, uint64(1); got != want {
		t.Fatalf("invalid event ID: got=%d, want=%d", got, want)
	}
	if got, want := evt.Type, event.Compton; got != want {
		t.Fatalf("invalid merged event type: got=%v, want=%v", got, want)
	}

	evt.RESEs[0].Hits[0].E = 0
	if a.OptimumEvent().RESEs[0].Hits[0].E == 0 {
		t.Fatalf("optimum event is not a copy")
	}

	step(StatusQueueEmpty)
	a.CloseInput()
	step(StatusOK)
	if got, want := a.BestTryEvent().Type, event.Photo; got != want {
		t.Fatalf("invalid flushed event type: got=%v, want=%v", got, want)
	}
	step(StatusNoMoreEvents)

	err = a.AddRawEvent(newEvent(4, 3e-6, hit(1, 1, 5, 511)))
	if err == nil {
		t.Fatalf("expected an error adding an event after closing the input")
	}

	err = a.PostAnalysis()
	if err != nil {
		t.Fatalf("could not run post-analysis: %+v", err)
	}
	_, err = a.AnalyzeEvent()
	if err == nil {
		t.Fatalf("expected an error analyzing after post-analysis")
	}

	if got, want := a.Statistics().Read, uint64(2); got != want {
		t.Fatalf("invalid number of read events: got=%d, want=%d", got, want)
	}
}

func TestNoOptimum(t *testing.T) {
	cfg := newSettings()
	cfg.CSR.TwoSite = config.TwoSiteReject

	a := New(cfg, newTestGeo(t), WithLogger(newLogger()))
	defer a.Close()

	err := a.PreAnalysis()
	if err != nil {
		t.Fatalf("could not run pre-analysis: %+v", err)
	}
	err = a.AddRawEvent(newEvent(1, 0, hit(0, 0, -10, 700), hit(0, 0, 8, 300)))
	if err != nil {
		t.Fatalf("could not add event: %+v", err)
	}

	status, err := a.AnalyzeEvent()
	if err != nil || status != StatusOK {
		t.Fatalf("could not analyze event: status=%v, err=%+v", status, err)
	}

	if evt := a.OptimumEvent(); evt != nil {
		t.Fatalf("unexpected optimum event: %v", evt)
	}
	evt := a.BestTryEvent()
	if evt == nil {
		t.Fatalf("no best-try event")
	}
	if got, want := evt.Reason, event.ReasonTwoSiteAmbiguous; got != want {
		t.Fatalf("invalid rejection reason: got=%v, want=%v", got, want)
	}
}

func TestInterrupt(t *testing.T) {
	a := New(newSettings(), newTestGeo(t), WithLogger(newLogger()))
	defer a.Close()

	err := a.PreAnalysis()
	if err != nil {
		t.Fatalf("could not run pre-analysis: %+v", err)
	}
	for i := 0; i < 3; i++ {
		err = a.AddRawEvent(newEvent(uint64(i), float64(i), hit(1, 1, 5, 511)))
		if err != nil {
			t.Fatalf("could not add event: %+v", err)
		}
	}

	status, err := a.AnalyzeEvent()
	if err != nil || status != StatusOK {
		t.Fatalf("could not analyze event: status=%v, err=%+v", status, err)
	}

	a.Interrupt()
	if !a.Interrupted() {
		t.Fatalf("analyzer not interrupted")
	}
	status, err = a.AnalyzeEvent()
	if err != nil {
		t.Fatalf("could not analyze event: %+v", err)
	}
	if status != StatusNoMoreEvents {
		t.Fatalf("invalid status after interrupt: got=%v, want=%v", status, StatusNoMoreEvents)
	}
	if got, want := a.Statistics().Read, uint64(1); got != want {
		t.Fatalf("invalid number of read events: got=%d, want=%d", got, want)
	}
}

func TestPreAnalysis(t *testing.T) {
	for _, tc := range []struct {
		name string
		mod  func(cfg *config.Settings)
		geo  bool
	}{
		{
			name: "ceiling",
			mod:  func(cfg *config.Settings) { cfg.CSR.MaxNHits = config.MaxNHitsCeiling + 1 },
			geo:  true,
		},
		{
			name: "no-geometry",
			mod:  func(cfg *config.Settings) {},
		},
		{
			name: "missing-csr-response",
			mod: func(cfg *config.Settings) {
				cfg.CSR.Algorithm = config.CSRBayesian
				cfg.CSR.ResponseFile = "testdata/not-there.yoda"
			},
			geo: true,
		},
		{
			name: "missing-classifier",
			mod: func(cfg *config.Settings) {
				cfg.CSR.Algorithm = config.CSRClassifier
				cfg.CSR.ClassifierFile = "testdata/not-there.yaml"
			},
			geo: true,
		},
		{
			name: "missing-tracking-response",
			mod: func(cfg *config.Settings) {
				cfg.Tracking.Algorithm = config.TrackBayesian
				cfg.Tracking.ResponseFile = "testdata/not-there.yoda"
			},
			geo: true,
		},
		{
			name: "missing-cluster-pdf",
			mod: func(cfg *config.Settings) {
				cfg.Clustering.Algorithm = config.ClusterPDF
				cfg.Clustering.PDFFile = "testdata/not-there.yoda"
			},
			geo: true,
		},
		{
			name: "unknown-tracking-detector",
			mod: func(cfg *config.Settings) {
				cfg.Tracking.Algorithm = config.TrackPearson
				cfg.Tracking.Detectors = []string{"D42"}
			},
			geo: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newSettings()
			tc.mod(&cfg)

			var geo *geom.Geometry
			if tc.geo {
				geo = newTestGeo(t)
			}

			a := New(cfg, geo, WithLogger(newLogger()))
			defer a.Close()

			err := a.PreAnalysis()
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !errors.Is(err, config.ErrConfig) {
				t.Fatalf("error does not wrap config.ErrConfig: %+v", err)
			}
		})
	}
}

func TestFileMode(t *testing.T) {
	f := evio.NewFeeder()
	for i := 0; i < 4; i++ {
		err := f.Push(newEvent(uint64(i), float64(i), hit(1, 1, 5, 511)))
		if err != nil {
			t.Fatalf("could not push event: %+v", err)
		}
	}
	f.CloseInput()

	var (
		ch   = make(chan *event.RawEvent, 4)
		hs   = stats.NewHistos()
		reg  = prometheus.NewRegistry()
		sink = evio.NewChanSink(ch)
	)
	m, err := stats.NewMetrics(reg)
	if err != nil {
		t.Fatalf("could not create metrics: %+v", err)
	}

	a := New(
		newSettings(), newTestGeo(t),
		WithSource(f), WithSink(sink), WithLogger(newLogger()),
		WithHistos(hs), WithMetrics(m),
	)
	defer a.Close()

	err = a.AddRawEvent(newEvent(5, 5, hit(1, 1, 5, 511)))
	if err == nil {
		t.Fatalf("expected an error adding events to a file-mode analyzer")
	}

	err = a.PreAnalysis()
	if err != nil {
		t.Fatalf("could not run pre-analysis: %+v", err)
	}
	for {
		status, err := a.AnalyzeEvent()
		if err != nil {
			t.Fatalf("could not analyze event: %+v", err)
		}
		if status == StatusNoMoreEvents {
			break
		}
	}
	err = a.PostAnalysis()
	if err != nil {
		t.Fatalf("could not run post-analysis: %+v", err)
	}

	n := 0
	for evt := range ch {
		if evt.Type != event.Photo {
			t.Fatalf("invalid event type: %v", evt.Type)
		}
		n++
	}
	if n != 4 {
		t.Fatalf("invalid number of written events: got=%d, want=4", n)
	}

	if got, want := hs.Types.Entries(), int64(4); got != want {
		t.Fatalf("invalid histogram entries: got=%d, want=%d", got, want)
	}
	if got, want := testutil.ToFloat64(m.Events.WithLabelValues("photo")), 4.0; got != want {
		t.Fatalf("invalid photo counter: got=%v, want=%v", got, want)
	}
}

func TestJoinStatistics(t *testing.T) {
	_, a1 := analyze(t, newSettings(),
		newEvent(1, 0, hit(1, 1, 5, 511)),
		newEvent(2, 1),
	)
	_, a2 := analyze(t, newSettings(),
		newEvent(3, 0, hit(0, 0, -10, 700), hit(0, 0, 8, 300)),
	)

	a1.JoinStatistics(a2)
	st := a1.Statistics()
	if got, want := st.Read, uint64(3); got != want {
		t.Fatalf("invalid number of read events: got=%d, want=%d", got, want)
	}
	if got, want := st.Types[event.Photo], uint64(1); got != want {
		t.Fatalf("invalid number of photo events: got=%d, want=%d", got, want)
	}
	if got, want := st.Types[event.Compton], uint64(1); got != want {
		t.Fatalf("invalid number of compton events: got=%d, want=%d", got, want)
	}
	if got, want := st.Reasons[event.ReasonNoHits], uint64(1); got != want {
		t.Fatalf("invalid number of no-hits events: got=%d, want=%d", got, want)
	}
}

func TestRunParallel(t *testing.T) {
	const n = 40
	for _, tc := range []struct {
		name    string
		window  float64
		workers int
		want    int
	}{
		{name: "single", window: 0, workers: 1, want: n},
		{name: "pool", window: 0, workers: 4, want: n},
		{name: "coincidence", window: 1e-6, workers: 3, want: n / 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newSettings()
			cfg.Coincidence = config.Coincidence{Enabled: tc.window > 0, Window: tc.window}

			src := evio.NewFeeder()
			for i := 0; i < n; i++ {
				var (
					t0  = float64(i/2) + float64(i%2)*0.5e-6
					evt *event.RawEvent
				)
				switch i % 2 {
				case 0:
					evt = newEvent(uint64(i), t0, hit(0, 0, -10, 700))
				default:
					evt = newEvent(uint64(i), t0, hit(0, 0, 8, 300))
				}
				err := src.Push(evt)
				if err != nil {
					t.Fatalf("could not push event: %+v", err)
				}
			}
			src.CloseInput()

			ch := make(chan *event.RawEvent, n)
			st, err := RunParallel(
				context.Background(), tc.workers, src, evio.NewChanSink(ch),
				cfg, newTestGeo(t), WithLogger(newLogger()),
			)
			if err != nil {
				t.Fatalf("could not run parallel analysis: %+v", err)
			}

			var ids []int
			for evt := range ch {
				ids = append(ids, int(evt.ID))
				if tc.window > 0 && evt.Type != event.Compton {
					t.Fatalf("invalid merged event type: %v", evt.Type)
				}
			}
			if got := len(ids); got != tc.want {
				t.Fatalf("invalid number of events: got=%d, want=%d", got, tc.want)
			}
			sort.Ints(ids)
			for i := 1; i < len(ids); i++ {
				if ids[i] == ids[i-1] {
					t.Fatalf("duplicate event %d", ids[i])
				}
			}

			if got, want := st.Read, uint64(tc.want); got != want {
				t.Fatalf("invalid number of read events: got=%d, want=%d", got, want)
			}
			if got, want := st.Passed+st.Bad, st.Read; got != want {
				t.Fatalf("inconsistent statistics: passed+bad=%d, read=%d", got, want)
			}
		})
	}

	_, err := RunParallel(context.Background(), 0, evio.NewFeeder(), nil, newSettings(), newTestGeo(t))
	if !errors.Is(err, config.ErrConfig) {
		t.Fatalf("invalid error for an empty pool: %+v", err)
	}
}

func TestRunParallelCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := evio.NewFeeder() // never closed.
	st, err := RunParallel(ctx, 2, src, nil, newSettings(), newTestGeo(t), WithLogger(newLogger()))
	if err != nil {
		t.Fatalf("cancellation should not be an error: %+v", err)
	}
	if st.Read != 0 {
		t.Fatalf("invalid number of read events: %d", st.Read)
	}
}

func TestStatus(t *testing.T) {
	for _, tc := range []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{StatusNeedMoreInput, "need-more-input"},
		{StatusQueueEmpty, "queue-empty"},
		{StatusNoMoreEvents, "no-more-events"},
		{Status(42), "Status(42)"},
	} {
		if got := tc.status.String(); got != tc.want {
			t.Fatalf("invalid status name: got=%q, want=%q", got, tc.want)
		}
	}
}
