// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package track

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/internal/response"
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
			Min:     r3.Vec{X: -20, Y: -20, Z: -20},
			Max:     r3.Vec{X: +20, Y: +20, Z: -5},
			Voxel:   r3.Vec{X: 1, Y: 1, Z: 0},
			Trigger: true,
		},
	})
	if err != nil {
		t.Fatalf("could not create geometry: %+v", err)
	}
	return geo
}

func elem(id int, x, z, e float64) event.RESE {
	det, typ := 0, geom.Strip2D
	if z < 0 {
		det, typ = 1, geom.Calorimeter
	}
	return event.NewHit(id, event.Hit{
		Pos:   r3.Vec{X: x, Z: z},
		E:     e,
		Det:   typ,
		DetID: det,
	})
}

func newEvent(reses ...event.RESE) *event.RawEvent {
	for i := range reses {
		reses[i].ID = i + 1
	}
	return &event.RawEvent{ID: 1, RESEs: reses}
}

func newTracker(t *testing.T, mod func(cfg *config.Tracking)) *Tracker {
	t.Helper()
	cfg := config.Default().Tracking
	if mod != nil {
		mod(&cfg)
	}
	trk, err := New(cfg, newTestGeo(t))
	if err != nil {
		t.Fatalf("could not create tracker: %+v", err)
	}
	return trk
}

func TestScorers(t *testing.T) {
	var (
		up = []event.RESE{
			elem(1, 0, 5.5, 10),
			elem(2, 0, 4.5, 20),
			elem(3, 0, 3.5, 100),
		}
		down = []event.RESE{up[2], up[1], up[0]}
	)

	for _, tc := range []struct {
		name string
		s    Scorer
		good []event.RESE
		bad  []event.RESE
		want float64
	}{
		{"pearson", Pearson{}, up, down, math.NaN()},
		{"rank", Rank{}, up, down, 0},
		{"chi2", Chi2{Scale: DefaultScatterScale}, up, down, 0},
		{"gas", Gas{}, up, down, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			good := tc.s.Score(tc.good)
			bad := tc.s.Score(tc.bad)
			if !(good < bad) {
				t.Fatalf("invalid ranking: good=%v, bad=%v", good, bad)
			}
			if !math.IsNaN(tc.want) && math.Abs(good-tc.want) > 1e-12 {
				t.Fatalf("invalid score: got=%v, want=%v", good, tc.want)
			}
		})
	}

	if got, want := (Pearson{}).Score(up[:2]), 0.0; math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid pearson score: got=%v, want=%v", got, want)
	}
	if got, want := (Pearson{}).Score([]event.RESE{elem(1, 0, 1.5, 5), elem(2, 0, 0.5, 5)}), 1.0; got != want {
		t.Fatalf("invalid pearson score for flat profile: got=%v, want=%v", got, want)
	}
}

func TestChi2Scatter(t *testing.T) {
	var (
		s    = Chi2{Scale: DefaultScatterScale}
		kink = []event.RESE{
			elem(1, 0, 5.5, 10),
			elem(2, 0, 4.5, 20),
			elem(3, 1, 3.5, 30),
		}
		straight = []event.RESE{
			elem(1, 0, 5.5, 10),
			elem(2, 0, 4.5, 20),
			elem(3, 0, 3.5, 30),
		}
	)
	if got, want := s.Score(straight), 0.0; got != want {
		t.Fatalf("invalid straight track score: got=%v, want=%v", got, want)
	}
	// remaining energy at the kink: 50 keV, scatter angle: 45 degrees.
	want := math.Pow(math.Pi/4*50/DefaultScatterScale, 2)
	if got := s.Score(kink); math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid kinked track score: got=%v, want=%v", got, want)
	}
}

func TestDirectional(t *testing.T) {
	start := event.NewHit(1, event.Hit{
		Pos: r3.Vec{Z: 5.5}, E: 10, Det: geom.Strip3DDirectional,
		Dir: r3.Vec{Z: -2},
	})
	next := elem(2, 0, 4.5, 20)

	s := Directional{}
	if got, want := s.Score([]event.RESE{start, next}), 0.0; math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid aligned score: got=%v, want=%v", got, want)
	}
	back := elem(3, 0, 6.5, 20)
	if got, want := s.Score([]event.RESE{start, back}), 2.0; math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid anti-aligned score: got=%v, want=%v", got, want)
	}
	if got, want := s.Score([]event.RESE{next, start}), 1.0; got != want {
		t.Fatalf("invalid score without direction: got=%v, want=%v", got, want)
	}
}

func writeBayes(t *testing.T) string {
	t.Helper()
	good := response.New(AngleGood, 10, 0, math.Pi)
	bad := response.New(AngleBad, 10, 0, math.Pi)
	for i := 0; i < 10; i++ {
		x := (float64(i) + 0.5) * math.Pi / 10
		w := 1.0
		if i == 0 {
			w = 9
		}
		good.Fill(x, w)
		bad.Fill(x, 1)
	}
	buf := new(bytes.Buffer)
	err := response.Write(buf, good, bad)
	if err != nil {
		t.Fatalf("could not write response: %+v", err)
	}
	fname := filepath.Join(t.TempDir(), "track.yoda")
	err = os.WriteFile(fname, buf.Bytes(), 0644)
	if err != nil {
		t.Fatalf("could not save response: %+v", err)
	}
	return fname
}

func TestBayesian(t *testing.T) {
	cfg := config.Default().Tracking
	cfg.Algorithm = config.TrackBayesian
	cfg.ResponseFile = writeBayes(t)

	s, err := NewScorer(cfg)
	if err != nil {
		t.Fatalf("could not create bayesian scorer: %+v", err)
	}

	straight := []event.RESE{
		elem(1, 0, 5.5, 10),
		elem(2, 0, 4.5, 20),
		elem(3, 0, 3.5, 30),
	}
	zigzag := []event.RESE{
		elem(1, 0, 5.5, 10),
		elem(2, 0, 4.5, 20),
		elem(3, 1, 4.5, 30),
	}
	if got, want := s.Score(straight), -math.Log(5); math.Abs(got-want) > 1e-9 {
		t.Fatalf("invalid straight score: got=%v, want=%v", got, want)
	}
	if got, want := s.Score(zigzag), -math.Log(10.0/18); math.Abs(got-want) > 1e-9 {
		t.Fatalf("invalid zigzag score: got=%v, want=%v", got, want)
	}

	cfg.ResponseFile = filepath.Join(t.TempDir(), "missing.yoda")
	_, err = NewScorer(cfg)
	if err == nil {
		t.Fatalf("expected an error on missing response file")
	}
}

func TestRanks(t *testing.T) {
	got := ranks([]float64{30, 10, 20, 10})
	want := []float64{3, 0.5, 2, 0.5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid ranks: got=%v, want=%v", got, want)
	}
}

func TestMIP(t *testing.T) {
	trk := newTracker(t, nil)
	var reses []event.RESE
	for i := 0; i < 6; i++ {
		z := 0.5 + float64(i)
		reses = append(reses, elem(0, 0.1*z, z, 100))
	}
	reses = append(reses, elem(0, 0, -10, 300))
	evt := newEvent(reses...)

	alts := trk.Track(evt)
	if len(alts) != 1 {
		t.Fatalf("invalid number of alternatives: %d", len(alts))
	}
	out := alts[0]
	if got, want := out.Type, event.MIP; got != want {
		t.Fatalf("invalid type: got=%v, want=%v", got, want)
	}
	if got, want := len(out.RESEs), 2; got != want {
		t.Fatalf("invalid number of RESEs: got=%d, want=%d", got, want)
	}
	mip := out.RESEs[out.Seq[0]]
	if !mip.IsTrack() || len(mip.Elems) != 6 {
		t.Fatalf("invalid MIP track: %v", mip)
	}
	if got, want := mip.Pos().Z, 5.5; got != want {
		t.Fatalf("MIP track should start at the top: got=%v, want=%v", got, want)
	}
	if got, want := out.Energy(), evt.Energy(); got != want {
		t.Fatalf("energy not conserved: got=%v, want=%v", got, want)
	}
	if len(evt.RESEs) != 7 {
		t.Fatalf("input event modified")
	}

	// bend the track.
	evt.RESEs[2].Hits[0].Pos.X = 3
	out = trk.Track(evt)[0]
	if out.Type == event.MIP {
		t.Fatalf("kinked track identified as MIP")
	}
}

func TestPair(t *testing.T) {
	trk := newTracker(t, nil)
	evt := newEvent(
		elem(0, 0, 9.5, 50),
		elem(0, -0.5, 8.5, 50),
		elem(0, +0.5, 8.5, 50),
		elem(0, -1.0, 7.5, 50),
		elem(0, +1.0, 7.5, 50),
		elem(0, -1.5, 6.5, 50),
		elem(0, +1.5, 6.5, 50),
		elem(0, 0, -10, 300),
	)

	out := trk.Track(evt)[0]
	if got, want := out.Type, event.Pair; got != want {
		t.Fatalf("invalid type: got=%v, want=%v", got, want)
	}
	if got, want := len(out.Seq), 2; got != want {
		t.Fatalf("invalid number of tracks: got=%d, want=%d", got, want)
	}
	var (
		ta = out.RESEs[out.Seq[0]]
		tb = out.RESEs[out.Seq[1]]
	)
	if got, want := len(ta.Elems), 4; got != want {
		t.Fatalf("invalid first track length: got=%d, want=%d", got, want)
	}
	if got, want := len(tb.Elems), 3; got != want {
		t.Fatalf("invalid second track length: got=%d, want=%d", got, want)
	}
	if got, want := ta.Pos(), (r3.Vec{Z: 9.5}); got != want {
		t.Fatalf("first track should start at the vertex: got=%v, want=%v", got, want)
	}
	for _, e := range tb.Elems {
		if tb.Elems[0].Pos().X*e.Pos().X <= 0 {
			t.Fatalf("tracks mixed up: %v", tb)
		}
	}

	trk = newTracker(t, func(cfg *config.Tracking) { cfg.SearchPairs = false })
	if out := trk.Track(evt)[0]; out.Type == event.Pair {
		t.Fatalf("pair search should be disabled")
	}
}

func TestCompton(t *testing.T) {
	evt := newEvent(
		elem(0, 0, 2.5, 60),
		elem(0, 0, 3.5, 20),
		elem(0, 5, -10, 500),
	)

	trk := newTracker(t, func(cfg *config.Tracking) { cfg.NSequencesToKeep = 2 })
	alts := trk.Track(evt)
	if got, want := len(alts), 2; got != want {
		t.Fatalf("invalid number of alternatives: got=%d, want=%d", got, want)
	}

	best := alts[0]
	if got, want := len(best.RESEs), 2; got != want {
		t.Fatalf("invalid number of RESEs: got=%d, want=%d", got, want)
	}
	etrk := best.RESEs[1]
	if !etrk.IsTrack() {
		t.Fatalf("track not built: %v", etrk)
	}
	if got, want := etrk.Elems[0].Energy(), 20.0; got != want {
		t.Fatalf("invalid track entry point: got=%v, want=%v", got, want)
	}
	if got, want := best.TrackQuality, 0.0; math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid track quality: got=%v, want=%v", got, want)
	}
	if got, want := alts[1].TrackQuality, 2.0; math.Abs(got-want) > 1e-12 {
		t.Fatalf("invalid track quality: got=%v, want=%v", got, want)
	}
	for i, rese := range best.RESEs {
		if rese.ID != i+1 {
			t.Fatalf("invalid RESE ID: got=%d, want=%d", rese.ID, i+1)
		}
	}
}

func TestAmbiguous(t *testing.T) {
	evt := newEvent(
		elem(0, 0, 2.5, 30),
		elem(0, 0, 3.5, 30),
	)

	trk := newTracker(t, func(cfg *config.Tracking) {
		cfg.NSequencesToKeep = 2
		cfg.RejectPurelyAmbiguous = true
	})
	out := trk.Track(evt)
	if len(out) != 1 || out[0].Reason != event.ReasonAmbiguousTrack {
		t.Fatalf("ambiguous track not rejected: %v", out)
	}

	trk = newTracker(t, func(cfg *config.Tracking) {
		cfg.NSequencesToKeep = 1
		cfg.RejectPurelyAmbiguous = true
	})
	out = trk.Track(evt)
	if len(out) != 1 || out[0].Rejected() {
		t.Fatalf("single kept ordering cannot be ambiguous: %v", out)
	}
}

func TestBadTrack(t *testing.T) {
	evt := newEvent(
		elem(0, 0, 6.5, 10),
		elem(0, 0, 5.5, 10),
		elem(0, -1, 4.5, 10),
		elem(0, +1, 4.5, 10),
	)
	trk := newTracker(t, nil)
	out := trk.Track(evt)
	if len(out) != 1 || out[0].Reason != event.ReasonBadTrack {
		t.Fatalf("branching track not rejected: %v", out)
	}
}

func TestNoTracker(t *testing.T) {
	evt := newEvent(
		elem(0, 0, 2.5, 60),
		elem(0, 0, -10, 500),
		elem(0, 0, -12, 500),
	)
	out := newTracker(t, nil).Track(evt)
	if len(out) != 1 || !reflect.DeepEqual(out[0], evt) {
		t.Fatalf("event without tracks should be passed through: %v", out)
	}
}

func TestNew(t *testing.T) {
	geo := newTestGeo(t)
	cfg := config.Default().Tracking

	cfg.Detectors = []string{"D1", "D3"}
	_, err := New(cfg, geo)
	if !errors.Is(err, config.ErrConfig) {
		t.Fatalf("invalid error: %+v", err)
	}

	cfg.Detectors = []string{"D2"}
	trk, err := New(cfg, geo)
	if err != nil {
		t.Fatalf("could not create tracker: %+v", err)
	}
	if !trk.dets[1] || trk.dets[0] {
		t.Fatalf("invalid tracking detectors: %v", trk.dets)
	}
	if _, ok := trk.Scorer().(Pearson); !ok {
		t.Fatalf("invalid scorer %T", trk.Scorer())
	}

	_, err = New(cfg, nil)
	if err == nil {
		t.Fatalf("expected an error on nil geometry")
	}

	cfg.Algorithm = "magic"
	_, err = New(cfg, geo)
	if err == nil {
		t.Fatalf("expected an error on unknown algorithm")
	}
}
