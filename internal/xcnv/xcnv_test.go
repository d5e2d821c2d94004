// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"go-hep.org/x/hep/lcio"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestLCIO(t *testing.T) {
	tmp := t.TempDir()

	for _, tc := range []struct {
		name string
		evt  event.RawEvent
	}{
		{
			name: "compton",
			evt: event.RawEvent{
				ID:   42,
				Time: 1.5,
				RESEs: []event.RESE{
					event.NewHit(1, event.Hit{
						Pos: r3.Vec{X: 1.5, Y: -2.25, Z: 8}, PosRes: r3.Vec{X: 0.5, Y: 0.5, Z: 0.25},
						E: 300, ERes: 2, Time: 1.5 + 2e-9, Det: geom.Strip2D, DetID: 0, SimID: 1,
					}),
					event.NewHit(2, event.Hit{
						Pos: r3.Vec{X: 4, Y: 0, Z: -8}, PosRes: r3.Vec{X: 1, Y: 1, Z: 1},
						E: 700, ERes: 4, Time: 1.5 + 5e-9, Det: geom.Calorimeter, DetID: 1, Guard: true,
						Dir: r3.Vec{Z: 1},
					}),
				},
				Seq:     []int{0, 1},
				Type:    event.Compton,
				Quality: 0.25,
				Decided: true,
			},
		},
		{
			name: "large-id",
			evt: event.RawEvent{
				ID:        1<<40 + 3,
				Time:      12,
				Bad:       true,
				BadReason: "readout error",
				RESEs: []event.RESE{
					event.NewHit(1, event.Hit{Pos: r3.Vec{Z: 1}, E: 100, Time: 12, Det: geom.Strip3D, DetID: 2}),
				},
				Reason: event.ReasonBadFlagged,
			},
		},
		{
			name: "empty",
			evt:  event.RawEvent{ID: 3, Time: 2},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			const run = 63

			fname := filepath.Join(tmp, tc.name+".slcio")
			w, err := lcio.Create(fname)
			if err != nil {
				t.Fatalf("could not create LCIO file: %+v", err)
			}
			defer w.Close()

			err = w.WriteRunHeader(&lcio.RunHeader{
				RunNumber: run,
				Detector:  Detector,
			})
			if err != nil {
				t.Fatalf("could not write run header: %+v", err)
			}

			out := ToLCIO(&tc.evt, run)
			err = w.WriteEvent(&out)
			if err != nil {
				t.Fatalf("could not write LCIO event: %+v", err)
			}

			err = w.Close()
			if err != nil {
				t.Fatalf("could not close LCIO file: %+v", err)
			}

			r, err := lcio.Open(fname)
			if err != nil {
				t.Fatalf("could not open LCIO file: %+v", err)
			}
			defer r.Close()

			if !r.Next() {
				t.Fatalf("could not read LCIO event: %+v", r.Err())
			}
			evt := r.Event()
			if got, want := evt.RunNumber, int32(run); got != want {
				t.Fatalf("invalid run number: got=%d, want=%d", got, want)
			}
			if !evt.Has(RESEs) {
				t.Fatalf("missing %q collection", RESEs)
			}
			if got, want := evt.Params.Ints[ParamType], []int32{int32(tc.evt.Type)}; !reflect.DeepEqual(got, want) {
				t.Fatalf("invalid event type: got=%v, want=%v", got, want)
			}

			got, err := FromLCIO(&evt)
			if err != nil {
				t.Fatalf("could not convert LCIO event: %+v", err)
			}

			if got.ID != tc.evt.ID {
				t.Fatalf("invalid event ID: got=%d, want=%d", got.ID, tc.evt.ID)
			}
			if got.Time != tc.evt.Time {
				t.Fatalf("invalid event time: got=%v, want=%v", got.Time, tc.evt.Time)
			}
			if got.Bad != tc.evt.Bad || got.BadReason != tc.evt.BadReason {
				t.Fatalf(
					"invalid bad flag: got=(%v, %q), want=(%v, %q)",
					got.Bad, got.BadReason, tc.evt.Bad, tc.evt.BadReason,
				)
			}

			var (
				gotHits  = got.Hits()
				wantHits = tc.evt.Hits()
			)
			if len(gotHits) != len(wantHits) {
				t.Fatalf("invalid number of hits: got=%d, want=%d", len(gotHits), len(wantHits))
			}
			for i := range gotHits {
				var (
					g = gotHits[i]
					w = wantHits[i]
				)
				if math.Abs(g.Time-w.Time) > 1e-12 {
					t.Fatalf("hit[%d]: invalid time: got=%v, want=%v", i, g.Time, w.Time)
				}
				g.Time = w.Time
				if !reflect.DeepEqual(g, w) {
					t.Fatalf("hit[%d]: invalid round trip:\ngot= %v\nwant=%v", i, g, w)
				}
			}

			if r.Next() {
				t.Fatalf("unexpected extra LCIO event")
			}
		})
	}
}

func TestFromLCIOInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		evt  func() lcio.Event
	}{
		{
			name: "collection-type",
			evt: func() lcio.Event {
				var evt lcio.Event
				evt.Add(RawHits, &lcio.ClusterContainer{})
				return evt
			},
		},
		{
			name: "posres",
			evt: func() lcio.Event {
				var evt lcio.Event
				evt.Add(RawHits, &lcio.CalorimeterHitContainer{
					Params: lcio.Params{
						Floats: map[string][]float32{ParamPosRes: {1, 2}},
					},
					Hits: []lcio.CalorimeterHit{{Energy: 1}},
				})
				return evt
			},
		},
		{
			name: "event-id",
			evt: func() lcio.Event {
				return lcio.Event{
					Params: lcio.Params{
						Strings: map[string][]string{ParamID: {"0xfoo"}},
					},
				}
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			evt := tc.evt()
			_, err := FromLCIO(&evt)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
