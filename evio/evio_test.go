// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evio

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

func newEvents() []*event.RawEvent {
	return []*event.RawEvent{
		{
			ID:   1,
			Time: 0.25,
			RESEs: []event.RESE{
				event.NewHit(1, event.Hit{
					Pos: r3.Vec{X: 1.5, Y: -2, Z: 8}, PosRes: r3.Vec{X: 0.125, Y: 0.125, Z: 0.25},
					E: 300, ERes: 2.5, Time: 0.25, Det: geom.Strip2D, DetID: 0, SimID: 1,
				}),
				event.NewHit(2, event.Hit{
					Pos: r3.Vec{X: 4, Y: 0, Z: -8}, PosRes: r3.Vec{X: 1, Y: 1, Z: 1},
					E: 700, ERes: 4, Time: 0.25 + 3e-9, Det: geom.Calorimeter, DetID: 1, Guard: true,
				}),
			},
			Type:    event.Compton,
			Seq:     []int{0, 1},
			Quality: 0.125,
			Decided: true,
		},
		{
			ID:        2,
			Time:      1.5,
			Bad:       true,
			BadReason: "readout error",
			RESEs: []event.RESE{
				event.NewHit(1, event.Hit{Pos: r3.Vec{Z: 1}, E: 100, Time: 1.5, Det: geom.Strip3D, DetID: 2}),
			},
			Reason: event.ReasonBadFlagged,
		},
		{ID: 3, Time: 2},
	}
}

func checkEvents(t *testing.T, got, want []*event.RawEvent) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("invalid number of events: got=%d, want=%d", len(got), len(want))
	}
	for i := range got {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Time != w.Time || g.Bad != w.Bad || g.BadReason != w.BadReason {
			t.Fatalf("event[%d]: invalid header:\ngot= %v\nwant=%v", i, g, w)
		}
		var (
			gh = g.Hits()
			wh = w.Hits()
		)
		if len(gh) == 0 && len(wh) == 0 {
			continue
		}
		if !reflect.DeepEqual(gh, wh) {
			t.Fatalf("event[%d]: invalid hits:\ngot= %v\nwant=%v", i, gh, wh)
		}
	}
}

func readAll(src Source) ([]*event.RawEvent, error) {
	var evts []*event.RawEvent
	for {
		evt, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return evts, nil
			}
			return evts, err
		}
		evts = append(evts, evt)
	}
}

func TestFiles(t *testing.T) {
	tmp := t.TempDir()
	for _, ext := range []string{".evta", ".slcio"} {
		t.Run(ext, func(t *testing.T) {
			fname := filepath.Join(tmp, "evts"+ext)
			want := newEvents()

			sink, err := Create(fname, 42)
			if err != nil {
				t.Fatalf("could not create sink: %+v", err)
			}
			for _, evt := range want {
				err = sink.Write(evt)
				if err != nil {
					t.Fatalf("could not write event %d: %+v", evt.ID, err)
				}
			}
			err = sink.Close()
			if err != nil {
				t.Fatalf("could not close sink: %+v", err)
			}

			msg := log.NewMsgStream("evio", log.LvlDebug, io.Discard)
			src, err := Open(fname, msg)
			if err != nil {
				t.Fatalf("could not open source: %+v", err)
			}
			defer src.Close()

			got, err := readAll(src)
			if err != nil {
				t.Fatalf("could not read events: %+v", err)
			}
			if ext == ".slcio" {
				// LCIO stores hit times relative to the event time, in float32.
				for _, evts := range [][]*event.RawEvent{got, want} {
					for _, evt := range evts {
						for i := range evt.RESEs {
							evt.RESEs[i].Hits[0].Time = 0
						}
					}
				}
			}
			checkEvents(t, got, want)

			err = src.Close()
			if err != nil {
				t.Fatalf("could not close source: %+v", err)
			}
		})
	}

	for _, name := range []string{"evts.root", "evts"} {
		_, err := Open(filepath.Join(tmp, name), nil)
		if err == nil {
			t.Fatalf("expected an error opening %q", name)
		}
		_, err = Create(filepath.Join(tmp, name), 42)
		if err == nil {
			t.Fatalf("expected an error creating %q", name)
		}
	}

	_, err := Open(filepath.Join(tmp, "not-there.evta"), nil)
	if err == nil {
		t.Fatalf("expected an error opening a missing file")
	}
}

func TestTextWriter(t *testing.T) {
	out := new(strings.Builder)
	w := NewTextWriter(out)
	for _, evt := range newEvents() {
		err := w.Write(evt)
		if err != nil {
			t.Fatalf("could not write event: %+v", err)
		}
	}
	err := w.Close()
	if err != nil {
		t.Fatalf("could not close writer: %+v", err)
	}

	for _, v := range []string{
		"Type EVTA\n",
		"SE\nID 1\nTI 0.25\nHT 1;0;1.5;-2;8;300;0.25;0.125;0.125;0.25;2.5;0;1\n",
		"ET compton\nQF 0.125\nSQ 0 1\n",
		"BD readout error\n",
		"RJ bad-flagged\n",
		"\nEN\n",
	} {
		if !strings.Contains(out.String(), v) {
			t.Fatalf("output does not contain %q:\n%s", v, out.String())
		}
	}
}

func TestTextReader(t *testing.T) {
	const (
		hdr = "Type EVTA\nVersion 1\n\n"
		se1 = "SE\nID 1\nTI 0.5\nHT 1;0;0;0;1;100;0.5\nET photo\n"
		se2 = "SE\nID 2\nTI 1\nHT 2;1;0;0;-5;200;1;0.5;0.5;0.5;3\n# comment\nHT 1;0;0;0;1;50;1;0;0;0;0;1;7\n"
	)

	for _, tc := range []struct {
		name  string
		input string
		ids   []uint64
		warn  string
	}{
		{
			name:  "empty",
			input: "",
		},
		{
			name:  "header-only",
			input: hdr + "EN\n",
		},
		{
			name:  "two-records",
			input: hdr + se1 + se2 + "EN\n",
			ids:   []uint64{1, 2},
		},
		{
			name:  "no-trailer",
			input: hdr + se1 + se2,
			ids:   []uint64{1, 2},
		},
		{
			name:  "after-trailer",
			input: hdr + se1 + "EN\n" + se2,
			ids:   []uint64{1},
		},
		{
			name:  "truncated-trailing-record",
			input: hdr + se1 + se2 + "SE\nID 3\nTI 2\nHT 1;0;0;0",
			ids:   []uint64{1, 2},
			warn:  "truncated trailing record",
		},
		{
			name:  "truncated-trailing-id",
			input: hdr + se1 + "SE\nID 1x",
			ids:   []uint64{1},
			warn:  "truncated trailing record",
		},
		{
			name:  "malformed-record",
			input: hdr + se1 + "SE\nID 2\nHT 1;0;0;0\n" + se2 + "EN\n",
			ids:   []uint64{1, 2},
			warn:  "dropped malformed record (line 9) after 1 events",
		},
		{
			name:  "malformed-records",
			input: hdr + se1 + "SE\nID 3\nHT 1;0;0;0\nSE\nID 4x\n" + se2 + "EN\n",
			ids:   []uint64{1, 2},
			warn:  "dropped malformed record (line 12) after 1 events",
		},
		{
			name:  "invalid-detector-type",
			input: hdr + "SE\nID 2\nHT 42;0;0;0;1;100;0\nEN\n",
			warn:  "dropped malformed record (line 4) after 0 events",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var (
				buf = new(bytes.Buffer)
				msg = log.NewMsgStream("evio", log.LvlDebug, buf)
				r   = NewTextReader(strings.NewReader(tc.input), msg)
			)
			evts, err := readAll(r)
			if err != nil {
				t.Fatalf("could not read events: %+v", err)
			}

			ids := make([]uint64, len(evts))
			for i, evt := range evts {
				ids[i] = evt.ID
			}
			if len(ids) == 0 {
				ids = nil
			}
			if !reflect.DeepEqual(ids, tc.ids) {
				t.Fatalf("invalid event IDs: got=%v, want=%v", ids, tc.ids)
			}

			switch {
			case tc.warn == "" && buf.Len() != 0:
				t.Fatalf("unexpected warning: %q", buf.String())
			case !strings.Contains(buf.String(), tc.warn):
				t.Fatalf("missing warning %q: %q", tc.warn, buf.String())
			}

			_, err = r.Next()
			if err != io.EOF {
				t.Fatalf("expected io.EOF after end of stream, got: %+v", err)
			}
		})
	}
}

func TestTextReaderHits(t *testing.T) {
	const input = "SE\nID 7\nTI 1\nHT 2;1;1;2;-5;200;1;0.5;0.5;0.25;3\nHT 1;0;0;0;1;50;1.5;0;0;0;0;1;7\n"

	r := NewTextReader(strings.NewReader(input), log.NewMsgStream("evio", log.LvlInfo, io.Discard))
	evt, err := r.Next()
	if err != nil {
		t.Fatalf("could not read event: %+v", err)
	}

	want := []event.Hit{
		{
			Pos: r3.Vec{X: 1, Y: 2, Z: -5}, PosRes: r3.Vec{X: 0.5, Y: 0.5, Z: 0.25},
			E: 200, ERes: 3, Time: 1, Det: geom.Calorimeter, DetID: 1,
		},
		{
			Pos: r3.Vec{Z: 1}, E: 50, Time: 1.5, Det: geom.Strip2D,
			Guard: true, SimID: 7,
		},
	}
	if got := evt.Hits(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid hits:\ngot= %v\nwant=%v", got, want)
	}
	if got, want := evt.RESEs[1].ID, 2; got != want {
		t.Fatalf("invalid RESE ID: got=%d, want=%d", got, want)
	}
}

func TestFeeder(t *testing.T) {
	f := NewFeeder()

	_, err := f.Next()
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("invalid error on empty feeder: %+v", err)
	}

	for _, evt := range newEvents() {
		err = f.Push(evt)
		if err != nil {
			t.Fatalf("could not push event: %+v", err)
		}
	}
	if got, want := f.Len(), 3; got != want {
		t.Fatalf("invalid queue length: got=%d, want=%d", got, want)
	}

	evt, err := f.Next()
	if err != nil {
		t.Fatalf("could not pop event: %+v", err)
	}
	if got, want := evt.ID, uint64(1); got != want {
		t.Fatalf("invalid FIFO order: got=%d, want=%d", got, want)
	}

	f.CloseInput()
	err = f.Push(&event.RawEvent{ID: 4})
	if err == nil {
		t.Fatalf("expected an error pushing to a closed feeder")
	}

	evts, err := readAll(f)
	if err != nil {
		t.Fatalf("could not drain feeder: %+v", err)
	}
	if got, want := len(evts), 2; got != want {
		t.Fatalf("invalid number of drained events: got=%d, want=%d", got, want)
	}

	_, err = f.Next()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got: %+v", err)
	}
}

func TestFeederConcurrent(t *testing.T) {
	const n = 100
	var (
		f  = NewFeeder()
		wg sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = f.Push(&event.RawEvent{ID: uint64(i)})
		}
		f.CloseInput()
	}()

	var got []uint64
	for {
		evt, err := f.Next()
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("could not pop event: %+v", err)
		}
		got = append(got, evt.ID)
	}
	wg.Wait()

	if len(got) != n {
		t.Fatalf("invalid number of events: got=%d, want=%d", len(got), n)
	}
	for i, id := range got {
		if id != uint64(i) {
			t.Fatalf("invalid FIFO order at %d: got=%d", i, id)
		}
	}
}

func TestChanSink(t *testing.T) {
	var (
		ch   = make(chan *event.RawEvent, 3)
		sink = NewChanSink(ch)
		evts = newEvents()
	)
	for _, evt := range evts {
		err := sink.Write(evt)
		if err != nil {
			t.Fatalf("could not write event: %+v", err)
		}
	}
	err := sink.Close()
	if err != nil {
		t.Fatalf("could not close sink: %+v", err)
	}
	err = sink.Close()
	if err != nil {
		t.Fatalf("could not close sink twice: %+v", err)
	}

	var got []*event.RawEvent
	for evt := range ch {
		got = append(got, evt)
	}
	checkEvents(t, got, evts)

	got[0].RESEs[0].Hits[0].E = 0
	if evts[0].RESEs[0].Hits[0].E == 0 {
		t.Fatalf("sink did not write a deep copy")
	}
}
