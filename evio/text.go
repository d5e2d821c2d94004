// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package evio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// TextReader reads raw events from a text .evta stream.
//
// An .evta stream is a sequence of records, one key and its value per line.
// Each record starts with a SE line and the stream ends with an optional EN
// line:
//
//	SE
//	ID 1
//	TI 0.25
//	BD upstream reason
//	HT det;detid;x;y;z;e;t[;dx;dy;dz;de[;guard;simid]]
//	EN
//
// Lines before the first record, blank lines, comments and unknown keys are
// ignored.
type TextReader struct {
	sc  *bufio.Scanner
	msg log.MsgStream

	line    int  // current line number
	pending bool // a SE line was consumed by the previous record
	done    bool
	n       int // number of records read
}

// NewTextReader creates a new .evta reader.
func NewTextReader(r io.Reader, msg log.MsgStream) *TextReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &TextReader{sc: sc, msg: msg}
}

func (r *TextReader) scan() (key, value string, ok bool) {
	if !r.sc.Scan() {
		return "", "", false
	}
	r.line++
	txt := strings.TrimSpace(r.sc.Text())
	if txt == "" || txt[0] == '#' {
		return "", "", true
	}
	key, value, _ = strings.Cut(txt, " ")
	return key, strings.TrimSpace(value), true
}

func (r *TextReader) eof() error {
	r.done = true
	err := r.sc.Err()
	if err != nil {
		return fmt.Errorf("evio: could not scan .evta stream: %w", err)
	}
	return io.EOF
}

// errDropped flags a malformed record which was skipped.
var errDropped = errors.New("evio: dropped record")

// Next returns the next raw event of the stream.
//
// Malformed records are reported as warnings and skipped.
// A malformed trailing record also ends the stream.
func (r *TextReader) Next() (*event.RawEvent, error) {
	for {
		evt, err := r.next()
		if err == errDropped {
			continue
		}
		return evt, err
	}
}

func (r *TextReader) next() (*event.RawEvent, error) {
	if r.done {
		return nil, io.EOF
	}

	for !r.pending {
		key, _, ok := r.scan()
		if !ok {
			return nil, r.eof()
		}
		switch key {
		case "SE":
			r.pending = true
		case "EN":
			r.done = true
			return nil, io.EOF
		}
	}
	r.pending = false

	var (
		evt   = new(event.RawEvent)
		start = r.line
		bad   error
		last  = true
	)
loop:
	for {
		key, value, ok := r.scan()
		if !ok {
			break
		}
		switch key {
		case "":
			continue
		case "SE":
			r.pending = true
			last = false
			break loop
		case "EN":
			r.done = true
			last = false
			break loop
		}
		if bad != nil {
			continue
		}
		err := r.parse(evt, key, value)
		if err != nil {
			bad = fmt.Errorf("evio: invalid record at line %d: %w", r.line, err)
		}
	}

	if last {
		err := r.eof()
		if err != io.EOF {
			return nil, err
		}
		if bad != nil {
			r.msg.Warnf(
				"truncated trailing record (line %d) after %d events: %+v",
				start, r.n, bad,
			)
			return nil, io.EOF
		}
	}

	if bad != nil {
		r.msg.Warnf("dropped malformed record (line %d) after %d events: %+v", start, r.n, bad)
		return nil, errDropped
	}

	r.n++
	return evt, nil
}

// Close ends the stream.
// Close does not close the underlying reader.
func (r *TextReader) Close() error {
	r.done = true
	return nil
}

func (r *TextReader) parse(evt *event.RawEvent, key, value string) error {
	var err error
	switch key {
	case "ID":
		evt.ID, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("could not parse event ID: %w", err)
		}
	case "TI":
		evt.Time, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("could not parse event time: %w", err)
		}
	case "BD":
		evt.Bad = true
		evt.BadReason = value
	case "HT":
		hit, err := parseHit(value)
		if err != nil {
			return fmt.Errorf("could not parse hit: %w", err)
		}
		evt.RESEs = append(evt.RESEs, event.NewHit(len(evt.RESEs)+1, hit))
	}
	return nil
}

func parseHit(txt string) (event.Hit, error) {
	var (
		hit  event.Hit
		toks = strings.Split(txt, ";")
	)
	switch len(toks) {
	case 7, 11, 13:
	default:
		return hit, fmt.Errorf("invalid number of fields (got=%d, want=7, 11 or 13)", len(toks))
	}

	ints := func(i int) (int, error) {
		v, err := strconv.Atoi(strings.TrimSpace(toks[i]))
		if err != nil {
			return 0, fmt.Errorf("field %d: %w", i, err)
		}
		return v, nil
	}
	vals := make([]float64, len(toks))
	for i, tok := range toks {
		if i < 2 || i >= 11 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return hit, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}

	det, err := ints(0)
	if err != nil {
		return hit, err
	}
	hit.Det = geom.Type(det)
	if !hit.Det.Valid() {
		return hit, fmt.Errorf("invalid detector type %d", det)
	}
	hit.DetID, err = ints(1)
	if err != nil {
		return hit, err
	}

	hit.Pos = r3.Vec{X: vals[2], Y: vals[3], Z: vals[4]}
	hit.E = vals[5]
	hit.Time = vals[6]
	if len(toks) > 7 {
		hit.PosRes = r3.Vec{X: vals[7], Y: vals[8], Z: vals[9]}
		hit.ERes = vals[10]
	}
	if len(toks) > 11 {
		guard, err := ints(11)
		if err != nil {
			return hit, err
		}
		hit.Guard = guard != 0
		hit.SimID, err = ints(12)
		if err != nil {
			return hit, err
		}
	}
	return hit, nil
}

// TextWriter writes reconstructed events to a text .evta stream.
//
// On top of the raw event records, TextWriter writes the outcome of the
// reconstruction with the ET (type), QF (quality), TQ (track quality),
// EE (escaped energy), SQ (sequence), FL (flags) and RJ (rejection reason)
// keys, which TextReader ignores.
type TextWriter struct {
	w   *bufio.Writer
	hdr bool
	err error
}

// NewTextWriter creates a new .evta writer.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w)}
}

func (w *TextWriter) printf(format string, args ...interface{}) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format, args...)
}

func (w *TextWriter) header() {
	if w.hdr {
		return
	}
	w.hdr = true
	w.printf("Type EVTA\nVersion 1\n\n")
}

// Write writes the hits and the reconstruction of evt.
func (w *TextWriter) Write(evt *event.RawEvent) error {
	w.header()

	w.printf("SE\nID %d\nTI %s\n", evt.ID, ftoa(evt.Time))
	if evt.Bad {
		w.printf("BD %s\n", evt.BadReason)
	}
	for _, hit := range evt.Hits() {
		guard := 0
		if hit.Guard {
			guard = 1
		}
		w.printf(
			"HT %d;%d;%s;%s;%s;%s;%s;%s;%s;%s;%s;%d;%d\n",
			hit.Det, hit.DetID,
			ftoa(hit.Pos.X), ftoa(hit.Pos.Y), ftoa(hit.Pos.Z),
			ftoa(hit.E), ftoa(hit.Time),
			ftoa(hit.PosRes.X), ftoa(hit.PosRes.Y), ftoa(hit.PosRes.Z),
			ftoa(hit.ERes), guard, hit.SimID,
		)
	}

	w.printf("ET %s\n", evt.Type)
	if evt.Decided {
		w.printf("QF %s\n", ftoa(evt.Quality))
	}
	if evt.TrackQuality != 0 {
		w.printf("TQ %s\n", ftoa(evt.TrackQuality))
	}
	if evt.Escaped != 0 {
		w.printf("EE %s\n", ftoa(evt.Escaped))
	}
	if len(evt.Seq) > 0 {
		seq := make([]string, len(evt.Seq))
		for i, v := range evt.Seq {
			seq[i] = strconv.Itoa(v)
		}
		w.printf("SQ %s\n", strings.Join(seq, " "))
	}
	if evt.Flags != 0 {
		w.printf("FL %d\n", evt.Flags)
	}
	if evt.Rejected() {
		w.printf("RJ %s\n", evt.Reason)
	}

	if w.err != nil {
		return fmt.Errorf("evio: could not write event %d: %w", evt.ID, w.err)
	}
	return nil
}

// Close terminates the stream and flushes it.
// Close does not close the underlying writer.
func (w *TextWriter) Close() error {
	w.header()
	w.printf("EN\n")
	if w.err != nil {
		return fmt.Errorf("evio: could not write stream trailer: %w", w.err)
	}

	err := w.w.Flush()
	if err != nil {
		return fmt.Errorf("evio: could not flush .evta stream: %w", err)
	}
	return nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var (
	_ Source = (*TextReader)(nil)
	_ Sink   = (*TextWriter)(nil)
)
