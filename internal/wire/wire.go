// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire encodes raw and reconstructed events into tdaq frame bodies.
package wire // import "github.com/go-lpc/revan/internal/wire"

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	version = 1

	maxLen   = 1 << 20 // maximum number of elements of any encoded slice
	maxDepth = 4       // maximum nesting of sub-elements
)

// Marshal encodes evt into a frame body.
func Marshal(evt *event.RawEvent) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := Encode(buf, evt)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes an event from a frame body.
func Unmarshal(p []byte) (*event.RawEvent, error) {
	return Decode(bytes.NewReader(p))
}

// Encode writes evt to w.
func Encode(w io.Writer, evt *event.RawEvent) error {
	enc := tdaq.NewEncoder(w)
	enc.WriteU8(version)
	enc.WriteU64(evt.ID)
	enc.WriteF64(evt.Time)
	writeBool(enc, evt.Bad)
	enc.WriteStr(evt.BadReason)

	enc.WriteU32(uint32(len(evt.RESEs)))
	for _, rese := range evt.RESEs {
		writeRESE(enc, rese)
	}

	enc.WriteU32(uint32(len(evt.Seq)))
	for _, v := range evt.Seq {
		enc.WriteU64(uint64(v))
	}

	enc.WriteU8(uint8(evt.Type))
	enc.WriteF64(evt.Quality)
	enc.WriteF64(evt.TrackQuality)
	enc.WriteF64(evt.Escaped)
	enc.WriteU8(uint8(evt.Reason))
	enc.WriteU8(uint8(evt.Flags))
	writeBool(enc, evt.Decided)

	err := enc.Err()
	if err != nil {
		return fmt.Errorf("wire: could not encode event %d: %w", evt.ID, err)
	}
	return nil
}

// Decode reads an event from r.
func Decode(r io.Reader) (*event.RawEvent, error) {
	var (
		dec = tdaq.NewDecoder(r)
		evt = new(event.RawEvent)
	)

	vers := dec.ReadU8()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("wire: could not decode event header: %w", err)
	}
	if vers != version {
		return nil, fmt.Errorf("wire: invalid event version (got=%d, want=%d)", vers, version)
	}

	evt.ID = dec.ReadU64()
	evt.Time = dec.ReadF64()
	evt.Bad = readBool(dec)
	evt.BadReason = dec.ReadStr()

	n, err := readLen(dec)
	if err != nil {
		return nil, fmt.Errorf("wire: could not decode RESEs of event %d: %w", evt.ID, err)
	}
	if n > 0 {
		evt.RESEs = make([]event.RESE, n)
		for i := range evt.RESEs {
			evt.RESEs[i], err = readRESE(dec, 0)
			if err != nil {
				return nil, fmt.Errorf("wire: could not decode RESE %d of event %d: %w", i, evt.ID, err)
			}
		}
	}

	n, err = readLen(dec)
	if err != nil {
		return nil, fmt.Errorf("wire: could not decode sequence of event %d: %w", evt.ID, err)
	}
	if n > 0 {
		evt.Seq = make([]int, n)
		for i := range evt.Seq {
			evt.Seq[i] = int(dec.ReadU64())
		}
	}

	evt.Type = event.Type(dec.ReadU8())
	evt.Quality = dec.ReadF64()
	evt.TrackQuality = dec.ReadF64()
	evt.Escaped = dec.ReadF64()
	evt.Reason = event.Reason(dec.ReadU8())
	evt.Flags = event.Flags(dec.ReadU8())
	evt.Decided = readBool(dec)

	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("wire: could not decode event %d: %w", evt.ID, err)
	}
	if int(evt.Type) >= event.NTypes {
		return nil, fmt.Errorf("wire: invalid event type %d", evt.Type)
	}
	if int(evt.Reason) >= event.NReasons {
		return nil, fmt.Errorf("wire: invalid rejection reason %d", evt.Reason)
	}
	return evt, nil
}

func writeRESE(enc *tdaq.Encoder, rese event.RESE) {
	enc.WriteU64(uint64(rese.ID))
	enc.WriteU8(uint8(rese.Kind))
	enc.WriteU32(uint32(len(rese.Hits)))
	for _, hit := range rese.Hits {
		writeHit(enc, hit)
	}
	enc.WriteU32(uint32(len(rese.Elems)))
	for _, elem := range rese.Elems {
		writeRESE(enc, elem)
	}
}

func readRESE(dec *tdaq.Decoder, depth int) (event.RESE, error) {
	var rese event.RESE
	if depth > maxDepth {
		return rese, fmt.Errorf("too many nested sub-elements")
	}

	rese.ID = int(dec.ReadU64())
	rese.Kind = event.Kind(dec.ReadU8())

	n, err := readLen(dec)
	if err != nil {
		return rese, err
	}
	if n > 0 {
		rese.Hits = make([]event.Hit, n)
		for i := range rese.Hits {
			rese.Hits[i] = readHit(dec)
		}
	}

	n, err = readLen(dec)
	if err != nil {
		return rese, err
	}
	if n > 0 {
		rese.Elems = make([]event.RESE, n)
		for i := range rese.Elems {
			rese.Elems[i], err = readRESE(dec, depth+1)
			if err != nil {
				return rese, err
			}
		}
	}
	return rese, dec.Err()
}

func writeHit(enc *tdaq.Encoder, hit event.Hit) {
	writeVec(enc, hit.Pos)
	writeVec(enc, hit.PosRes)
	enc.WriteF64(hit.E)
	enc.WriteF64(hit.ERes)
	enc.WriteF64(hit.Time)
	enc.WriteU8(uint8(hit.Det))
	enc.WriteU64(uint64(hit.DetID))
	writeBool(enc, hit.Guard)
	enc.WriteU64(uint64(hit.SimID))
	writeVec(enc, hit.Dir)
}

func readHit(dec *tdaq.Decoder) event.Hit {
	return event.Hit{
		Pos:    readVec(dec),
		PosRes: readVec(dec),
		E:      dec.ReadF64(),
		ERes:   dec.ReadF64(),
		Time:   dec.ReadF64(),
		Det:    geom.Type(dec.ReadU8()),
		DetID:  int(dec.ReadU64()),
		Guard:  readBool(dec),
		SimID:  int(dec.ReadU64()),
		Dir:    readVec(dec),
	}
}

func writeVec(enc *tdaq.Encoder, v r3.Vec) {
	enc.WriteF64(v.X)
	enc.WriteF64(v.Y)
	enc.WriteF64(v.Z)
}

func readVec(dec *tdaq.Decoder) r3.Vec {
	return r3.Vec{X: dec.ReadF64(), Y: dec.ReadF64(), Z: dec.ReadF64()}
}

func writeBool(enc *tdaq.Encoder, v bool) {
	var u uint8
	if v {
		u = 1
	}
	enc.WriteU8(u)
}

func readBool(dec *tdaq.Decoder) bool {
	return dec.ReadU8() != 0
}

func readLen(dec *tdaq.Decoder) (int, error) {
	n := dec.ReadU32()
	if err := dec.Err(); err != nil {
		return 0, err
	}
	if n > maxLen {
		return 0, fmt.Errorf("invalid length %d", n)
	}
	return int(n), nil
}
