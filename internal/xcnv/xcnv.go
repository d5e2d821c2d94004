// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert raw and reconstructed events
// to/from LCIO.
//
// Raw hits are stored in the RawHits collection of calorimeter hits:
//   - CellID0 holds the detector index,
//   - CellID1 holds the detector type, and the guard-ring flag in bit 8,
//   - Type holds the ground-truth interaction ID,
//   - Time holds the hit time relative to the event time stamp, in ns.
//
// Reconstructed sub-elements are stored in the RESEs collection of clusters
// and the outcome of the reconstruction as event parameters.
package xcnv // import "github.com/go-lpc/revan/internal/xcnv"

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"go-hep.org/x/hep/lcio"
	"gonum.org/v1/gonum/spatial/r3"
)

// Collection names.
const (
	RawHits = "RawHits"
	RESEs   = "RESEs"
)

// Detector is the detector name recorded in LCIO run headers and events.
const Detector = "revan"

// Event and collection parameters.
const (
	ParamID           = "revan.id"
	ParamBad          = "revan.bad"
	ParamType         = "revan.type"
	ParamReason       = "revan.reason"
	ParamFlags        = "revan.flags"
	ParamSeq          = "revan.seq"
	ParamQuality      = "revan.quality"
	ParamTrackQuality = "revan.track-quality"
	ParamEscaped      = "revan.escaped"
	ParamPosRes       = "revan.posres"
	ParamDir          = "revan.dir"
)

const guardBit = 1 << 8

// FromLCIO converts the raw hits of an LCIO event into a raw event.
func FromLCIO(evt *lcio.Event) (*event.RawEvent, error) {
	raw := &event.RawEvent{
		ID:   uint64(evt.EventNumber),
		Time: float64(evt.TimeStamp) / 1e9,
	}
	if vs := evt.Params.Strings[ParamID]; len(vs) == 1 {
		id, err := strconv.ParseUint(vs[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("xcnv: could not parse event ID %q: %w", vs[0], err)
		}
		raw.ID = id
	}
	if vs := evt.Params.Strings[ParamBad]; len(vs) == 1 {
		raw.Bad = true
		raw.BadReason = vs[0]
	}

	if !evt.Has(RawHits) {
		return raw, nil
	}
	hits, ok := evt.Get(RawHits).(*lcio.CalorimeterHitContainer)
	if !ok {
		return nil, fmt.Errorf(
			"xcnv: invalid collection %q type %T in event %d",
			RawHits, evt.Get(RawHits), evt.EventNumber,
		)
	}

	var (
		n      = len(hits.Hits)
		posres = hits.Params.Floats[ParamPosRes]
		dirs   = hits.Params.Floats[ParamDir]
	)
	if posres != nil && len(posres) != 3*n {
		return nil, fmt.Errorf("xcnv: invalid position resolutions (got=%d, want=%d)", len(posres), 3*n)
	}
	if dirs != nil && len(dirs) != 3*n {
		return nil, fmt.Errorf("xcnv: invalid directions (got=%d, want=%d)", len(dirs), 3*n)
	}

	raw.RESEs = make([]event.RESE, n)
	for i, h := range hits.Hits {
		hit := event.Hit{
			Pos:   vec(h.Pos[:]),
			E:     float64(h.Energy),
			ERes:  float64(h.EnergyErr),
			Time:  raw.Time + float64(h.Time)/1e9,
			Det:   geom.Type(h.CellID1 & 0xff),
			DetID: int(h.CellID0),
			Guard: h.CellID1&guardBit != 0,
			SimID: int(h.Type),
		}
		if posres != nil {
			hit.PosRes = vec(posres[3*i : 3*i+3])
		}
		if dirs != nil {
			hit.Dir = vec(dirs[3*i : 3*i+3])
		}
		raw.RESEs[i] = event.NewHit(i+1, hit)
	}
	return raw, nil
}

// ToLCIO converts a raw event, its hits and its reconstruction, into an
// LCIO event.
func ToLCIO(evt *event.RawEvent, run int32) lcio.Event {
	var (
		ts  = int64(math.Round(evt.Time * 1e9))
		t0  = float64(ts) / 1e9
		out = lcio.Event{
			RunNumber:   run,
			EventNumber: int32(evt.ID),
			TimeStamp:   ts,
			Detector:    Detector,
			Params: lcio.Params{
				Ints: map[string][]int32{
					ParamType:   {int32(evt.Type)},
					ParamReason: {int32(evt.Reason)},
					ParamFlags:  {int32(evt.Flags)},
					ParamSeq:    i32s(evt.Seq),
				},
				Floats: map[string][]float32{
					ParamQuality:      {float32(evt.Quality)},
					ParamTrackQuality: {float32(evt.TrackQuality)},
					ParamEscaped:      {float32(evt.Escaped)},
				},
				Strings: map[string][]string{
					ParamID: {strconv.FormatUint(evt.ID, 10)},
				},
			},
		}
	)
	if evt.Bad {
		out.Params.Strings[ParamBad] = []string{evt.BadReason}
	}

	var (
		raw  = evt.Hits()
		hits = &lcio.CalorimeterHitContainer{
			Flags: lcio.BitsRChLong | lcio.BitsRChID1 | lcio.BitsRChTime | lcio.BitsRChEnergyError,
			Params: lcio.Params{
				Floats: map[string][]float32{
					ParamPosRes: make([]float32, 0, 3*len(raw)),
					ParamDir:    make([]float32, 0, 3*len(raw)),
				},
			},
			Hits: make([]lcio.CalorimeterHit, len(raw)),
		}
	)
	for i, h := range raw {
		id1 := int32(h.Det)
		if h.Guard {
			id1 |= guardBit
		}
		hits.Hits[i] = lcio.CalorimeterHit{
			CellID0:   int32(h.DetID),
			CellID1:   id1,
			Energy:    float32(h.E),
			EnergyErr: float32(h.ERes),
			Time:      float32((h.Time - t0) * 1e9),
			Pos:       f32s(h.Pos),
			Type:      int32(h.SimID),
		}
		hits.Params.Floats[ParamPosRes] = append(hits.Params.Floats[ParamPosRes], f32Slice(h.PosRes)...)
		hits.Params.Floats[ParamDir] = append(hits.Params.Floats[ParamDir], f32Slice(h.Dir)...)
	}
	out.Add(RawHits, hits)

	reses := &lcio.ClusterContainer{
		Clusters: make([]lcio.Cluster, len(evt.RESEs)),
	}
	for i, rese := range evt.RESEs {
		var (
			res = rese.PosRes()
			dir = rese.Dir()
			clu = lcio.Cluster{
				Type:      int32(rese.Kind)<<8 | int32(rese.Det()),
				Energy:    float32(rese.Energy()),
				EnergyErr: float32(rese.EnergyRes()),
				Pos:       f32s(rese.Pos()),
				Shape: []float32{
					float32((rese.Time() - t0) * 1e9),
					float32(rese.DetID()),
					float32(rese.NHits()),
				},
			}
		)
		// lower triangle of the covariance matrix.
		clu.PosErr[0] = float32(res.X * res.X)
		clu.PosErr[2] = float32(res.Y * res.Y)
		clu.PosErr[5] = float32(res.Z * res.Z)
		if n := r3.Norm(dir); n > 0 {
			clu.Theta = float32(math.Acos(dir.Z / n))
			clu.Phi = float32(math.Atan2(dir.Y, dir.X))
		}
		reses.Clusters[i] = clu
	}
	out.Add(RESEs, reses)

	return out
}

func vec(vs []float32) r3.Vec {
	return r3.Vec{X: float64(vs[0]), Y: float64(vs[1]), Z: float64(vs[2])}
}

func f32s(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func f32Slice(v r3.Vec) []float32 {
	return []float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func i32s(vs []int) []int32 {
	o := make([]int32, len(vs))
	for i, v := range vs {
		o[i] = int32(v)
	}
	return o
}
