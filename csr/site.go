// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"math"

	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// ElectronMass is the electron rest energy, in keV.
const ElectronMass = 510.998950

// SpeedOfLight is the speed of light, in cm/s.
const SpeedOfLight = 2.99792458e10

// Site is one interaction site of a Compton sequence.
type Site struct {
	Pos    r3.Vec
	PosRes r3.Vec
	E      float64
	ERes   float64
	Time   float64

	Det   geom.Type
	DetID int
	Layer int // layer index in tracking detectors, -1 otherwise

	Tracked bool   // site is an electron track
	Dir     r3.Vec // electron direction of tracked sites
}

// Sites returns the interaction sites of evt.
func Sites(evt *event.RawEvent, geo *geom.Geometry) []Site {
	sites := make([]Site, len(evt.RESEs))
	for i, rese := range evt.RESEs {
		site := Site{
			Pos:     rese.Pos(),
			PosRes:  rese.PosRes(),
			E:       rese.Energy(),
			ERes:    rese.EnergyRes(),
			Time:    rese.Time(),
			Det:     rese.Det(),
			DetID:   rese.DetID(),
			Tracked: rese.IsTrack(),
			Dir:     rese.Dir(),
			Layer:   -1,
		}
		if geo != nil && geo.Tracking(site.DetID) {
			site.Layer = geo.Layer(site.DetID, site.Pos)
		}
		sites[i] = site
	}
	return sites
}

func sumE(sites []Site) float64 {
	sum := 0.0
	for _, s := range sites {
		sum += s.E
	}
	return sum
}

// ComptonCos returns the cosine of the Compton scatter angle of a photon
// of energy ein leaving with energy eout.
func ComptonCos(ein, eout float64) float64 {
	return 1 - ElectronMass*(1/eout-1/ein)
}

// KleinNishina returns the Klein-Nishina differential cross-section, up to
// a constant factor, of a photon of energy ein scattering into energy eout.
// KleinNishina returns zero for kinematically forbidden scatters.
func KleinNishina(ein, eout float64) float64 {
	if !(eout > 0 && eout < ein) {
		return 0
	}
	cos := ComptonCos(ein, eout)
	if cos < -1 || cos > 1 {
		return 0
	}
	r := eout / ein
	return r * r * (r + 1/r - (1 - cos*cos))
}

// PhotoAbsorption returns the relative photo-absorption probability of a
// photon of energy e, following the E^-3.5 scaling of the photo-electric
// cross-section.
func PhotoAbsorption(e float64) float64 {
	if e <= 0 {
		return 0
	}
	return math.Pow(e/ElectronMass, -3.5)
}

// geoCos returns the cosine of the angle between the segments a->b and b->c.
func geoCos(a, b, c r3.Vec) float64 {
	u := r3.Sub(b, a)
	v := r3.Sub(c, b)
	if r3.Norm(u) == 0 || r3.Norm(v) == 0 {
		return 1
	}
	return math.Max(-1, math.Min(1, r3.Cos(u, v)))
}

// minVariance bounds the variance of the cosine differences.
const minVariance = 1e-8

type scatterTerm struct {
	site  int     // index of the site in the sequence
	dcos  float64 // kinematic minus geometric cosine
	sigma float64 // uncertainty on dcos
}

// scatters computes the Compton scatter angle differences along seq, for
// an incident photon of energy etot. terms is filled with one entry per
// site where both the incoming and outgoing directions are known.
// scatters reports false when a scatter is kinematically forbidden.
func scatters(terms []scatterTerm, sites []Site, seq []int, etot float64) ([]scatterTerm, bool) {
	var (
		n      = len(seq)
		ein    = etot
		rest2  = 0.0                // variance of the energy deposited after the current site
		escape = etot - sumE(sites) // escaped energy
	)
	for _, i := range seq {
		rest2 += sites[i].ERes * sites[i].ERes
	}

	terms = terms[:0]
	for j := 0; j < n; j++ {
		cur := sites[seq[j]]
		rest2 -= cur.ERes * cur.ERes
		eout := ein - cur.E
		last := j == n-1
		if last && escape <= 0 {
			break
		}

		if !(eout > 0) {
			return terms, false
		}
		kin := ComptonCos(ein, eout)
		if kin < -1 || kin > 1 {
			return terms, false
		}

		if j > 0 && !last {
			var (
				prev = sites[seq[j-1]]
				next = sites[seq[j+1]]
				geo  = geoCos(prev.Pos, cur.Pos, next.Pos)

				m     = ElectronMass
				dein  = m / (ein * ein)
				deout = m/(eout*eout) - dein
				vkin  = dein*dein*cur.ERes*cur.ERes + deout*deout*math.Max(rest2, 0)

				a    = r3.Sub(cur.Pos, prev.Pos)
				b    = r3.Sub(next.Pos, cur.Pos)
				ra   = sq(prev.PosRes) + sq(cur.PosRes)
				rb   = sq(cur.PosRes) + sq(next.PosRes)
				vgeo = 0.0
			)
			if sq(a) > 0 && sq(b) > 0 {
				vgeo = (1 - geo*geo) * (ra/sq(a) + rb/sq(b))
			}
			terms = append(terms, scatterTerm{
				site:  j,
				dcos:  kin - geo,
				sigma: math.Sqrt(math.Max(vkin+vgeo, minVariance)),
			})
		}
		ein = eout
	}
	return terms, true
}

func sq(v r3.Vec) float64 { return r3.Dot(v, v) }
