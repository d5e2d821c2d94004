// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
)

// TwoSite orders a two-site event following the provided policy.
// An electron track is always the start point, whatever the policy.
//
// TwoSite returns the reason why no ordering could be chosen.
func TwoSite(policy config.TwoSitePolicy, sites []Site) ([]int, event.Reason) {
	if len(sites) != 2 {
		return nil, event.ReasonNoValidSequence
	}

	a, b := sites[0], sites[1]
	switch {
	case a.Tracked && !b.Tracked:
		return []int{0, 1}, event.ReasonNone
	case b.Tracked && !a.Tracked:
		return []int{1, 0}, event.ReasonNone
	}

	etot := a.E + b.E
	pick := func(pa, pb float64) ([]int, event.Reason) {
		switch {
		case pa <= 0 && pb <= 0:
			return nil, event.ReasonNoValidSequence
		case pb > pa:
			return []int{1, 0}, event.ReasonNone
		default:
			return []int{0, 1}, event.ReasonNone
		}
	}

	switch policy {
	case config.TwoSiteReject:
		return nil, event.ReasonTwoSiteAmbiguous

	case config.TwoSiteStartD1:
		da, db := a.Det.IsD1(), b.Det.IsD1()
		switch {
		case da && !db:
			return []int{0, 1}, event.ReasonNone
		case db && !da:
			return []int{1, 0}, event.ReasonNone
		case !da && !db:
			return nil, event.ReasonStartNotD1
		}
		return nil, event.ReasonTwoSiteAmbiguous

	case config.TwoSiteKleinNishina:
		return pick(
			KleinNishina(etot, etot-a.E),
			KleinNishina(etot, etot-b.E),
		)

	case config.TwoSiteKleinNishinaPhoto:
		return pick(
			KleinNishina(etot, etot-a.E)*PhotoAbsorption(b.E),
			KleinNishina(etot, etot-b.E)*PhotoAbsorption(a.E),
		)

	case config.TwoSiteLargerEnergy:
		if a.E == b.E {
			return nil, event.ReasonTwoSiteAmbiguous
		}
		return pick(a.E, b.E)
	}
	return nil, event.ReasonTwoSiteAmbiguous
}
