// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import "fmt"

// Type is the classification of a reconstructed event.
type Type uint8

const (
	Unknown        Type = iota // not classified, or rejected before classification
	Photo                      // single interaction site
	Compton                    // Compton scattering sequence
	Pair                       // pair production vertex
	MIP                        // minimum ionizing particle through-track
	Unidentifiable             // no consistent interpretation found
	Bad                        // previously flagged as bad
)

// NTypes is the number of event types, including Unknown.
const NTypes = 7

var typeNames = [NTypes]string{
	Unknown:        "unknown",
	Photo:          "photo",
	Compton:        "compton",
	Pair:           "pair",
	MIP:            "mip",
	Unidentifiable: "unidentifiable",
	Bad:            "bad",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Reason is the reason why an event was rejected.
type Reason uint8

const (
	ReasonNone                Reason = iota
	ReasonNoHits                     // event has no hit left
	ReasonBadFlagged                 // event was flagged as bad upstream
	ReasonEventIDOutOfRange          // event ID outside the selection window
	ReasonEnergyOutOfRange           // total energy outside the selection window
	ReasonLeverArmOutOfRange         // lever arm outside the selection window
	ReasonNoTrigger                  // no hit in a trigger detector
	ReasonTooManyHits                // more interaction sites than the CSR maximum
	ReasonOneDetectorTypeOnly        // all sites share one detector type
	ReasonStartNotD1                 // sequence does not start in a D1-class detector
	ReasonTwoSiteAmbiguous           // two-site event could not be ordered
	ReasonNoValidSequence            // no permutation survived the pruning rules
	ReasonQualityOutOfRange          // best quality outside the threshold window
	ReasonAmbiguousTrack             // all electron-track orderings score the same
	ReasonBadTrack                   // no valid electron-track ordering
)

// NReasons is the number of rejection reasons, including ReasonNone.
const NReasons = 15

var reasonNames = [NReasons]string{
	ReasonNone:                "none",
	ReasonNoHits:              "no-hits",
	ReasonBadFlagged:          "bad-flagged",
	ReasonEventIDOutOfRange:   "event-id-out-of-range",
	ReasonEnergyOutOfRange:    "energy-out-of-range",
	ReasonLeverArmOutOfRange:  "lever-arm-out-of-range",
	ReasonNoTrigger:           "no-trigger",
	ReasonTooManyHits:         "too-many-hits",
	ReasonOneDetectorTypeOnly: "one-detector-type-only",
	ReasonStartNotD1:          "start-not-d1",
	ReasonTwoSiteAmbiguous:    "two-site-ambiguous",
	ReasonNoValidSequence:     "no-valid-sequence",
	ReasonQualityOutOfRange:   "quality-out-of-range",
	ReasonAmbiguousTrack:      "ambiguous-track",
	ReasonBadTrack:            "bad-track",
}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

// Flags holds informational flags attached to an event.
type Flags uint8

const (
	// FlagLowConfidence marks an event whose quality lies outside the
	// quality window but which was kept nonetheless.
	FlagLowConfidence Flags = 1 << iota
	// FlagEnergyRecovered marks an event whose escaped energy was fitted.
	FlagEnergyRecovered
)

// Has returns whether all the bits of v are set.
func (f Flags) Has(v Flags) bool { return f&v == v }
