// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"math"

	"github.com/go-lpc/revan/geom"
)

func errorf(format string, args ...interface{}) error {
	return fmt.Errorf("config: %w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Validate checks the consistency of the settings.
// All returned errors wrap ErrConfig.
func (cfg Settings) Validate() error {
	for _, check := range []func() error{
		cfg.Coincidence.validate,
		cfg.Clustering.validate,
		cfg.Tracking.validate,
		cfg.CSR.validate,
		cfg.Selection.validate,
	} {
		err := check()
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateGeometry checks the settings against the provided geometry.
// All returned errors wrap ErrConfig.
func (cfg Settings) ValidateGeometry(geo *geom.Geometry) error {
	if geo == nil || geo.Len() == 0 {
		return errorf("no geometry loaded")
	}
	for _, name := range cfg.Tracking.Detectors {
		if _, ok := geo.Index(name); !ok {
			return errorf("unknown tracking detector %q", name)
		}
	}
	return nil
}

func (c Coincidence) validate() error {
	if c.Window < 0 || math.IsNaN(c.Window) {
		return errorf("invalid coincidence window %v", c.Window)
	}
	return nil
}

func (c Clustering) validate() error {
	switch c.Algorithm {
	case ClusterNone:
		return nil
	case ClusterDistance:
		if len(c.Distances) != geom.NTypes {
			return errorf(
				"invalid number of clustering distances (got=%d, want=%d)",
				len(c.Distances), geom.NTypes,
			)
		}
		for i, v := range c.Distances {
			if v < 0 || math.IsNaN(v) {
				return errorf("invalid clustering distance %v for %v", v, geom.Type(i+1))
			}
		}
	case ClusterAdjacent:
		if !geom.ValidLevel(c.Level) {
			return errorf("invalid neighborhood level %d", c.Level)
		}
		if c.Sigma < 0 {
			return errorf("invalid depth sigma %v", c.Sigma)
		}
	case ClusterPDF:
		if c.PDFFile == "" {
			return errorf("pdf clustering needs a response file")
		}
		if c.MinProbability < 0 || c.MinProbability > 1 {
			return errorf("invalid minimal merge probability %v", c.MinProbability)
		}
	default:
		return errorf("unknown clustering algorithm %q", c.Algorithm)
	}
	return nil
}

func (c Tracking) validate() error {
	switch c.Algorithm {
	case TrackNone:
		return nil
	case TrackPearson, TrackRank, TrackChi2, TrackGas, TrackDirectional:
	case TrackBayesian:
		if c.ResponseFile == "" {
			return errorf("bayesian tracking needs a response file")
		}
	default:
		return errorf("unknown tracking algorithm %q", c.Algorithm)
	}

	if c.SearchMIPs && c.MIPMinLayers < 3 {
		return errorf("invalid minimal number of MIP layers %d", c.MIPMinLayers)
	}
	if c.SearchPairs && c.NLayersForVertexSearch < MinVertexLayers {
		return errorf(
			"invalid number of layers for vertex search %d (min=%d)",
			c.NLayersForVertexSearch, MinVertexLayers,
		)
	}
	if c.SearchComptons {
		if c.MaxTrackElements < 2 || c.MaxTrackElements > MaxTrackElementsCeiling {
			return errorf(
				"invalid maximal number of track elements %d (valid range: [2, %d])",
				c.MaxTrackElements, MaxTrackElementsCeiling,
			)
		}
		if c.MaxComptonJump < 1 {
			return errorf("invalid maximal compton jump %d", c.MaxComptonJump)
		}
	}
	if c.NSequencesToKeep < 1 {
		return errorf("invalid number of sequences to keep %d", c.NSequencesToKeep)
	}
	return nil
}

func (c CSR) validate() error {
	switch c.Algorithm {
	case CSRNone:
		return nil
	case CSRFoM, CSREnergyRecovery, CSRToF, CSRToFEnergyRecovery:
	case CSRBayesian:
		if c.ResponseFile == "" {
			return errorf("bayesian sequencing needs a response file")
		}
	case CSRClassifier:
		if c.ClassifierFile == "" {
			return errorf("classifier sequencing needs a model file")
		}
	default:
		return errorf("unknown CSR algorithm %q", c.Algorithm)
	}

	if c.MaxNHits < 2 || c.MaxNHits > MaxNHitsCeiling {
		return errorf(
			"invalid maximal number of CSR hits %d (valid range: [2, %d])",
			c.MaxNHits, MaxNHitsCeiling,
		)
	}
	if c.MaxLayerJump < 0 {
		return errorf("invalid maximal layer jump %d", c.MaxLayerJump)
	}

	switch c.TwoSite {
	case TwoSiteReject, TwoSiteStartD1, TwoSiteKleinNishina,
		TwoSiteKleinNishinaPhoto, TwoSiteLargerEnergy:
	default:
		return errorf("unknown two-site policy %q", c.TwoSite)
	}

	if c.Threshold.Min > c.Threshold.Max {
		return errorf("invalid quality window [%v, %v]", c.Threshold.Min, c.Threshold.Max)
	}
	switch c.ThresholdAction {
	case ThresholdReject, ThresholdFlag:
	default:
		return errorf("unknown threshold action %q", c.ThresholdAction)
	}

	switch c.Algorithm {
	case CSRToF, CSRToFEnergyRecovery:
		if c.TimeResolution <= 0 {
			return errorf("invalid time resolution %v", c.TimeResolution)
		}
	}
	return nil
}

func (c Selection) validate() error {
	if c.EventID.Min > c.EventID.Max {
		return errorf("invalid event ID window [%d, %d]", c.EventID.Min, c.EventID.Max)
	}
	if !(c.TotalEnergy.Min <= c.TotalEnergy.Max) {
		return errorf("invalid total energy window [%v, %v]", c.TotalEnergy.Min, c.TotalEnergy.Max)
	}
	if !(c.LeverArm.Min <= c.LeverArm.Max) {
		return errorf("invalid lever arm window [%v, %v]", c.LeverArm.Min, c.LeverArm.Max)
	}
	return nil
}
