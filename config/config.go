// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the reconstruction settings: which algorithm runs
// at each stage of the pipeline, their numerical parameters and the
// external response files they consume.
package config // import "github.com/go-lpc/revan/config"

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-lpc/revan/geom"
	"gopkg.in/yaml.v3"
)

// ErrConfig is wrapped by every configuration error.
var ErrConfig = errors.New("invalid configuration")

// MaxNHitsCeiling is the largest number of interaction sites the
// Compton-sequence search accepts.
const MaxNHitsCeiling = 9

// MaxTrackElementsCeiling is the largest number of hits the Compton
// electron tracking orders within one track.
const MaxTrackElementsCeiling = 8

// MaxNHitsWarn is the number of interaction sites above which the
// Compton-sequence search becomes slow.
const MaxNHitsWarn = 7

// MinVertexLayers is the minimum number of layers scanned by the pair
// vertex search.
const MinVertexLayers = 4

// ClusterAlgo selects the hit clustering algorithm.
type ClusterAlgo string

const (
	ClusterNone     ClusterAlgo = "none"
	ClusterDistance ClusterAlgo = "distance"
	ClusterAdjacent ClusterAlgo = "adjacent"
	ClusterPDF      ClusterAlgo = "pdf"
)

// TrackAlgo selects the electron track scoring algorithm.
type TrackAlgo string

const (
	TrackNone        TrackAlgo = "none"
	TrackPearson     TrackAlgo = "pearson"
	TrackRank        TrackAlgo = "rank"
	TrackChi2        TrackAlgo = "chi2"
	TrackGas         TrackAlgo = "gas"
	TrackDirectional TrackAlgo = "directional"
	TrackBayesian    TrackAlgo = "bayesian"
)

// CSRAlgo selects the Compton-sequence scoring algorithm.
type CSRAlgo string

const (
	CSRNone              CSRAlgo = "none"
	CSRFoM               CSRAlgo = "fom"
	CSREnergyRecovery    CSRAlgo = "energy-recovery"
	CSRToF               CSRAlgo = "tof"
	CSRToFEnergyRecovery CSRAlgo = "tof-energy-recovery"
	CSRBayesian          CSRAlgo = "bayesian"
	CSRClassifier        CSRAlgo = "classifier"
)

// TwoSitePolicy selects how two-site events without tracking information
// are ordered.
type TwoSitePolicy string

const (
	TwoSiteReject            TwoSitePolicy = "reject"
	TwoSiteStartD1           TwoSitePolicy = "start-d1"
	TwoSiteKleinNishina      TwoSitePolicy = "klein-nishina"
	TwoSiteKleinNishinaPhoto TwoSitePolicy = "klein-nishina-photo"
	TwoSiteLargerEnergy      TwoSitePolicy = "larger-energy"
)

// ThresholdAction selects what happens to events whose quality lies
// outside the quality window.
type ThresholdAction string

const (
	ThresholdReject ThresholdAction = "reject"
	ThresholdFlag   ThresholdAction = "flag"
)

// Range is a closed [Min, Max] interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains returns whether v lies inside the range.
func (r Range) Contains(v float64) bool { return r.Min <= v && v <= r.Max }

// IDRange is a closed [Min, Max] interval of event IDs.
type IDRange struct {
	Min uint64 `yaml:"min"`
	Max uint64 `yaml:"max"`
}

// Contains returns whether id lies inside the range.
func (r IDRange) Contains(id uint64) bool { return r.Min <= id && id <= r.Max }

// Settings is the configuration of one reconstruction run.
// Settings are read-only once the analysis has started.
type Settings struct {
	Coincidence Coincidence `yaml:"coincidence"`
	Clustering  Clustering  `yaml:"clustering"`
	Tracking    Tracking    `yaml:"tracking"`
	CSR         CSR         `yaml:"csr"`
	Selection   Selection   `yaml:"selection"`
}

// Coincidence configures the coincidence window.
type Coincidence struct {
	Enabled bool    `yaml:"enabled"`
	Window  float64 `yaml:"window"` // in seconds
}

// Clustering configures the hit clustering stage.
type Clustering struct {
	Algorithm ClusterAlgo `yaml:"algorithm"`

	// Distances holds the distance thresholds (in cm), one per detector
	// type, in geom.Types order.
	Distances   []float64 `yaml:"distances"`
	UseCentroid bool      `yaml:"use-centroid"`

	Level int     `yaml:"level"` // neighborhood level of the adjacent clustering
	Sigma float64 `yaml:"sigma"` // depth agreement, in units of the combined resolution

	PDFFile        string  `yaml:"pdf-file"`
	MinProbability float64 `yaml:"min-probability"`
}

// Distance returns the distance threshold of the provided detector type.
func (c Clustering) Distance(t geom.Type) float64 {
	i := int(t) - 1
	if i < 0 || i >= len(c.Distances) {
		return 0
	}
	return c.Distances[i]
}

// Tracking configures the electron tracking stage.
type Tracking struct {
	Algorithm TrackAlgo `yaml:"algorithm"`

	// Detectors lists the names of the detectors taking part in the
	// tracking. An empty list selects every tracking-capable detector.
	Detectors []string `yaml:"detectors"`

	SearchMIPs     bool `yaml:"search-mips"`
	SearchPairs    bool `yaml:"search-pairs"`
	SearchComptons bool `yaml:"search-comptons"`

	MIPMinLayers   int     `yaml:"mip-min-layers"`
	MIPMaxResidual float64 `yaml:"mip-max-residual"` // in cm

	NLayersForVertexSearch int `yaml:"n-layers-for-vertex-search"`

	MaxComptonJump     int     `yaml:"max-compton-jump"`     // in layers
	MaxElementDistance float64 `yaml:"max-element-distance"` // in cm
	MaxTrackElements   int     `yaml:"max-track-elements"`

	NSequencesToKeep      int  `yaml:"n-sequences-to-keep"`
	RejectPurelyAmbiguous bool `yaml:"reject-purely-ambiguous"`

	ResponseFile string `yaml:"response-file"`
}

// CSR configures the Compton-sequence reconstruction stage.
type CSR struct {
	Algorithm CSRAlgo `yaml:"algorithm"`

	MaxNHits                  int  `yaml:"max-nhits"`
	GuaranteeStartD1          bool `yaml:"guarantee-start-d1"`
	RejectOneDetectorTypeOnly bool `yaml:"reject-one-detector-type-only"`
	MaxLayerJump              int  `yaml:"max-layer-jump"`

	TwoSite TwoSitePolicy `yaml:"two-site"`

	Threshold       Range           `yaml:"threshold"`
	ThresholdAction ThresholdAction `yaml:"threshold-action"`

	TimeResolution float64 `yaml:"time-resolution"` // in seconds

	ResponseFile   string `yaml:"response-file"`
	ClassifierFile string `yaml:"classifier-file"`
}

// Selection configures the event selection cuts.
type Selection struct {
	RejectAllBadEvents bool    `yaml:"reject-all-bad-events"`
	EventID            IDRange `yaml:"event-id"`
	TotalEnergy        Range   `yaml:"total-energy"` // in keV
	LeverArm           Range   `yaml:"lever-arm"`    // in cm
}

// Default returns the default reconstruction settings.
func Default() Settings {
	return Settings{
		Coincidence: Coincidence{
			Enabled: false,
			Window:  1e-6,
		},
		Clustering: Clustering{
			Algorithm: ClusterDistance,
			// strip2d, calorimeter, strip3d, scintillator,
			// drift-chamber, strip3d-directional, anger-camera, voxel3d.
			Distances:      []float64{0.5, 1.1, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5},
			UseCentroid:    false,
			Level:          8,
			Sigma:          3,
			MinProbability: 0.5,
		},
		Tracking: Tracking{
			Algorithm:              TrackPearson,
			SearchMIPs:             true,
			SearchPairs:            true,
			SearchComptons:         true,
			MIPMinLayers:           5,
			MIPMaxResidual:         0.5,
			NLayersForVertexSearch: 8,
			MaxComptonJump:         2,
			MaxElementDistance:     2,
			MaxTrackElements:       6,
			NSequencesToKeep:       1,
			RejectPurelyAmbiguous:  false,
		},
		CSR: CSR{
			Algorithm:                 CSRFoM,
			MaxNHits:                  5,
			GuaranteeStartD1:          false,
			RejectOneDetectorTypeOnly: false,
			MaxLayerJump:              0,
			TwoSite:                   TwoSiteKleinNishina,
			Threshold:                 Range{Min: 0, Max: 100},
			ThresholdAction:           ThresholdReject,
			TimeResolution:            1e-9,
		},
		Selection: Selection{
			RejectAllBadEvents: true,
			EventID:            IDRange{Min: 0, Max: math.MaxUint64},
			TotalEnergy:        Range{Min: 0, Max: math.Inf(+1)},
			LeverArm:           Range{Min: 0, Max: math.Inf(+1)},
		},
	}
}

// Load reads YAML settings from the named file.
// Missing entries keep their default value.
func Load(fname string) (Settings, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Settings{}, fmt.Errorf("config: could not open settings file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return cfg, fmt.Errorf("config: could not read settings file %q: %w", fname, err)
	}
	return cfg, nil
}

// Read decodes YAML settings from r, on top of the default settings.
func Read(r io.Reader) (Settings, error) {
	cfg := Default()
	err := yaml.NewDecoder(r).Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: could not decode settings: %w", err)
	}
	return cfg, nil
}

// Save writes the settings as YAML to the named file.
func (cfg Settings) Save(fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("config: could not create settings file: %w", err)
	}
	defer f.Close()

	err = cfg.Write(f)
	if err != nil {
		return err
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("config: could not close settings file: %w", err)
	}
	return nil
}

// Write encodes the settings as YAML to w.
func (cfg Settings) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(cfg)
	if err != nil {
		return fmt.Errorf("config: could not encode settings: %w", err)
	}
	err = enc.Close()
	if err != nil {
		return fmt.Errorf("config: could not flush settings: %w", err)
	}
	return nil
}
