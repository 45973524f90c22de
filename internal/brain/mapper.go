// Package brain maps volumetric MRI measurements to six region health
// scores, flags atrophy and compares two scans.
package brain

import (
	"fmt"
	"math"

	"github.com/mindmate/cognition/internal/patient"
)

// Region names as they appear in JSON.
const (
	Hippocampus      = "hippocampus"
	PrefrontalCortex = "prefrontalCortex"
	TemporalLobe     = "temporalLobe"
	ParietalLobe     = "parietalLobe"
	Amygdala         = "amygdala"
	Cerebellum       = "cerebellum"
)

// RegionNames lists the six regions in display order.
var RegionNames = []string{Hippocampus, PrefrontalCortex, TemporalLobe, ParietalLobe, Amygdala, Cerebellum}

var displayNames = map[string]string{
	Hippocampus:      "Hippocampus",
	PrefrontalCortex: "Prefrontal Cortex",
	TemporalLobe:     "Temporal Lobe",
	ParietalLobe:     "Parietal Lobe",
	Amygdala:         "Amygdala",
	Cerebellum:       "Cerebellum",
}

// Source structures in a FreeSurfer-style volumetric table.
const (
	LeftHippocampus  = "Left-Hippocampus"
	RightHippocampus = "Right-Hippocampus"
	LeftTemporal     = "Left-Temporal-Lobe"
	RightTemporal    = "Right-Temporal-Lobe"
	TotalGrayMatter  = "Total-gray-matter"
	BrainVolume      = "Brain-Segmentation-Volume"
)

// Anatomical ratios for regions not measured directly.
const (
	prefrontalGrayRatio    = 0.25
	parietalGrayRatio      = 0.20
	amygdalaHippocampRatio = 0.03
	cerebellumBrainRatio   = 0.10
)

// Health score shape below and above the lower bound of a normal range.
const (
	lowerBoundScore = 0.8
	zeroScoreFactor = 0.5 // fraction of the lower bound that scores 0
)

// Range is a normal interval of normalized volume.
type Range struct {
	Lower, Upper float64
}

// NormalRanges are the normalized-volume intervals treated as healthy.
var NormalRanges = map[string]Range{
	Hippocampus:      {0.0020, 0.0025},
	PrefrontalCortex: {0.024, 0.030},
	TemporalLobe:     {0.028, 0.035},
	ParietalLobe:     {0.019, 0.024},
	Amygdala:         {0.00006, 0.00008},
	Cerebellum:       {0.095, 0.115},
}

// Measurement is one row of a volumetric table.
type Measurement struct {
	Volume     float64 `json:"volume"`
	Normalized float64 `json:"normalized"`
}

// Measurements maps structure name to its measurement.
type Measurements map[string]Measurement

// Validate rejects negative or non-finite values.
func (m Measurements) Validate() error {
	for name, v := range m {
		if invalid(v.Volume) || invalid(v.Normalized) {
			return fmt.Errorf("%w: structure %q has volume %v, normalized %v", ErrMalformedTable, name, v.Volume, v.Normalized)
		}
	}
	return nil
}

func invalid(v float64) bool {
	return v < 0 || math.IsNaN(v) || math.IsInf(v, 0)
}

func (m Measurements) normalized(structure string) float64 {
	return m[structure].Normalized
}

// Regions holds one health score in [0,1] per brain region.
type Regions struct {
	Hippocampus      float64 `json:"hippocampus"`
	PrefrontalCortex float64 `json:"prefrontalCortex"`
	TemporalLobe     float64 `json:"temporalLobe"`
	ParietalLobe     float64 `json:"parietalLobe"`
	Amygdala         float64 `json:"amygdala"`
	Cerebellum       float64 `json:"cerebellum"`
}

// Uniform returns a Regions with every score set to v.
func Uniform(v float64) Regions {
	return Regions{v, v, v, v, v, v}
}

// Each calls fn for every region in RegionNames order.
func (r Regions) Each(fn func(name string, v float64)) {
	fn(Hippocampus, r.Hippocampus)
	fn(PrefrontalCortex, r.PrefrontalCortex)
	fn(TemporalLobe, r.TemporalLobe)
	fn(ParietalLobe, r.ParietalLobe)
	fn(Amygdala, r.Amygdala)
	fn(Cerebellum, r.Cerebellum)
}

// Get returns the named region score.
func (r Regions) Get(name string) (float64, bool) {
	switch name {
	case Hippocampus:
		return r.Hippocampus, true
	case PrefrontalCortex:
		return r.PrefrontalCortex, true
	case TemporalLobe:
		return r.TemporalLobe, true
	case ParietalLobe:
		return r.ParietalLobe, true
	case Amygdala:
		return r.Amygdala, true
	case Cerebellum:
		return r.Cerebellum, true
	}
	return 0, false
}

// Map converts raw measurements into region health scores. Missing
// structures count as zero volume.
func Map(m Measurements) Regions {
	hippocampus := (m.normalized(LeftHippocampus) + m.normalized(RightHippocampus)) / 2
	temporal := (m.normalized(LeftTemporal) + m.normalized(RightTemporal)) / 2
	gray := m.normalized(TotalGrayMatter)
	brain := m.normalized(BrainVolume)

	score := func(region string, v float64) float64 {
		return patient.Round3(HealthScore(v, NormalRanges[region]))
	}
	return Regions{
		Hippocampus:      score(Hippocampus, hippocampus),
		PrefrontalCortex: score(PrefrontalCortex, gray*prefrontalGrayRatio),
		TemporalLobe:     score(TemporalLobe, temporal),
		ParietalLobe:     score(ParietalLobe, gray*parietalGrayRatio),
		Amygdala:         score(Amygdala, hippocampus*amygdalaHippocampRatio),
		Cerebellum:       score(Cerebellum, brain*cerebellumBrainRatio),
	}
}

// HealthScore maps a normalized volume onto [0,1] against a normal range.
// From half the lower bound up to the lower bound the score rises linearly
// from 0 to 0.8; from the lower bound to the upper bound it rises from 0.8
// to 1.0 and stays there.
func HealthScore(v float64, r Range) float64 {
	if math.IsNaN(v) || r.Lower <= 0 {
		return 0
	}
	if v < r.Lower {
		floor := r.Lower * zeroScoreFactor
		return patient.Clamp01(lowerBoundScore * (v - floor) / (r.Lower - floor))
	}
	if r.Upper <= r.Lower {
		return 1
	}
	return patient.Clamp01(lowerBoundScore + (1-lowerBoundScore)*(v-r.Lower)/(r.Upper-r.Lower))
}
