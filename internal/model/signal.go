package model

import "time"

// Intensity buckets a signal's numeric score into a coarse tier.
type Intensity string

// Intensity constants.
const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// SignalSource records the provenance of an aggregated signal.
type SignalSource struct {
	CreatedAt  time.Time
	Community  string
	Author     string
	URL        string
	Engagement int
}

// PainSignal is the canonical aggregated unit exposed downstream, derived
// from one or more raw items sharing the same underlying claim. Signals are
// immutable after aggregation except for the single community-weight pass.
type PainSignal struct {
	Source           SignalSource
	Text             string
	Intensity        Intensity
	Tier             Tier
	Score            float64
	WillingnessToPay bool
	weighted         bool
}

// ApplyWeight multiplies the signal score by a per-community weight exactly
// once. Subsequent calls are no-ops so re-running the weighting pass never
// compounds.
func (s *PainSignal) ApplyWeight(w float64) {
	if s.weighted || w <= 0 {
		return
	}
	s.Score *= w
	s.weighted = true
}

// Weighted reports whether the one-time weight pass has been applied.
func (s *PainSignal) Weighted() bool { return s.weighted }

// QualityLevel grades how much of the raw haul was on-topic.
type QualityLevel string

// Quality level constants.
const (
	QualityHigh   QualityLevel = "high"
	QualityMedium QualityLevel = "medium"
	QualityLow    QualityLevel = "low"
)

// DataConfidence grades sample size so small results are never presented
// with false certainty.
type DataConfidence string

// Data confidence constants.
const (
	ConfidenceVeryLow DataConfidence = "very_low"
	ConfidenceLow     DataConfidence = "low"
	ConfidenceMedium  DataConfidence = "medium"
	ConfidenceHigh    DataConfidence = "high"
)

// TemporalDistribution counts signals by age bucket.
type TemporalDistribution struct {
	Last30Days  int
	Last90Days  int
	Last180Days int
	Older       int
}

// CommunityCount pairs a community with its signal count for top-source
// breakdowns.
type CommunityCount struct {
	Community string
	Count     int
}

// PainSummary is the aggregate result of one ingestion run.
type PainSummary struct {
	Temporal         TemporalDistribution
	Quality          QualityLevel
	Confidence       DataConfidence
	TopCommunities   []CommunityCount
	TotalSignals     int
	CoreSignals      int
	RelatedSignals   int
	AverageScore     float64
	RecencyScore     float64
	WillingnessToPay int
}
