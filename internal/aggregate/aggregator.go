// Package aggregate merges classified items into deduplicated,
// confidence-tagged pain signals and the run-level quality metrics that make
// the output auditable.
package aggregate

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/torro-zz/pvre/internal/model"
)

// Config holds the aggregation policy constants. The numbers are tuned
// defaults, not invariants; they are surfaced through configuration.
type Config struct {
	HighIntensity    float64 // Score floor for high intensity (default 7.0)
	MediumIntensity  float64 // Score floor for medium intensity (default 4.0)
	QualityHighMax   float64 // Max average filter rate for high quality (default 40)
	QualityMediumMax float64 // Max average filter rate for medium quality (default 70)
	ConfLowMin       int     // Signal count floors for confidence buckets
	ConfMediumMin    int
	ConfHighMin      int
	TopCommunities   int // Entries in the top-source breakdown (default 5)
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		HighIntensity:    7.0,
		MediumIntensity:  4.0,
		QualityHighMax:   40,
		QualityMediumMax: 70,
		ConfLowMin:       10,
		ConfMediumMin:    30,
		ConfHighMin:      100,
		TopCommunities:   5,
	}
}

// Input pairs a raw item with its classification decision.
type Input struct {
	Item     model.RawItem
	Decision model.ClassificationDecision
}

// Aggregator builds the final scored summary.
type Aggregator struct {
	now     func() time.Time
	weights map[string]float64 // Per-community score multipliers
	cfg     Config
}

// New creates an aggregator. weights maps community name to a one-time score
// multiplier; communities absent from the map keep their raw score.
func New(cfg Config, weights map[string]float64) *Aggregator {
	def := DefaultConfig()
	if cfg.HighIntensity <= 0 {
		cfg.HighIntensity = def.HighIntensity
	}
	if cfg.MediumIntensity <= 0 {
		cfg.MediumIntensity = def.MediumIntensity
	}
	if cfg.QualityHighMax <= 0 {
		cfg.QualityHighMax = def.QualityHighMax
	}
	if cfg.QualityMediumMax <= 0 {
		cfg.QualityMediumMax = def.QualityMediumMax
	}
	if cfg.ConfLowMin <= 0 {
		cfg.ConfLowMin = def.ConfLowMin
	}
	if cfg.ConfMediumMin <= 0 {
		cfg.ConfMediumMin = def.ConfMediumMin
	}
	if cfg.ConfHighMin <= 0 {
		cfg.ConfHighMin = def.ConfHighMin
	}
	if cfg.TopCommunities <= 0 {
		cfg.TopCommunities = def.TopCommunities
	}

	return &Aggregator{
		cfg:     cfg,
		weights: weights,
		now:     time.Now,
	}
}

// Aggregate merges classified items into pain signals and computes the
// run-level summary. postFilterRate and commentFilterRate are the
// classification-stage filter percentages for each source, whose average
// drives the quality grade.
func (a *Aggregator) Aggregate(inputs []Input, postFilterRate, commentFilterRate float64) ([]model.PainSignal, model.PainSummary, model.FilterMetrics) {
	metrics := model.FilterMetrics{Before: len(inputs)}

	// Dedupe by normalized claim text, keeping the strongest provenance.
	byClaim := make(map[string]*model.PainSignal)
	order := make([]string, 0, len(inputs))

	for _, in := range inputs {
		switch in.Decision.Tier {
		case model.TierCore:
			metrics.CoreSignals++
		case model.TierRelated:
			metrics.RelatedSignals++
		default:
			continue
		}

		claim := normalizeClaim(in.Item.Text())
		if claim == "" {
			continue
		}

		if existing, ok := byClaim[claim]; ok {
			// Same underlying claim; keep the higher-engagement source
			// and the stronger tier.
			if in.Item.Engagement > existing.Source.Engagement {
				existing.Source = sourceOf(in.Item)
			}
			if in.Decision.Tier == model.TierCore {
				existing.Tier = model.TierCore
			}
			continue
		}

		signal := a.buildSignal(in)
		byClaim[claim] = &signal
		order = append(order, claim)
	}

	signals := make([]model.PainSignal, 0, len(order))
	for _, claim := range order {
		s := byClaim[claim]
		if w, ok := a.weights[s.Source.Community]; ok {
			s.ApplyWeight(w)
		}
		s.Intensity = a.intensityFor(s.Score)
		signals = append(signals, *s)
	}

	// A "survivor" of the whole pipeline is a core signal; related items
	// are reported but count toward the filtered share.
	metrics.After = metrics.CoreSignals
	metrics.FilteredOut = metrics.Before - metrics.After

	summary := a.buildSummary(signals, metrics, postFilterRate, commentFilterRate)

	return signals, summary, metrics
}

// buildSignal scores one classified item. The score is deterministic:
// a tier base, an engagement boost, and a willingness-to-pay boost, clamped
// to [0,10].
func (a *Aggregator) buildSignal(in Input) model.PainSignal {
	score := 3.5
	if in.Decision.Tier == model.TierCore {
		score = 6.0
	}

	if in.Item.Engagement > 0 {
		boost := math.Log10(float64(1 + in.Item.Engagement))
		if boost > 2.0 {
			boost = 2.0
		}
		score += boost
	}

	wtp := hasWillingnessToPay(in.Item.Text())
	if wtp {
		score += 1.5
	}

	if score > 10 {
		score = 10
	}

	return model.PainSignal{
		Text:             strings.TrimSpace(in.Item.Text()),
		Score:            score,
		Tier:             in.Decision.Tier,
		WillingnessToPay: wtp,
		Source:           sourceOf(in.Item),
	}
}

// intensityFor buckets a score by the configured thresholds.
func (a *Aggregator) intensityFor(score float64) model.Intensity {
	switch {
	case score >= a.cfg.HighIntensity:
		return model.IntensityHigh
	case score >= a.cfg.MediumIntensity:
		return model.IntensityMedium
	default:
		return model.IntensityLow
	}
}

// buildSummary computes the run-level quality and confidence grades.
func (a *Aggregator) buildSummary(signals []model.PainSignal, metrics model.FilterMetrics, postFilterRate, commentFilterRate float64) model.PainSummary {
	summary := model.PainSummary{
		TotalSignals:   len(signals),
		CoreSignals:    metrics.CoreSignals,
		RelatedSignals: metrics.RelatedSignals,
		Quality:        a.qualityFor((postFilterRate + commentFilterRate) / 2),
		Confidence:     a.confidenceFor(len(signals)),
	}

	var scoreSum float64
	communities := make(map[string]int)
	for _, s := range signals {
		scoreSum += s.Score
		communities[s.Source.Community]++
		if s.WillingnessToPay {
			summary.WillingnessToPay++
		}
	}
	if len(signals) > 0 {
		summary.AverageScore = scoreSum / float64(len(signals))
	}

	summary.TopCommunities = topCommunities(communities, a.cfg.TopCommunities)
	summary.Temporal, summary.RecencyScore = a.temporal(signals)

	return summary
}

// qualityFor grades the average filter rate: a lower filter-out rate means
// more of the raw haul was on-topic, hence higher quality.
func (a *Aggregator) qualityFor(avgFilterRate float64) model.QualityLevel {
	switch {
	case avgFilterRate <= a.cfg.QualityHighMax:
		return model.QualityHigh
	case avgFilterRate <= a.cfg.QualityMediumMax:
		return model.QualityMedium
	default:
		return model.QualityLow
	}
}

// confidenceFor grades sample size.
func (a *Aggregator) confidenceFor(count int) model.DataConfidence {
	switch {
	case count >= a.cfg.ConfHighMin:
		return model.ConfidenceHigh
	case count >= a.cfg.ConfMediumMin:
		return model.ConfidenceMedium
	case count >= a.cfg.ConfLowMin:
		return model.ConfidenceLow
	default:
		return model.ConfidenceVeryLow
	}
}

// topCommunities returns the n most frequent communities, ties broken by
// name for determinism.
func topCommunities(counts map[string]int, n int) []model.CommunityCount {
	all := make([]model.CommunityCount, 0, len(counts))
	for community, count := range counts {
		all = append(all, model.CommunityCount{Community: community, Count: count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Community < all[j].Community
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// sourceOf extracts signal provenance from an item.
func sourceOf(item model.RawItem) model.SignalSource {
	return model.SignalSource{
		Community:  item.Community,
		Author:     item.Author,
		URL:        item.Permalink,
		CreatedAt:  item.CreatedAt,
		Engagement: item.Engagement,
	}
}

// willingnessMarkers are phrases that signal an explicit intent to pay.
var willingnessMarkers = []string{
	"would pay",
	"i'd pay",
	"happily pay",
	"gladly pay",
	"pay for",
	"paying for",
	"take my money",
	"worth paying",
}

// hasWillingnessToPay reports whether the text contains an explicit
// willingness-to-pay phrase.
func hasWillingnessToPay(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range willingnessMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// normalizeClaim collapses an item's text into a dedupe key.
func normalizeClaim(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	fields := strings.Fields(lower)
	if len(fields) > 25 {
		fields = fields[:25]
	}
	return strings.Join(fields, " ")
}
