package aggregate

import (
	"github.com/torro-zz/pvre/internal/model"
)

// Recency weights per age bucket. The recency score is the weighted share
// of signals in each bucket scaled to [0,100].
const (
	weight30  = 1.0
	weight90  = 0.7
	weight180 = 0.4
	weightOld = 0.1
)

// temporal buckets signals by age and computes the deterministic recency
// score used by downstream confidence displays.
func (a *Aggregator) temporal(signals []model.PainSignal) (model.TemporalDistribution, float64) {
	var dist model.TemporalDistribution
	if len(signals) == 0 {
		return dist, 0
	}

	now := a.now()
	var weighted float64

	for _, s := range signals {
		age := now.Sub(s.Source.CreatedAt)
		days := age.Hours() / 24

		switch {
		case days <= 30:
			dist.Last30Days++
			weighted += weight30
		case days <= 90:
			dist.Last90Days++
			weighted += weight90
		case days <= 180:
			dist.Last180Days++
			weighted += weight180
		default:
			dist.Older++
			weighted += weightOld
		}
	}

	return dist, weighted / float64(len(signals)) * 100
}
