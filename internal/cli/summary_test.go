package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/torro-zz/pvre/internal/model"
)

func TestRenderRunSummary(t *testing.T) {
	t.Run("completed run", func(t *testing.T) {
		out := RenderRunSummary(&model.RunResult{
			JobID: "job-1",
			State: model.StateCompleted,
			Summary: model.PainSummary{
				TotalSignals:     12,
				CoreSignals:      9,
				RelatedSignals:   3,
				Quality:          model.QualityHigh,
				Confidence:       model.ConfidenceLow,
				AverageScore:     6.4,
				WillingnessToPay: 2,
				TopCommunities: []model.CommunityCount{
					{Community: "freelance", Count: 7},
					{Community: "smallbusiness", Count: 5},
				},
			},
			Metrics: model.FilterMetrics{Before: 40, After: 9, FilteredOut: 31, ParseFailures: 1},
		})

		assert.Contains(t, out, "12 pain signals")
		assert.Contains(t, out, "9 core, 3 related")
		assert.Contains(t, out, "high")
		assert.Contains(t, out, "freelance")
		assert.Contains(t, out, "willingness to pay")
		assert.Contains(t, out, "conservative inclusion")
	})

	t.Run("failed run names the stage", func(t *testing.T) {
		out := RenderRunSummary(&model.RunResult{
			JobID:       "job-2",
			State:       model.StateFailed,
			FailedStage: model.StateFetching,
		})
		assert.Contains(t, out, "failed during fetching")
	})

	t.Run("nil result", func(t *testing.T) {
		assert.Empty(t, RenderRunSummary(nil))
	})
}
