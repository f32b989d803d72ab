package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/model"
)

func testItems(n int) []model.RawItem {
	items := make([]model.RawItem, n)
	for i := range items {
		items[i] = model.RawItem{
			ID:        fmt.Sprintf("item-%d", i),
			Kind:      model.KindPost,
			Title:     fmt.Sprintf("post %d", i),
			Body:      "struggling with manual invoicing",
			Community: "smallbusiness",
		}
	}
	return items
}

func testConfig() Config {
	return Config{BatchSize: 20, MaxRetries: 3, RetryDelay: time.Millisecond}
}

// recordingTracker captures usage callbacks for assertions.
type recordingTracker struct {
	mu     sync.Mutex
	input  int
	output int
	calls  int
}

func (r *recordingTracker) RecordUsage(_ context.Context, _ string, in, out int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input += in
	r.output += out
	r.calls++
}

func TestClassify(t *testing.T) {
	t.Run("maps oracle tokens to decisions in order", func(t *testing.T) {
		mock := NewMockClient(`["C","X","R"]`)
		c := New(mock, testConfig(), nil, nil)

		result, err := c.Classify(context.Background(), testItems(3), "solo founders hate invoicing", "job-1", nil)
		require.NoError(t, err)
		require.Len(t, result.Decisions, 3)

		assert.Equal(t, "item-0", result.Decisions[0].ItemID)
		assert.Equal(t, model.TierCore, result.Decisions[0].Tier)
		assert.Equal(t, model.TierRejected, result.Decisions[1].Tier)
		assert.Equal(t, model.TierRelated, result.Decisions[2].Tier)
		assert.Zero(t, result.ParseFailures)
	})

	t.Run("splits items into fixed-size batches", func(t *testing.T) {
		responses := make([]string, 3)
		for i := range responses {
			responses[i] = `[` + strings.Repeat(`"C",`, 19) + `"C"]`
		}
		// Last batch has 5 items.
		responses[2] = `["C","C","C","C","C"]`

		mock := NewMockClient(responses...)
		c := New(mock, testConfig(), nil, nil)

		result, err := c.Classify(context.Background(), testItems(45), "hypothesis", "job-1", nil)
		require.NoError(t, err)
		assert.Len(t, result.Decisions, 45)
		assert.Equal(t, 3, mock.Calls())
	})

	t.Run("unparseable batch falls back to inclusion", func(t *testing.T) {
		// Scenario: one batch of 20 items, oracle answers with prose.
		mock := NewMockClient("I am sorry, I cannot classify these items today.")
		c := New(mock, testConfig(), nil, nil)

		result, err := c.Classify(context.Background(), testItems(20), "hypothesis", "job-1", nil)
		require.NoError(t, err)
		require.Len(t, result.Decisions, 20)

		for _, d := range result.Decisions {
			assert.Equal(t, model.TierCore, d.Tier, "fallback must include, never reject")
			assert.NotEmpty(t, d.Rationale)
		}
		assert.Equal(t, 1, result.ParseFailures, "counter increments per batch, not per item")
	})

	t.Run("unscripted mock yields empty response, not a panic", func(t *testing.T) {
		mock := NewMockClient()
		c := New(mock, testConfig(), nil, nil)

		result, err := c.Classify(context.Background(), testItems(3), "hypothesis", "job-1", nil)
		require.NoError(t, err)
		require.Len(t, result.Decisions, 3)
		assert.Equal(t, 1, result.ParseFailures)
	})

	t.Run("length mismatch includes the undecodable tail", func(t *testing.T) {
		mock := NewMockClient(`["C","X"]`)
		c := New(mock, testConfig(), nil, nil)

		result, err := c.Classify(context.Background(), testItems(4), "hypothesis", "job-1", nil)
		require.NoError(t, err)
		require.Len(t, result.Decisions, 4)

		assert.Equal(t, model.TierCore, result.Decisions[0].Tier)
		assert.Equal(t, model.TierRejected, result.Decisions[1].Tier)
		assert.Equal(t, model.TierCore, result.Decisions[2].Tier)
		assert.Equal(t, model.TierCore, result.Decisions[3].Tier)
		assert.Equal(t, 1, result.ParseFailures)
	})

	t.Run("every item receives exactly one decision", func(t *testing.T) {
		mock := NewMockClient(
			`["C","X","R","C","C","X","X","R","C","X","C","X","R","C","C","X","X","R","C","X"]`,
			"complete garbage",
			`["R","R","R","R","R"]`,
		)
		c := New(mock, testConfig(), nil, nil)

		items := testItems(45)
		result, err := c.Classify(context.Background(), items, "hypothesis", "job-1", nil)
		require.NoError(t, err)
		require.Len(t, result.Decisions, len(items))

		seen := make(map[string]int)
		for _, d := range result.Decisions {
			seen[d.ItemID]++
		}
		for _, item := range items {
			assert.Equal(t, 1, seen[item.ID], "item %s must have exactly one decision", item.ID)
		}
	})

	t.Run("oracle failure on every batch returns error", func(t *testing.T) {
		mock := NewMockClient().FailWith(errors.New("connection refused"))
		c := New(mock, testConfig(), nil, nil)

		result, err := c.Classify(context.Background(), testItems(30), "hypothesis", "job-1", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrOracleUnavailable)
		// Decisions are still produced for audit even on total failure.
		assert.Len(t, result.Decisions, 30)
	})

	t.Run("partial oracle failure degrades instead of failing", func(t *testing.T) {
		mock := NewMockClient(`[` + strings.Repeat(`"X",`, 19) + `"X"]`)
		// Second batch fails through all three retry attempts.
		mock.FailOnCall(2, errors.New("boom"))
		mock.FailOnCall(3, errors.New("boom"))
		mock.FailOnCall(4, errors.New("boom"))

		c := New(mock, testConfig(), nil, nil)

		result, err := c.Classify(context.Background(), testItems(25), "hypothesis", "job-1", nil)
		require.NoError(t, err)
		require.Len(t, result.Decisions, 25)

		for _, d := range result.Decisions[20:] {
			assert.Equal(t, model.TierCore, d.Tier)
		}
		assert.Equal(t, 1, result.ParseFailures)
	})

	t.Run("reports incremental progress", func(t *testing.T) {
		mock := NewMockClient(
			`[`+strings.Repeat(`"C",`, 19)+`"C"]`,
			`["R","R","R","X","X"]`,
		)
		c := New(mock, testConfig(), nil, nil)

		var snapshots []Progress
		_, err := c.Classify(context.Background(), testItems(25), "hypothesis", "job-1", func(p Progress) {
			snapshots = append(snapshots, p)
		})
		require.NoError(t, err)
		require.Len(t, snapshots, 2)

		assert.Equal(t, Progress{Processed: 20, Total: 25, Relevant: 20, FilterRate: 0}, snapshots[0])
		assert.Equal(t, 25, snapshots[1].Processed)
		assert.Equal(t, 23, snapshots[1].Relevant)
		// Related items survive but still count toward the filter rate.
		assert.InDelta(t, 20.0, snapshots[1].FilterRate, 0.01)
	})

	t.Run("records token usage per batch", func(t *testing.T) {
		tracker := &recordingTracker{}
		mock := NewMockClient(`["C","C","C","C","C"]`)
		c := New(mock, testConfig(), tracker, nil)

		_, err := c.Classify(context.Background(), testItems(5), "hypothesis", "job-1", nil)
		require.NoError(t, err)

		assert.Equal(t, 1, tracker.calls)
		assert.Equal(t, 100, tracker.input)
		assert.Equal(t, 20, tracker.output)
	})

	t.Run("numbers items in the prompt", func(t *testing.T) {
		mock := NewMockClient(`["C","C"]`)
		c := New(mock, testConfig(), nil, nil)

		_, err := c.Classify(context.Background(), testItems(2), "founders hate invoicing", "job-1", nil)
		require.NoError(t, err)

		prompts := mock.Prompts()
		require.Len(t, prompts, 1)
		assert.Contains(t, prompts[0], "founders hate invoicing")
		assert.Contains(t, prompts[0], "1. [smallbusiness]")
		assert.Contains(t, prompts[0], "2. [smallbusiness]")
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		mock := NewMockClient(`["C"]`)
		c := New(mock, testConfig(), nil, nil)

		result, err := c.Classify(context.Background(), nil, "hypothesis", "job-1", nil)
		require.NoError(t, err)
		assert.Empty(t, result.Decisions)
		assert.Zero(t, mock.Calls())
	})
}

func TestTruncate(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		assert.Equal(t, "hello", truncate("hello", 10))
	})

	t.Run("ascii cut at the limit", func(t *testing.T) {
		assert.Equal(t, "hell...", truncate("hello world", 4))
	})

	t.Run("never splits a multi-byte rune", func(t *testing.T) {
		// "é" is two bytes; a byte-offset cut at 5 would land inside it.
		got := truncate("café au lait", 5)
		assert.Equal(t, "café...", got)
		assert.True(t, utf8.ValidString(got))
	})

	t.Run("cut backs off to the rune start", func(t *testing.T) {
		// Cutting "日本語" at byte 4 falls inside the second rune.
		got := truncate("日本語", 4)
		assert.Equal(t, "日...", got)
		assert.True(t, utf8.ValidString(got))
	})
}
