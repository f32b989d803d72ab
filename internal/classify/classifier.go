package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/model"
	"github.com/torro-zz/pvre/internal/service"
)

const systemPrompt = "You are a relevance classifier for business pain research. " +
	"Respond ONLY with a JSON array of single-letter tier tokens, one per numbered item, in order."

// Config holds classifier tuning parameters.
type Config struct {
	BatchSize  int // Items per oracle call (default 20)
	MaxRetries int
	RetryDelay time.Duration
	MaxItemLen int // Item text truncation for the prompt (default 500)
}

// Progress is an incremental snapshot emitted after each batch.
type Progress struct {
	Processed  int
	Total      int
	Relevant   int
	FilterRate float64 // Percentage of processed items outside the core tier so far
}

// ProgressFunc receives incremental progress. It is called synchronously
// between batches and must not block for long.
type ProgressFunc func(Progress)

// Result is the outcome of classifying a full item set.
type Result struct {
	Decisions     []model.ClassificationDecision
	ParseFailures int // Batches whose oracle output could not be decoded
}

// Classifier batches items through the oracle.
type Classifier struct {
	client    Client
	usage     service.UsageTracker
	logger    *slog.Logger
	retryOpts common.RetryOptions
	cfg       Config
}

// New creates a classifier. A nil usage tracker disables token accounting.
func New(client Client, cfg Config, usage service.UsageTracker, logger *slog.Logger) *Classifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxItemLen <= 0 {
		cfg.MaxItemLen = 500
	}
	if usage == nil {
		usage = service.NopUsageTracker{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Classifier{
		client: client,
		cfg:    cfg,
		usage:  usage,
		logger: logger,
		retryOpts: common.RetryOptions{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: cfg.RetryDelay,
		},
	}
}

// Classify runs every item through the oracle in fixed-size batches and
// returns exactly one decision per input item. Oracle anomalies never drop
// items: unparseable batches fall back to conservative inclusion. An error
// is returned only when the oracle failed for every single batch.
func (c *Classifier) Classify(ctx context.Context, items []model.RawItem, hypothesis, jobID string, progress ProgressFunc) (Result, error) {
	result := Result{Decisions: make([]model.ClassificationDecision, 0, len(items))}
	if len(items) == 0 {
		return result, nil
	}

	totalBatches := 0
	erroredBatches := 0
	relevant := 0
	filtered := 0

	for start := 0; start < len(items); start += c.cfg.BatchSize {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		end := start + c.cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		totalBatches++

		decisions, parsed, err := c.classifyBatch(ctx, batch, hypothesis, jobID)
		switch {
		case err != nil:
			erroredBatches++
			result.ParseFailures++
			decisions = fallbackDecisions(batch, "oracle unreachable; included conservatively")
			c.logger.Warn("oracle call failed for batch, falling back to inclusion",
				"batch_start", start,
				"batch_size", len(batch),
				"error", err)
		case !parsed:
			result.ParseFailures++
			c.logger.Warn("oracle output unparseable for batch, falling back to inclusion",
				"batch_start", start,
				"batch_size", len(batch))
		}

		for _, d := range decisions {
			if d.Tier.Relevant() {
				relevant++
			}
			if d.Tier != model.TierCore {
				filtered++
			}
		}
		result.Decisions = append(result.Decisions, decisions...)

		if progress != nil {
			processed := len(result.Decisions)
			rate := 0.0
			if processed > 0 {
				rate = float64(filtered) / float64(processed) * 100
			}
			progress(Progress{
				Processed:  processed,
				Total:      len(items),
				Relevant:   relevant,
				FilterRate: rate,
			})
		}
	}

	if erroredBatches == totalBatches {
		return result, fmt.Errorf("%w: all %d batches failed", common.ErrOracleUnavailable, totalBatches)
	}

	return result, nil
}

// classifyBatch sends one batch to the oracle. parsed is false when the
// returned decisions came from the fallback policy rather than the oracle.
func (c *Classifier) classifyBatch(ctx context.Context, batch []model.RawItem, hypothesis, jobID string) (decisions []model.ClassificationDecision, parsed bool, err error) {
	prompt := c.buildPrompt(batch, hypothesis)

	var resp Response
	err = common.WithRetry(ctx, func() error {
		var callErr error
		resp, callErr = c.client.Complete(ctx, systemPrompt, prompt)
		if callErr != nil {
			return &common.RetryableError{Err: callErr, Retryable: true}
		}
		return nil
	}, c.retryOpts)
	if err != nil {
		return nil, false, err
	}

	c.usage.RecordUsage(ctx, jobID, resp.InputTokens, resp.OutputTokens)

	tokens, ok := parseTierTokens(resp.Text)
	if !ok {
		return fallbackDecisions(batch, "oracle output unparseable; included conservatively"), false, nil
	}

	decisions = make([]model.ClassificationDecision, len(batch))
	mismatch := false
	for i, item := range batch {
		if i < len(tokens) {
			decisions[i] = model.ClassificationDecision{ItemID: item.ID, Tier: tokens[i]}
			continue
		}
		// Length mismatch: the undecodable tail is included, never dropped.
		mismatch = true
		decisions[i] = model.ClassificationDecision{
			ItemID:    item.ID,
			Tier:      model.TierCore,
			Rationale: "oracle returned too few tokens; included conservatively",
		}
	}
	if len(tokens) > len(batch) {
		mismatch = true
	}

	return decisions, !mismatch, nil
}

// fallbackDecisions is the conservative-inclusion policy: every item in an
// undecodable batch is marked CORE. False positives are recoverable
// downstream; a silently dropped item is not.
func fallbackDecisions(batch []model.RawItem, rationale string) []model.ClassificationDecision {
	decisions := make([]model.ClassificationDecision, len(batch))
	for i, item := range batch {
		decisions[i] = model.ClassificationDecision{
			ItemID:    item.ID,
			Tier:      model.TierCore,
			Rationale: rationale,
		}
	}
	return decisions
}

// buildPrompt numbers the batch items and frames them against the
// hypothesis context.
func (c *Classifier) buildPrompt(batch []model.RawItem, hypothesis string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Classify each numbered item by relevance to this business hypothesis:

%s

Tiers:
- C: directly expresses the hypothesized pain or need
- R: related problem space, weaker or indirect evidence
- X: irrelevant, spam, memes, job posts, or off-topic

Items:
`, hypothesis)

	for i, item := range batch {
		text := truncate(item.Text(), c.cfg.MaxItemLen)
		text = strings.ReplaceAll(text, "\n", " ")
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, item.Community, text)
	}

	fmt.Fprintf(&b, "\nRespond with a JSON array of exactly %d tokens, e.g. [\"C\",\"X\",\"R\"].", len(batch))

	return b.String()
}

// truncate shortens text to at most max bytes without splitting a rune.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
