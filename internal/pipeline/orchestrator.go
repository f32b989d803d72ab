// Package pipeline sequences one ingestion run per job: keyword extraction,
// community discovery, fetching, pre-filtering, classification and
// aggregation, with an ordered progress event stream and a persisted
// step-status record per stage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/torro-zz/pvre/internal/aggregate"
	"github.com/torro-zz/pvre/internal/archive"
	"github.com/torro-zz/pvre/internal/classify"
	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/model"
	"github.com/torro-zz/pvre/internal/prefilter"
	"github.com/torro-zz/pvre/internal/service"
)

// Config holds orchestration tuning parameters.
type Config struct {
	MaxKeywords        int     // Keywords extracted from the hypothesis (default 5)
	MaxCommunities     int     // Communities searched per run (default 8)
	SubredditLimit     int     // Discovery results requested per keyword (default 10)
	TargetPerCommunity int     // Items fetched per community per kind (default 100)
	ReviewPages        int     // App-store review pages per app id (default 2)
	SeedWeight         float64 // Score multiplier for configured seed communities (default 1.2)
	Aggregate          aggregate.Config
}

// DefaultConfig returns the default orchestration parameters.
func DefaultConfig() Config {
	return Config{
		MaxKeywords:        5,
		MaxCommunities:     8,
		SubredditLimit:     10,
		TargetPerCommunity: 100,
		ReviewPages:        2,
		SeedWeight:         1.2,
		Aggregate:          aggregate.DefaultConfig(),
	}
}

// Request describes one ingestion run.
type Request struct {
	JobID           string
	Hypothesis      string
	ExcludeKeywords []string
	SeedCommunities []string
	AppIDs          []string // Optional app-store apps whose reviews join the run
}

// Deps are the orchestrator's collaborators. Archive, Oracle, Classifier and
// Jobs are required; Reviews, Gate and Logger are optional.
type Deps struct {
	Archive    Archive
	Oracle     classify.Client
	Classifier Relevance
	Reviews    ReviewSource
	Jobs       service.JobStore
	Gate       service.Entitlement
	Logger     *slog.Logger
}

// Orchestrator runs the ingestion pipeline for one job at a time. It assumes
// single-shot execution per invocation; retrying a failed job is the
// caller's decision.
type Orchestrator struct {
	archive  Archive
	oracle   classify.Client
	classify Relevance
	reviews  ReviewSource
	jobs     service.JobStore
	gate     service.Entitlement
	logger   *slog.Logger
	cfg      Config
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Archive == nil {
		return nil, fmt.Errorf("%w: archive client", common.ErrMissingConfig)
	}
	if deps.Oracle == nil {
		return nil, fmt.Errorf("%w: oracle client", common.ErrMissingConfig)
	}
	if deps.Classifier == nil {
		return nil, fmt.Errorf("%w: classifier", common.ErrMissingConfig)
	}
	if deps.Jobs == nil {
		return nil, fmt.Errorf("%w: job store", common.ErrMissingConfig)
	}
	if deps.Gate == nil {
		deps.Gate = service.AllowAll{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	def := DefaultConfig()
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = def.MaxKeywords
	}
	if cfg.MaxCommunities <= 0 {
		cfg.MaxCommunities = def.MaxCommunities
	}
	if cfg.SubredditLimit <= 0 {
		cfg.SubredditLimit = def.SubredditLimit
	}
	if cfg.TargetPerCommunity <= 0 {
		cfg.TargetPerCommunity = def.TargetPerCommunity
	}
	if cfg.ReviewPages <= 0 {
		cfg.ReviewPages = def.ReviewPages
	}
	if cfg.SeedWeight <= 0 {
		cfg.SeedWeight = def.SeedWeight
	}

	return &Orchestrator{
		archive:  deps.Archive,
		oracle:   deps.Oracle,
		classify: deps.Classifier,
		reviews:  deps.Reviews,
		jobs:     deps.Jobs,
		gate:     deps.Gate,
		logger:   deps.Logger,
		cfg:      cfg,
	}, nil
}

// runData carries intermediate state between stages of one run.
type runData struct {
	keywords    []string
	communities []string
	weights     map[string]float64
	fetched     []model.RawItem
	survivors   []model.RawItem
	classified  classify.Result
	preSkipped  int
}

// Run executes one ingestion run end to end. Progress events are delivered
// in order on the optional events channel. On internal failure the run
// transitions to failed, the failing stage's job step is marked failed and
// the partial result is persisted. Context cancellation is reported as
// cancelled and performs no job-status mutation.
func (o *Orchestrator) Run(ctx context.Context, req Request, events chan<- Event) (*model.RunResult, error) {
	// Fail-fast validation before any resource is consumed.
	if strings.TrimSpace(req.JobID) == "" {
		return nil, common.ErrMissingJobID
	}
	if strings.TrimSpace(req.Hypothesis) == "" {
		return nil, common.ErrMissingHypothesis
	}
	if err := o.gate.CanRun(ctx, req.JobID); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrNotEntitled, err)
	}

	run := &model.RunResult{
		JobID:      req.JobID,
		Hypothesis: req.Hypothesis,
		State:      model.StateCreated,
	}
	data := &runData{}

	err := o.runStages(ctx, run, req, data, events)
	if err != nil {
		if ctx.Err() != nil {
			o.logger.Info("Run cancelled", "job_id", req.JobID, "stage", run.State)
			run.State = model.StateCancelled
			run.FailedStage = ""
			return run, fmt.Errorf("run cancelled: %w", ctx.Err())
		}
		o.fail(ctx, run, err)
		o.emit(ctx, events, model.StateFailed,
			fmt.Sprintf("run failed during %s: %v", run.FailedStage, err), nil)
		return run, err
	}

	run.CompletedAt = time.Now().UTC()
	if err := o.advance(run, model.StateCompleted); err != nil {
		return run, err
	}
	if err := o.jobs.SaveRunResult(ctx, run); err != nil {
		o.logger.Error("Failed to persist run result", "job_id", req.JobID, "error", err)
	}
	o.emit(ctx, events, model.StateCompleted,
		fmt.Sprintf("run completed: %d signals", run.Summary.TotalSignals),
		map[string]any{
			"signals":    run.Summary.TotalSignals,
			"quality":    string(run.Summary.Quality),
			"confidence": string(run.Summary.Confidence),
		})

	return run, nil
}

// runStages walks the stage sequence, leaving run.FailedStage set to the
// stage that was active when an error occurred.
func (o *Orchestrator) runStages(ctx context.Context, run *model.RunResult, req Request, data *runData, events chan<- Event) error {
	stages := []struct {
		state model.RunState
		msg   string
		fn    func(context.Context) error
	}{
		{model.StateKeywordExtraction, "extracting search keywords", func(ctx context.Context) error {
			data.keywords = o.extractKeywords(ctx, req.Hypothesis)
			return ctx.Err()
		}},
		{model.StateCommunityDiscovery, "discovering communities", func(ctx context.Context) error {
			data.communities, data.weights = o.discoverCommunities(ctx, data.keywords, req.SeedCommunities)
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(data.communities) == 0 && len(req.AppIDs) == 0 {
				return common.ErrNoCommunities
			}
			return nil
		}},
		{model.StateFetching, "fetching raw items", func(ctx context.Context) error {
			return o.fetchAll(ctx, req, data, events)
		}},
		{model.StatePreFiltering, "pre-filtering by keyword", func(ctx context.Context) error {
			data.survivors = prefilter.ExcludeByKeywords(data.fetched, req.ExcludeKeywords)
			data.preSkipped = len(data.fetched) - len(data.survivors)
			return ctx.Err()
		}},
		{model.StateClassifying, "classifying relevance", func(ctx context.Context) error {
			result, err := o.classify.Classify(ctx, data.survivors, req.Hypothesis, req.JobID,
				func(p classify.Progress) {
					o.emit(ctx, events, model.StateClassifying,
						fmt.Sprintf("classified %d/%d items", p.Processed, p.Total),
						map[string]any{
							"processed":   p.Processed,
							"total":       p.Total,
							"relevant":    p.Relevant,
							"filter_rate": p.FilterRate,
						})
				})
			if err != nil {
				return err
			}
			data.classified = result
			return nil
		}},
		{model.StateAggregating, "aggregating pain signals", func(ctx context.Context) error {
			o.aggregateRun(run, data)
			return ctx.Err()
		}},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			run.FailedStage = run.State
			return err
		}
		if err := o.advance(run, stage.state); err != nil {
			return err
		}
		o.emit(ctx, events, stage.state, stage.msg, nil)
		o.setStep(ctx, req.JobID, stage.state, model.StepInProgress, "")

		if err := stage.fn(ctx); err != nil {
			run.FailedStage = stage.state
			return err
		}

		o.setStep(ctx, req.JobID, stage.state, model.StepCompleted, "")
		o.emit(ctx, events, stage.state, stage.msg+" done", stageSummary(stage.state, data))
	}
	return nil
}

// fetchAll gathers posts and comments for every discovered community, plus
// app-store reviews when configured. Individual source failures are absorbed
// as long as anything was fetched; the stage fails only when every source
// failed.
func (o *Orchestrator) fetchAll(ctx context.Context, req Request, data *runData, events chan<- Event) error {
	query := strings.Join(data.keywords, " ")
	var lastErr error

	for _, community := range data.communities {
		params := archive.SearchParams{
			Community: community,
			Query:     query,
			Limit:     archive.LimitAuto,
		}

		posts, err := o.archive.SearchPostsPaginated(ctx, params, o.cfg.TargetPerCommunity)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			lastErr = err
			o.logger.Warn("Post fetch failed", "community", community, "error", err)
		}
		data.fetched = append(data.fetched, usable(posts)...)

		comments, err := o.archive.SearchCommentsPaginated(ctx, params, o.cfg.TargetPerCommunity)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			lastErr = err
			o.logger.Warn("Comment fetch failed", "community", community, "error", err)
		}
		data.fetched = append(data.fetched, usable(comments)...)

		o.emit(ctx, events, model.StateFetching,
			fmt.Sprintf("fetched r/%s", community),
			map[string]any{"items": len(data.fetched)})
	}

	if o.reviews != nil {
		for _, appID := range req.AppIDs {
			reviews, err := o.reviews.FetchReviews(ctx, appID, o.cfg.ReviewPages)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				lastErr = err
				o.logger.Warn("Review fetch failed", "app_id", appID, "error", err)
				continue
			}
			data.fetched = append(data.fetched, usable(reviews)...)
		}
	}

	if len(data.fetched) == 0 && lastErr != nil {
		return fmt.Errorf("all sources failed: %w", lastErr)
	}
	return nil
}

// aggregateRun joins decisions back to their items, computes per-source
// classification filter rates and fills the run's final result fields.
// Filtered means anything outside the core tier, the same definition
// FilterMetrics uses, so the quality grade and the persisted rate agree.
func (o *Orchestrator) aggregateRun(run *model.RunResult, data *runData) {
	decisions := make(map[string]model.ClassificationDecision, len(data.classified.Decisions))
	for _, d := range data.classified.Decisions {
		decisions[d.ItemID] = d
	}

	inputs := make([]aggregate.Input, 0, len(data.survivors))
	var postTotal, postFiltered, commentTotal, commentFiltered int
	for _, item := range data.survivors {
		d, ok := decisions[item.ID]
		if !ok {
			continue
		}
		if item.Kind == model.KindComment {
			commentTotal++
			if d.Tier != model.TierCore {
				commentFiltered++
			}
		} else {
			postTotal++
			if d.Tier != model.TierCore {
				postFiltered++
			}
		}
		inputs = append(inputs, aggregate.Input{Item: item, Decision: d})
	}

	postRate := filterRate(postFiltered, postTotal)
	commentRate := filterRate(commentFiltered, commentTotal)
	// When only one kind was fetched, the other's rate would read as a
	// perfect zero and skew the quality average. Mirror the present rate.
	if postTotal == 0 {
		postRate = commentRate
	}
	if commentTotal == 0 {
		commentRate = postRate
	}

	agg := aggregate.New(o.cfg.Aggregate, data.weights)
	signals, summary, metrics := agg.Aggregate(inputs, postRate, commentRate)
	metrics.PreFilterSkipped = data.preSkipped
	metrics.ParseFailures = data.classified.ParseFailures

	run.Signals = signals
	run.Summary = summary
	run.Metrics = metrics
}

// fail transitions the run to failed, records the failing stage and performs
// the compensating job-status write so the job never sits in_progress
// forever. Compensation uses a detached context so it still lands when the
// parent is already torn down.
func (o *Orchestrator) fail(ctx context.Context, run *model.RunResult, cause error) {
	if run.FailedStage == "" {
		run.FailedStage = run.State
	}
	run.State = model.StateFailed
	run.CompletedAt = time.Now().UTC()

	detached := context.WithoutCancel(ctx)
	o.setStep(detached, run.JobID, run.FailedStage, model.StepFailed, cause.Error())
	if err := o.jobs.SaveRunResult(detached, run); err != nil {
		o.logger.Error("Failed to persist failed run result", "job_id", run.JobID, "error", err)
	}

	o.logger.Error("Run failed",
		"job_id", run.JobID,
		"stage", run.FailedStage,
		"error", cause)
}

// advance moves the run to the next state, rejecting transitions not in the
// table.
func (o *Orchestrator) advance(run *model.RunResult, to model.RunState) error {
	if !model.CanTransition(run.State, to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, run.State, to)
	}
	run.State = to
	return nil
}

// setStep writes a job step status. Store write failures are logged, not
// propagated; job bookkeeping must never abort a healthy run.
func (o *Orchestrator) setStep(ctx context.Context, jobID string, state model.RunState, status model.StepStatus, detail string) {
	if err := o.jobs.SetStepStatus(ctx, jobID, string(state), status, detail); err != nil {
		o.logger.Warn("Failed to write job step status",
			"job_id", jobID,
			"step", string(state),
			"status", string(status),
			"error", err)
	}
}

// stageSummary builds the completion-event payload for a stage.
func stageSummary(state model.RunState, data *runData) map[string]any {
	switch state {
	case model.StateKeywordExtraction:
		return map[string]any{"keywords": data.keywords}
	case model.StateCommunityDiscovery:
		return map[string]any{"communities": data.communities}
	case model.StateFetching:
		return map[string]any{"items": len(data.fetched)}
	case model.StatePreFiltering:
		return map[string]any{"kept": len(data.survivors), "excluded": data.preSkipped}
	case model.StateClassifying:
		return map[string]any{
			"decisions":      len(data.classified.Decisions),
			"parse_failures": data.classified.ParseFailures,
		}
	default:
		return nil
	}
}

// usable drops items that carry no text, e.g. removed or deleted bodies.
func usable(items []model.RawItem) []model.RawItem {
	kept := make([]model.RawItem, 0, len(items))
	for _, item := range items {
		if item.IsEmpty() {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// filterRate returns the rejected percentage, 0 when nothing was classified.
func filterRate(rejected, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(rejected) / float64(total) * 100
}
