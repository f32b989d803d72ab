package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/torro-zz/pvre/internal/appstore"
	"github.com/torro-zz/pvre/internal/archive"
	"github.com/torro-zz/pvre/internal/classify"
	"github.com/torro-zz/pvre/internal/cli"
	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/config"
	"github.com/torro-zz/pvre/internal/model"
	"github.com/torro-zz/pvre/internal/pipeline"
	"github.com/torro-zz/pvre/internal/ratelimit"
	"github.com/torro-zz/pvre/internal/storage"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [hypothesis]",
		Short: "Execute one ingestion run for a pain hypothesis",
		Long: `Run the full ingestion pipeline for a hypothesis: extract keywords,
discover communities, fetch posts and comments, filter, classify and
aggregate the evidence into scored pain signals.

Examples:
  pvre run "freelancers hate chasing unpaid invoices"
  pvre run --seed r/freelance --exclude hiring "invoice chasing is painful"
  pvre run --app-id 1234567 "expense tracking apps lose receipts"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRun,
	}

	cmd.Flags().String("job-id", "", "Job identifier (default: random)")
	cmd.Flags().StringSlice("seed", nil, "Seed communities searched in addition to discovery")
	cmd.Flags().StringSlice("exclude", nil, "Keywords that exclude an item before classification")
	cmd.Flags().StringSlice("app-id", nil, "App-store app ids whose reviews join the run")

	_ = viper.BindPFlag("run.job_id", cmd.Flags().Lookup("job-id"))
	_ = viper.BindPFlag("run.seed_communities", cmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("run.exclude_keywords", cmd.Flags().Lookup("exclude"))
	_ = viper.BindPFlag("run.app_ids", cmd.Flags().Lookup("app-id"))

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	settings := config.FromViper()
	hypothesis := strings.TrimSpace(strings.Join(args, " "))

	jobID := viper.GetString("run.job_id")
	if jobID == "" {
		jobID = uuid.NewString()
	}

	if settings.OracleAPIKey == "" {
		return fmt.Errorf("%w: oracle.api_key (or PVRE_ORACLE_API_KEY)", common.ErrMissingConfig)
	}

	// Storage
	store, err := storage.NewSQLiteStore(settings.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// One limiter instance is the process-wide throughput budget.
	limiter := ratelimit.New(ratelimit.DefaultConfig(), nil)
	defer limiter.Close()

	archiveClient, err := archive.NewClient(archive.Config{BaseURL: settings.ArchiveBaseURL}, limiter, nil)
	if err != nil {
		return fmt.Errorf("failed to create archive client: %w", err)
	}
	defer archiveClient.Close()

	oracle, err := classify.NewOracleClient(classify.OracleConfig{
		APIKey:  settings.OracleAPIKey,
		BaseURL: settings.OracleBaseURL,
		Model:   settings.OracleModel,
	})
	if err != nil {
		return fmt.Errorf("failed to create oracle client: %w", err)
	}
	classifier := classify.New(oracle, classify.Config{}, nil, nil)

	reviews, err := appstore.NewClient(appstore.Config{}, limiter, nil)
	if err != nil {
		return fmt.Errorf("failed to create app-store client: %w", err)
	}

	orch, err := pipeline.New(pipeline.Deps{
		Archive:    archiveClient,
		Oracle:     oracle,
		Classifier: classifier,
		Reviews:    reviews,
		Jobs:       store,
	}, pipeline.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	slog.Info("Starting ingestion run", "job_id", jobID, "hypothesis", hypothesis)

	events := make(chan pipeline.Event, 64)
	done := make(chan struct{})
	go renderEvents(events, done)

	result, runErr := orch.Run(ctx, pipeline.Request{
		JobID:           jobID,
		Hypothesis:      hypothesis,
		ExcludeKeywords: settings.ExcludeKeywords,
		SeedCommunities: settings.SeedCommunities,
		AppIDs:          settings.AppIDs,
	}, events)
	close(events)
	<-done

	if result != nil {
		fmt.Println(cli.RenderRunSummary(result))
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Println(cli.FormatWarning("Run cancelled"))
			return nil
		}
		return fmt.Errorf("run failed: %w", runErr)
	}

	fmt.Println(cli.FormatSuccess("Run complete. Inspect steps with: pvre jobs " + jobID))
	return nil
}

// renderEvents consumes the ordered progress stream: a progress bar for the
// classification stage, styled one-liners for everything else.
func renderEvents(events <-chan pipeline.Event, done chan<- struct{}) {
	defer close(done)

	var bar *progressbar.ProgressBar
	for event := range events {
		if event.Step == model.StateClassifying && event.Data != nil {
			processed, pok := event.Data["processed"].(int)
			total, tok := event.Data["total"].(int)
			if pok && tok && total > 0 {
				if bar == nil {
					bar = classificationBar(total)
				}
				_ = bar.Set(processed)
				continue
			}
		}
		fmt.Println(cli.FormatInfo(event.Message))
	}
	if bar != nil {
		_ = bar.Finish()
	}
}

func classificationBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Classifying items...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}
