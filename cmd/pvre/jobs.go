package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/torro-zz/pvre/internal/cli"
	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/config"
	"github.com/torro-zz/pvre/internal/model"
	"github.com/torro-zz/pvre/internal/storage"
)

func jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs [job-id]",
		Short: "Show persisted step status and result for a job",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobs,
	}
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jobID := args[0]
	settings := config.FromViper()

	store, err := storage.NewSQLiteStore(settings.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	steps, err := store.ListSteps(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to list job steps: %w", err)
	}
	if len(steps) == 0 {
		fmt.Println(cli.FormatWarning("No steps recorded for job " + jobID))
		return nil
	}

	fmt.Println(cli.FormatTitle("Job " + jobID))
	fmt.Println(cli.TableHeaderStyle.Render(fmt.Sprintf("%-22s %-12s %-20s %s", "STEP", "STATUS", "UPDATED", "DETAIL")))
	for _, step := range steps {
		line := fmt.Sprintf("%-22s %-12s %-20s %s",
			step.Step, step.Status, step.UpdatedAt.Format("2006-01-02 15:04:05"), step.Detail)
		fmt.Println(styleStep(step.Status, line))
	}

	result, err := store.GetRunResult(ctx, jobID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		// Run never finished; steps alone tell the story.
	case err != nil:
		return fmt.Errorf("failed to read run result: %w", err)
	default:
		fmt.Println()
		fmt.Println(cli.RenderRunSummary(result))
	}

	return nil
}

func styleStep(status model.StepStatus, line string) string {
	switch status {
	case model.StepCompleted:
		return cli.SuccessStyle.Render(line)
	case model.StepFailed:
		return cli.ErrorStyle.Render(line)
	case model.StepInProgress:
		return cli.InfoStyle.Render(line)
	default:
		return cli.SubtleStyle.Render(line)
	}
}
