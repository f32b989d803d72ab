package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/model"
)

// SaveRunResult persists the outcome of a run. Saving twice for the same
// job replaces the previous record.
func (s *SQLiteStore) SaveRunResult(ctx context.Context, result *model.RunResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if result == nil {
		return ErrNilResult
	}
	if err := validateString(result.JobID, "result.JobID"); err != nil {
		return err
	}

	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	summaryJSON, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	signalsJSON, err := json.Marshal(result.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_results
		   (job_id, hypothesis, state, failed_stage, metrics_json, summary_json, signals_json, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
		   hypothesis = excluded.hypothesis,
		   state = excluded.state,
		   failed_stage = excluded.failed_stage,
		   metrics_json = excluded.metrics_json,
		   summary_json = excluded.summary_json,
		   signals_json = excluded.signals_json,
		   completed_at = excluded.completed_at`,
		result.JobID, result.Hypothesis, string(result.State), string(result.FailedStage),
		string(metricsJSON), string(summaryJSON), string(signalsJSON), result.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save run result: %w", err)
	}
	return nil
}

// GetRunResult loads a persisted run outcome by job id.
func (s *SQLiteStore) GetRunResult(ctx context.Context, jobID string) (*model.RunResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return nil, err
	}

	var (
		result                                model.RunResult
		state, failedStage                    string
		metricsJSON, summaryJSON, signalsJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, hypothesis, state, COALESCE(failed_stage, ''),
		        metrics_json, summary_json, signals_json, completed_at
		 FROM run_results WHERE job_id = ?`,
		jobID).Scan(&result.JobID, &result.Hypothesis, &state, &failedStage,
		&metricsJSON, &summaryJSON, &signalsJSON, &result.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run result for job %s", common.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run result: %w", err)
	}

	result.State = model.RunState(state)
	result.FailedStage = model.RunState(failedStage)

	if err := json.Unmarshal([]byte(metricsJSON), &result.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &result.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	if err := json.Unmarshal([]byte(signalsJSON), &result.Signals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signals: %w", err)
	}

	return &result, nil
}
