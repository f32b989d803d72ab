package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/torro-zz/pvre/internal/common"
	"github.com/torro-zz/pvre/internal/model"
)

// SetStepStatus atomically writes the status of one job step. The write is
// validated against the step transition table inside a transaction, so
// concurrent writers cannot race a step into an illegal state.
func (s *SQLiteStore) SetStepStatus(ctx context.Context, jobID, step string, status model.StepStatus, detail string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return err
	}
	if err := validateString(step, "step"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM job_steps WHERE job_id = ? AND step = ?`,
		jobID, step).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First write for this step; any status is acceptable.
	case err != nil:
		return fmt.Errorf("failed to read current step status: %w", err)
	default:
		if !model.CanStepTransition(model.StepStatus(current), status) {
			return fmt.Errorf("%w: step %s cannot move %s -> %s",
				common.ErrInvalidTransition, step, current, status)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_steps (job_id, step, status, detail, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(job_id, step) DO UPDATE SET
		   status = excluded.status,
		   detail = excluded.detail,
		   updated_at = excluded.updated_at`,
		jobID, step, string(status), detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write step status: %w", err)
	}

	return tx.Commit()
}

// GetStepStatus reads the status record for one job step.
func (s *SQLiteStore) GetStepStatus(ctx context.Context, jobID, step string) (*model.JobStep, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return nil, err
	}
	if err := validateString(step, "step"); err != nil {
		return nil, err
	}

	var js model.JobStep
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, step, status, COALESCE(detail, ''), updated_at
		 FROM job_steps WHERE job_id = ? AND step = ?`,
		jobID, step).Scan(&js.JobID, &js.Step, &status, &js.Detail, &js.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: step %s for job %s", common.ErrNotFound, step, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read step status: %w", err)
	}

	js.Status = model.StepStatus(status)
	return &js, nil
}

// ListSteps returns every step record for a job, most recently updated
// first.
func (s *SQLiteStore) ListSteps(ctx context.Context, jobID string) ([]model.JobStep, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, step, status, COALESCE(detail, ''), updated_at
		 FROM job_steps WHERE job_id = ? ORDER BY updated_at DESC, step`,
		jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []model.JobStep
	for rows.Next() {
		var js model.JobStep
		var status string
		if err := rows.Scan(&js.JobID, &js.Step, &status, &js.Detail, &js.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job step: %w", err)
		}
		js.Status = model.StepStatus(status)
		steps = append(steps, js)
	}
	return steps, rows.Err()
}
