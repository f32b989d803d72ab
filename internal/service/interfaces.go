// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/torro-zz/pvre/internal/model"
)

// JobStore is the external job-status collaborator. The pipeline only needs
// atomic "set status for step X" and "read status for step X"; schema is
// owned by the persistence layer.
type JobStore interface {
	SetStepStatus(ctx context.Context, jobID, step string, status model.StepStatus, detail string) error
	GetStepStatus(ctx context.Context, jobID, step string) (*model.JobStep, error)
	ListSteps(ctx context.Context, jobID string) ([]model.JobStep, error)

	SaveRunResult(ctx context.Context, result *model.RunResult) error
	GetRunResult(ctx context.Context, jobID string) (*model.RunResult, error)

	Close() error
}

// UsageTracker receives per-call oracle token accounting. Implementations
// live outside this core; NopUsageTracker is used when none is provided.
type UsageTracker interface {
	RecordUsage(ctx context.Context, jobID string, inputTokens, outputTokens int)
}

// NopUsageTracker discards usage records.
type NopUsageTracker struct{}

// RecordUsage implements UsageTracker.
func (NopUsageTracker) RecordUsage(context.Context, string, int, int) {}

// Entitlement gates a run before any resource is consumed.
type Entitlement interface {
	CanRun(ctx context.Context, jobID string) error
}

// AllowAll is the default entitlement policy.
type AllowAll struct{}

// CanRun implements Entitlement.
func (AllowAll) CanRun(context.Context, string) error { return nil }
