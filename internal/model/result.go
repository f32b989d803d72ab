package model

import "time"

// RunResult is the persisted outcome of one ingestion run.
type RunResult struct {
	CompletedAt time.Time
	JobID       string
	Hypothesis  string
	State       RunState
	FailedStage RunState // Set only when State is failed
	Summary     PainSummary
	Metrics     FilterMetrics
	Signals     []PainSignal
}
