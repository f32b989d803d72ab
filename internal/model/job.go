package model

import "time"

// RunState names a stage of an ingestion run. Stages execute strictly in
// sequence; the transition table below is the only legal ordering.
type RunState string

// Run state constants, in execution order.
const (
	StateCreated            RunState = "created"
	StateKeywordExtraction  RunState = "keyword_extraction"
	StateCommunityDiscovery RunState = "community_discovery"
	StateFetching           RunState = "fetching"
	StatePreFiltering       RunState = "pre_filtering"
	StateClassifying        RunState = "classifying"
	StateAggregating        RunState = "aggregating"
	StateCompleted          RunState = "completed"
	StateFailed             RunState = "failed"
	StateCancelled          RunState = "cancelled"
)

// runTransitions is the allowed successor set for each run state. Failure
// and cancellation are reachable from every non-terminal state.
var runTransitions = map[RunState][]RunState{
	StateCreated:            {StateKeywordExtraction},
	StateKeywordExtraction:  {StateCommunityDiscovery},
	StateCommunityDiscovery: {StateFetching},
	StateFetching:           {StatePreFiltering},
	StatePreFiltering:       {StateClassifying},
	StateClassifying:        {StateAggregating},
	StateAggregating:        {StateCompleted},
}

// CanTransition reports whether moving from -> to is legal.
func CanTransition(from, to RunState) bool {
	if to == StateFailed || to == StateCancelled {
		return !from.Terminal()
	}
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the run.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// StepStatus is the persisted status of a job step in the external job
// store.
type StepStatus string

// Step status constants.
const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepLocked     StepStatus = "locked"
)

// stepTransitions is the allowed successor set for persisted step statuses.
var stepTransitions = map[StepStatus][]StepStatus{
	StepPending:    {StepInProgress, StepLocked, StepFailed},
	StepInProgress: {StepCompleted, StepFailed},
	StepLocked:     {StepPending, StepInProgress, StepFailed},
	StepFailed:     {StepPending, StepInProgress},
}

// CanStepTransition reports whether a persisted step may move from -> to.
// Writing the same status again is always allowed (idempotent updates).
func CanStepTransition(from, to StepStatus) bool {
	if from == to {
		return true
	}
	for _, next := range stepTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobStep is one persisted step-status record keyed by job id.
type JobStep struct {
	UpdatedAt time.Time
	JobID     string
	Step      string
	Status    StepStatus
	Detail    string // Optional failure reason or progress note
}
