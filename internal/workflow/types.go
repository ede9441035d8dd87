// Package workflow executes a directed acyclic step graph: dependency-gated
// scheduling up to a concurrency cap, per-step retry with fixed/linear/
// exponential backoff, reverse-order compensation on terminal failure, and
// warm-kv persisted execution state that GetStatus can read back. Executions
// are not resumed after a restart.
package workflow

import (
	"encoding/json"
	"time"
)

// RetryStrategy selects how delay(attempt) grows between retries.
type RetryStrategy string

const (
	StrategyFixed       RetryStrategy = "fixed"
	StrategyLinear      RetryStrategy = "linear"
	StrategyExponential RetryStrategy = "exponential"
)

// RetryPolicy governs whether and how a failed step is retried.
type RetryPolicy struct {
	MaxAttempts int
	Strategy    RetryStrategy
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) orDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Strategy == "" {
		p.Strategy = StrategyFixed
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// StepDefinition is the data form of a workflow step: identity, the name of
// the handler that executes it, its dependency set, and its retry/timeout
// policy. Steps are data so a Definition can be built, stored, and replayed
// without referencing Go closures.
type StepDefinition struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	DependsOn      []string        `json:"depends_on,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Timeout        time.Duration   `json:"timeout"`
	Retry          RetryPolicy     `json:"retry"`
	Compensatable  bool            `json:"compensatable"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Definition is a named, reusable step graph.
type Definition struct {
	ID    string           `json:"id"`
	Steps []StepDefinition `json:"steps"`
}

// StepStatus is a step's position in the observable state machine.
type StepStatus string

const (
	StepPending     StepStatus = "pending"
	StepRunning     StepStatus = "running"
	StepCompleted   StepStatus = "completed"
	StepFailed      StepStatus = "failed"
	StepCompensated StepStatus = "compensated"
)

// StepState is a step's mutable runtime record within an Execution.
type StepState struct {
	Definition  StepDefinition  `json:"definition"`
	Status      StepStatus      `json:"status"`
	Attempt     int             `json:"attempt"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
}

// ExecutionStatus is an Execution's overall state.
type ExecutionStatus string

const (
	ExecutionRunning    ExecutionStatus = "running"
	ExecutionCompleted  ExecutionStatus = "completed"
	ExecutionFailed     ExecutionStatus = "failed"
	ExecutionRolledBack ExecutionStatus = "rolled-back"
)

// Execution is one run of a Definition: its context, the per-step state
// list, and overall status.
type Execution struct {
	ID           string                `json:"id"`
	DefinitionID string                `json:"definition_id"`
	Context      map[string]any        `json:"context,omitempty"`
	StepOrder    []string              `json:"step_order"`
	Steps        map[string]*StepState `json:"steps"`
	Status       ExecutionStatus       `json:"status"`
	StartedAt    time.Time             `json:"started_at"`
	EndedAt      time.Time             `json:"ended_at,omitempty"`
	Input        map[string]any        `json:"input,omitempty"`
}

// Result is the terminal outcome waitFor returns.
type Result struct {
	ExecutionID string                     `json:"execution_id"`
	Status      ExecutionStatus            `json:"status"`
	Outputs     map[string]json.RawMessage `json:"outputs"`
	FailedStep  string                     `json:"failed_step,omitempty"`
	Error       string                     `json:"error,omitempty"`
}
