package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"supportcore/internal/apperr"
	"supportcore/internal/config"
	"supportcore/internal/observability"
)

// Store persists execution state to the warm kv under key
// "workflow:<execution_id>" after every step transition. GetStatus falls
// back to that record for executions this process is not running; nothing
// reloads or resumes an execution after a restart.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func executionKey(id string) string { return "workflow:" + id }

// Engine runs executions against a Definition's step graph.
type Engine struct {
	store     Store
	handlers  *HandlerRegistry
	idempo    IdempotencyStore
	publisher EventPublisher
	cfg       config.WorkflowConfig

	mu   sync.Mutex
	runs map[string]*run
}

type run struct {
	mu   sync.Mutex
	exec *Execution
	done chan struct{}
}

// NewEngine builds an Engine. publisher may be nil to disable step-event
// publishing.
func NewEngine(cfg config.WorkflowConfig, store Store, handlers *HandlerRegistry, idempo IdempotencyStore, publisher EventPublisher) *Engine {
	return &Engine{
		store:     store,
		handlers:  handlers,
		idempo:    idempo,
		publisher: publisher,
		cfg:       cfg,
		runs:      make(map[string]*run),
	}
}

func (e *Engine) concurrency() int {
	if e.cfg.Concurrency <= 0 {
		return 4
	}
	return e.cfg.Concurrency
}

// ExecuteWorkflow starts an execution and returns immediately with its id;
// the step graph runs to completion on a background goroutine.
func (e *Engine) ExecuteWorkflow(ctx context.Context, def Definition, input map[string]any, execContext map[string]any) (string, error) {
	execID := uuid.NewString()
	exec := &Execution{
		ID:           execID,
		DefinitionID: def.ID,
		Context:      execContext,
		Input:        input,
		Steps:        make(map[string]*StepState, len(def.Steps)),
		Status:       ExecutionRunning,
		StartedAt:    time.Now(),
	}
	for _, sd := range def.Steps {
		sd := sd
		if sd.IdempotencyKey == "" {
			sd.IdempotencyKey = execID + ":" + sd.ID
		}
		exec.StepOrder = append(exec.StepOrder, sd.ID)
		exec.Steps[sd.ID] = &StepState{Definition: sd, Status: StepPending}
	}
	sort.Strings(exec.StepOrder)

	r := &run{exec: exec, done: make(chan struct{})}
	e.mu.Lock()
	e.runs[execID] = r
	e.mu.Unlock()

	if err := e.persist(ctx, exec); err != nil {
		return "", err
	}

	go e.runExecution(r)
	return execID, nil
}

// GetStatus returns a snapshot of the execution's current state, preferring
// the in-process run (authoritative for this process) and falling back to
// the warm-kv record for cross-process/resumed executions.
func (e *Engine) GetStatus(ctx context.Context, execID string) (Execution, error) {
	e.mu.Lock()
	r, ok := e.runs[execID]
	e.mu.Unlock()
	if ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		return cloneExecution(r.exec), nil
	}

	raw, err := e.store.Get(ctx, executionKey(execID))
	if err != nil {
		return Execution{}, apperr.New(apperr.NotFound, "execution not found")
	}
	var exec Execution
	if err := json.Unmarshal(raw, &exec); err != nil {
		return Execution{}, apperr.Wrap(apperr.StorageError, "decode execution", err)
	}
	return exec, nil
}

// WaitFor blocks until the execution reaches a terminal state or ctx expires.
func (e *Engine) WaitFor(ctx context.Context, execID string) (Result, error) {
	e.mu.Lock()
	r, ok := e.runs[execID]
	e.mu.Unlock()
	if !ok {
		exec, err := e.GetStatus(ctx, execID)
		if err != nil {
			return Result{}, err
		}
		return resultFrom(exec), nil
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return Result{}, apperr.New(apperr.Timeout, "waitFor deadline exceeded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return resultFrom(*r.exec), nil
}

func resultFrom(exec Execution) Result {
	outputs := make(map[string]json.RawMessage, len(exec.Steps))
	var failedStep, errMsg string
	for id, st := range exec.Steps {
		if st.Output != nil {
			outputs[id] = st.Output
		}
		if st.Status == StepFailed {
			failedStep, errMsg = id, st.Error
		}
	}
	return Result{ExecutionID: exec.ID, Status: exec.Status, Outputs: outputs, FailedStep: failedStep, Error: errMsg}
}

func cloneExecution(e *Execution) Execution {
	out := *e
	out.Steps = make(map[string]*StepState, len(e.Steps))
	for id, st := range e.Steps {
		cp := *st
		out.Steps[id] = &cp
	}
	return out
}

func (e *Engine) persist(ctx context.Context, exec *Execution) error {
	raw, err := json.Marshal(exec)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode execution", err)
	}
	if err := e.store.Set(ctx, executionKey(exec.ID), raw, 7*24*time.Hour); err != nil {
		return apperr.Wrap(apperr.StorageError, "persist execution", err)
	}
	return nil
}

// runExecution drives r's step graph to a terminal state: dependency-gated
// parallel dispatch up to the configured concurrency cap, then compensation
// in reverse completion order if any step fails terminally.
func (e *Engine) runExecution(r *run) {
	ctx := context.Background()
	defer close(r.done)

	sem := make(chan struct{}, e.concurrency())
	var wg sync.WaitGroup
	stepDone := make(chan struct{}, len(r.exec.Steps))
	dispatched := make(map[string]bool)

	// dispatchEligible starts every currently-eligible, not-yet-dispatched
	// step and returns how many it started. Only called from this
	// goroutine, so dispatched needs no lock of its own.
	dispatchEligible := func() int {
		r.mu.Lock()
		ids := eligibleSteps(r.exec, dispatched)
		r.mu.Unlock()
		for _, id := range ids {
			dispatched[id] = true
			wg.Add(1)
			sem <- struct{}{}
			go func(stepID string) {
				defer wg.Done()
				defer func() { <-sem }()
				e.runStep(ctx, r, stepID)
				stepDone <- struct{}{}
			}(id)
		}
		return len(ids)
	}

	// pending tracks dispatched-but-not-yet-signaled steps; draining by
	// count (rather than len(r.exec.Steps)) avoids deadlocking when a
	// terminal failure leaves some steps permanently ineligible and they
	// never dispatch at all.
	pending := dispatchEligible()
	for pending > 0 {
		<-stepDone
		pending--
		r.mu.Lock()
		terminallyFailed := r.exec.Status == ExecutionFailed
		r.mu.Unlock()
		if terminallyFailed {
			continue
		}
		pending += dispatchEligible()
	}
	wg.Wait()

	r.mu.Lock()
	failed := r.exec.Status == ExecutionFailed
	r.mu.Unlock()

	if failed {
		e.compensate(ctx, r)
		return
	}

	r.mu.Lock()
	r.exec.Status = ExecutionCompleted
	r.exec.EndedAt = time.Now()
	exec := cloneExecution(r.exec)
	r.mu.Unlock()
	if err := e.persist(ctx, &exec); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("execution", exec.ID).Msg("workflow_persist_completed_failed")
	}
}

// eligibleSteps returns pending, not-yet-dispatched step ids whose
// dependencies are all completed, ordered ascending by id as the tie-break
// rule. Caller holds exec's lock.
func eligibleSteps(exec *Execution, dispatched map[string]bool) []string {
	var eligible []string
	for _, id := range exec.StepOrder {
		st := exec.Steps[id]
		if st.Status != StepPending || dispatched[id] {
			continue
		}
		ready := true
		for _, dep := range st.Definition.DependsOn {
			if depState, ok := exec.Steps[dep]; !ok || depState.Status != StepCompleted {
				ready = false
				break
			}
		}
		if ready {
			eligible = append(eligible, id)
		}
	}
	sort.Strings(eligible)
	return eligible
}

// runStep executes one step with retry, updating exec state and persisting
// after each transition.
func (e *Engine) runStep(ctx context.Context, r *run, stepID string) {
	r.mu.Lock()
	st := r.exec.Steps[stepID]
	def := st.Definition
	r.mu.Unlock()

	policy := def.Retry.orDefaults()
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		r.mu.Lock()
		st.Status = StepRunning
		st.Attempt = attempt
		st.StartedAt = time.Now()
		exec := cloneExecution(r.exec)
		r.mu.Unlock()
		_ = e.persist(ctx, &exec)
		publishStepEvent(ctx, e.publisher, StepEvent{ExecutionID: r.exec.ID, StepID: stepID, Status: StepRunning, Attempt: attempt, Timestamp: time.Now()})

		output, err := e.invoke(ctx, r.exec.ID, def)
		if err == nil {
			r.mu.Lock()
			st.Status = StepCompleted
			st.Output = output
			st.CompletedAt = time.Now()
			exec := cloneExecution(r.exec)
			r.mu.Unlock()
			_ = e.persist(ctx, &exec)
			publishStepEvent(ctx, e.publisher, StepEvent{ExecutionID: r.exec.ID, StepID: stepID, Status: StepCompleted, Attempt: attempt, Timestamp: time.Now()})
			return
		}

		lastErr = err
		if !stepRetryable(err) || attempt == policy.MaxAttempts {
			break
		}
		delay := delayFor(policy, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = policy.MaxAttempts
		}
	}

	r.mu.Lock()
	st.Status = StepFailed
	st.Error = lastErr.Error()
	st.CompletedAt = time.Now()
	r.exec.Status = ExecutionFailed
	exec := cloneExecution(r.exec)
	r.mu.Unlock()
	_ = e.persist(ctx, &exec)
	observability.LoggerWithTrace(ctx).Error().Err(lastErr).Str("execution", r.exec.ID).Str("step", stepID).Msg("workflow_step_failed_terminal")
	publishStepEvent(ctx, e.publisher, StepEvent{ExecutionID: r.exec.ID, StepID: stepID, Status: StepFailed, Attempt: st.Attempt, Error: lastErr.Error(), Timestamp: time.Now()})
}

// stepRetryable reports whether a step's RetryPolicy budget should still be
// spent on a retry. Unlike apperr's pipeline-wide Retryable default, a step's
// explicit RetryPolicy is itself the caller's opt-in to retrying tool/timeout
// failures; only kinds where another attempt can never help - bad input,
// blocked content, an authorization failure - are hard stops regardless of
// remaining attempts.
func stepRetryable(err error) bool {
	appErr, ok := apperr.As(err)
	if !ok {
		return true
	}
	switch appErr.Kind {
	case apperr.Validation, apperr.Authorization, apperr.ContentBlocked:
		return false
	default:
		return true
	}
}

// invoke resolves def's handler and runs it with a timeout, checking the
// idempotency store first so a retried attempt can short-circuit a side
// effect that already completed.
func (e *Engine) invoke(ctx context.Context, execID string, def StepDefinition) (json.RawMessage, error) {
	if e.idempo != nil {
		if prev, err := e.idempo.Get(ctx, def.IdempotencyKey); err == nil && prev != "" {
			return json.RawMessage(prev), nil
		}
	}

	handler, err := e.handlers.Resolve(def.Name)
	if err != nil {
		return nil, apperr.Wrap(apperr.WorkflowFailed, "resolve step handler", err)
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := handler.Execute(stepCtx, def.Params)
	if err != nil {
		if stepCtx.Err() != nil {
			return nil, apperr.New(apperr.Timeout, fmt.Sprintf("step %s timed out", def.ID))
		}
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.ToolFailed, "step execution failed", err)
	}

	if e.idempo != nil {
		if setErr := e.idempo.Set(ctx, def.IdempotencyKey, string(output), idempotencyTTL); setErr != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(setErr).Str("step", def.ID).Msg("workflow_idempotency_set_failed")
		}
	}
	return output, nil
}

// compensate invokes completed steps' Compensate handles in reverse
// completion order; a compensation failure is logged and does not block the
// next one.
func (e *Engine) compensate(ctx context.Context, r *run) {
	r.mu.Lock()
	completed := make([]*StepState, 0, len(r.exec.Steps))
	for _, id := range r.exec.StepOrder {
		st := r.exec.Steps[id]
		if st.Status == StepCompleted && st.Definition.Compensatable {
			completed = append(completed, st)
		}
	}
	r.mu.Unlock()

	sort.Slice(completed, func(i, j int) bool { return completed[i].CompletedAt.After(completed[j].CompletedAt) })

	for _, st := range completed {
		handler, err := e.handlers.Resolve(st.Definition.Name)
		if err != nil {
			observability.LoggerWithTrace(ctx).Error().Err(err).Str("step", st.Definition.ID).Msg("workflow_compensation_handler_missing")
			continue
		}
		if cerr := handler.Compensate(ctx, st.Definition.Params, st.Output); cerr != nil {
			observability.LoggerWithTrace(ctx).Error().Err(cerr).Str("step", st.Definition.ID).Msg("workflow_compensation_failed")
		}
		r.mu.Lock()
		st.Status = StepCompensated
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.exec.Status = ExecutionRolledBack
	r.exec.EndedAt = time.Now()
	exec := cloneExecution(r.exec)
	r.mu.Unlock()
	if err := e.persist(ctx, &exec); err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("execution", exec.ID).Msg("workflow_persist_rolledback_failed")
	}
}
