package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"supportcore/internal/config"
)

// memStore is an in-memory Store fake for tests.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("not found: %s", key)
	}
	return v, nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// recordingHandler executes a function and records invocations/compensations.
type recordingHandler struct {
	mu           sync.Mutex
	execs        int
	failUntil    int
	compensated  bool
	compensateFn func()
	output       string
}

func (h *recordingHandler) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	h.mu.Lock()
	h.execs++
	n := h.execs
	h.mu.Unlock()
	if n <= h.failUntil {
		return nil, fmt.Errorf("transient failure on attempt %d", n)
	}
	return json.RawMessage(fmt.Sprintf("%q", h.output)), nil
}

func (h *recordingHandler) Compensate(ctx context.Context, params json.RawMessage, output json.RawMessage) error {
	h.mu.Lock()
	h.compensated = true
	h.mu.Unlock()
	if h.compensateFn != nil {
		h.compensateFn()
	}
	return nil
}

func alwaysFailHandler() *recordingHandler {
	return &recordingHandler{failUntil: 1 << 30}
}

func waitForTerminal(t *testing.T, eng *Engine, execID string, timeout time.Duration) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	res, err := eng.WaitFor(ctx, execID)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	return res
}

func TestLinearDAGSucceeds(t *testing.T) {
	registry := NewHandlerRegistry()
	a := &recordingHandler{output: "a-out"}
	b := &recordingHandler{output: "b-out"}
	registry.Register("step.a", a)
	registry.Register("step.b", b)

	eng := NewEngine(config.WorkflowConfig{Concurrency: 2}, newMemStore(), registry, nil, nil)
	def := Definition{
		ID: "linear",
		Steps: []StepDefinition{
			{ID: "a", Name: "step.a"},
			{ID: "b", Name: "step.b", DependsOn: []string{"a"}},
		},
	}

	execID, err := eng.ExecuteWorkflow(context.Background(), def, nil, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}

	res := waitForTerminal(t, eng, execID, 2*time.Second)
	if res.Status != ExecutionCompleted {
		t.Fatalf("expected completed, got %s (failed step %s: %s)", res.Status, res.FailedStep, res.Error)
	}
	if a.execs != 1 || b.execs != 1 {
		t.Fatalf("expected each step to run once, got a=%d b=%d", a.execs, b.execs)
	}
}

func TestParallelStepsRespectConcurrencyCap(t *testing.T) {
	registry := NewHandlerRegistry()
	var mu sync.Mutex
	concurrent := 0
	maxConcurrent := 0
	track := func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		concurrent--
		mu.Unlock()
		return json.RawMessage(`"ok"`), nil
	}
	for _, name := range []string{"p1", "p2", "p3", "p4"} {
		registry.Register(name, HandlerFunc(track))
	}

	eng := NewEngine(config.WorkflowConfig{Concurrency: 2}, newMemStore(), registry, nil, nil)
	def := Definition{
		ID: "parallel",
		Steps: []StepDefinition{
			{ID: "s1", Name: "p1"},
			{ID: "s2", Name: "p2"},
			{ID: "s3", Name: "p3"},
			{ID: "s4", Name: "p4"},
		},
	}

	execID, err := eng.ExecuteWorkflow(context.Background(), def, nil, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	res := waitForTerminal(t, eng, execID, 2*time.Second)
	if res.Status != ExecutionCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	if maxConcurrent > 2 {
		t.Fatalf("expected concurrency cap of 2, observed %d", maxConcurrent)
	}
}

func TestStepRetriesThenSucceeds(t *testing.T) {
	registry := NewHandlerRegistry()
	h := &recordingHandler{failUntil: 2, output: "done"}
	registry.Register("flaky", h)

	eng := NewEngine(config.WorkflowConfig{Concurrency: 1}, newMemStore(), registry, nil, nil)
	def := Definition{
		ID: "retry",
		Steps: []StepDefinition{
			{ID: "a", Name: "flaky", Retry: RetryPolicy{MaxAttempts: 3, Strategy: StrategyFixed, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}},
		},
	}

	execID, err := eng.ExecuteWorkflow(context.Background(), def, nil, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	res := waitForTerminal(t, eng, execID, 2*time.Second)
	if res.Status != ExecutionCompleted {
		t.Fatalf("expected completed after retries, got %s: %s", res.Status, res.Error)
	}
	if h.execs != 3 {
		t.Fatalf("expected 3 attempts (2 failures + 1 success), got %d", h.execs)
	}
}

func TestRetryExhaustedTriggersCompensation(t *testing.T) {
	registry := NewHandlerRegistry()
	good := &recordingHandler{output: "good"}
	bad := alwaysFailHandler()
	registry.Register("good", good)
	registry.Register("bad", bad)

	eng := NewEngine(config.WorkflowConfig{Concurrency: 2}, newMemStore(), registry, nil, nil)
	def := Definition{
		ID: "rollback",
		Steps: []StepDefinition{
			{ID: "a", Name: "good", Compensatable: true},
			{ID: "b", Name: "bad", DependsOn: []string{"a"}, Retry: RetryPolicy{MaxAttempts: 2, Strategy: StrategyFixed, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}},
		},
	}

	execID, err := eng.ExecuteWorkflow(context.Background(), def, nil, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	res := waitForTerminal(t, eng, execID, 2*time.Second)
	if res.Status != ExecutionRolledBack {
		t.Fatalf("expected rolled-back status, got %s", res.Status)
	}
	if res.FailedStep != "b" {
		t.Fatalf("expected step b to be the failed step, got %s", res.FailedStep)
	}
	good.mu.Lock()
	compensated := good.compensated
	good.mu.Unlock()
	if !compensated {
		t.Fatalf("expected step a to be compensated after step b's terminal failure")
	}
}

func TestDependencyGatingBlocksUntilDependenciesComplete(t *testing.T) {
	registry := NewHandlerRegistry()
	var mu sync.Mutex
	var order []string
	record := func(id string) Handler {
		return HandlerFunc(func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			return json.RawMessage(`"ok"`), nil
		})
	}
	registry.Register("first", record("first"))
	registry.Register("second", record("second"))
	registry.Register("third", record("third"))

	eng := NewEngine(config.WorkflowConfig{Concurrency: 4}, newMemStore(), registry, nil, nil)
	def := Definition{
		ID: "gated",
		Steps: []StepDefinition{
			{ID: "a", Name: "first"},
			{ID: "b", Name: "second", DependsOn: []string{"a"}},
			{ID: "c", Name: "third", DependsOn: []string{"b"}},
		},
	}

	execID, err := eng.ExecuteWorkflow(context.Background(), def, nil, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	res := waitForTerminal(t, eng, execID, 2*time.Second)
	if res.Status != ExecutionCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("expected strict dependency order first,second,third, got %v", order)
	}
}

func TestGetStatusReturnsRunningThenTerminal(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.Register("slow", HandlerFunc(func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		time.Sleep(50 * time.Millisecond)
		return json.RawMessage(`"ok"`), nil
	}))

	eng := NewEngine(config.WorkflowConfig{Concurrency: 1}, newMemStore(), registry, nil, nil)
	def := Definition{ID: "status", Steps: []StepDefinition{{ID: "a", Name: "slow"}}}

	execID, err := eng.ExecuteWorkflow(context.Background(), def, nil, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}

	exec, err := eng.GetStatus(context.Background(), execID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if exec.Status != ExecutionRunning {
		t.Fatalf("expected running status immediately after start, got %s", exec.Status)
	}

	res := waitForTerminal(t, eng, execID, 2*time.Second)
	if res.Status != ExecutionCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
}
