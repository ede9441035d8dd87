package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	dto "github.com/prometheus/client_model/go"

	"supportcore/internal/observability"
)

// AlertStore persists AlertInstances under "alert:<rule_id>" so active and
// recently-resolved alerts survive a restart.
type AlertStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func alertKey(ruleID string) string { return "alert:" + ruleID }

const alertStateTTL = 30 * 24 * time.Hour

// sample is one observed value at a point in time, kept in a rule's ring
// buffer so the evaluator can compute an aggregation over its window.
type sample struct {
	at    time.Time
	value float64
}

// ruleState tracks one rule's recent samples and how long its condition has
// held continuously, so the evaluator only opens an alert once the
// condition has held for the rule's configured duration.
type ruleState struct {
	mu            sync.Mutex
	samples       []sample
	conditionSince time.Time
	active        bool
}

// Evaluator runs each enabled AlertRule on a schedule, computing the
// aggregation over its recent window and opening/closing AlertInstances in
// AlertStore as the threshold comparison starts/stops holding.
type Evaluator struct {
	metrics *Metrics
	store   AlertStore
	logger  *Logger

	mu     sync.Mutex
	rules  map[string]AlertRule
	states map[string]*ruleState

	cron *cron.Cron
}

// NewEvaluator builds an Evaluator. logger may be nil to disable alert
// logging.
func NewEvaluator(metrics *Metrics, store AlertStore, logger *Logger) *Evaluator {
	return &Evaluator{
		metrics: metrics,
		store:   store,
		logger:  logger,
		rules:   make(map[string]AlertRule),
		states:  make(map[string]*ruleState),
		cron:    cron.New(),
	}
}

// RegisterRule adds or replaces a rule.
func (e *Evaluator) RegisterRule(rule AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[rule.ID] = rule
	if _, ok := e.states[rule.ID]; !ok {
		e.states[rule.ID] = &ruleState{}
	}
}

// ActiveAlerts returns the most recently recorded AlertInstance for every
// registered rule that has ever fired, active and resolved alike, newest
// fires sorting first. Rules that have never fired have no instance and are
// omitted.
func (e *Evaluator) ActiveAlerts(ctx context.Context) ([]AlertInstance, error) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.rules))
	for id := range e.rules {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	instances := make([]AlertInstance, 0, len(ids))
	for _, id := range ids {
		raw, err := e.store.Get(ctx, alertKey(id))
		if err != nil {
			continue
		}
		var inst AlertInstance
		if err := json.Unmarshal(raw, &inst); err != nil {
			continue
		}
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].FireTime.After(instances[j].FireTime)
	})
	return instances, nil
}

// Start schedules periodic evaluation at the given cron spec (e.g. "@every
// 15s") and returns immediately; stop via Stop.
func (e *Evaluator) Start(spec string) error {
	_, err := e.cron.AddFunc(spec, func() {
		e.Evaluate(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule alert evaluation: %w", err)
	}
	e.cron.Start()
	return nil
}

// Stop halts the schedule.
func (e *Evaluator) Stop() {
	e.cron.Stop()
}

// Evaluate runs every enabled rule once against the current metric
// snapshot.
func (e *Evaluator) Evaluate(ctx context.Context) {
	e.mu.Lock()
	rules := make([]AlertRule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	e.mu.Unlock()

	families, err := e.metrics.Gather()
	if err != nil {
		if e.logger != nil {
			e.logger.Log(ctx, LevelError, "", "", "", "alert_metrics_gather_failed", nil, err, nil)
		}
		return
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	now := time.Now()
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		value, ok := sampleMetric(byName[rule.Metric])
		if !ok {
			continue
		}
		e.evaluateRule(ctx, rule, value, now)
	}
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule AlertRule, value float64, now time.Time) {
	e.mu.Lock()
	st := e.states[rule.ID]
	e.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.samples = append(st.samples, sample{at: now, value: value})
	cutoff := now.Add(-rule.Window)
	kept := st.samples[:0]
	for _, s := range st.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	st.samples = kept

	aggregated := aggregate(rule.Aggregation, st.samples)
	holds := compare(rule.Comparison, aggregated, rule.Threshold)

	if !holds {
		st.conditionSince = time.Time{}
		if st.active {
			st.active = false
			e.resolve(ctx, rule, now)
		}
		return
	}

	if st.conditionSince.IsZero() {
		st.conditionSince = now
	}
	if !st.active && now.Sub(st.conditionSince) >= rule.Duration {
		st.active = true
		e.fire(ctx, rule, aggregated, now)
	}
}

func (e *Evaluator) fire(ctx context.Context, rule AlertRule, value float64, at time.Time) {
	inst := AlertInstance{
		RuleID:        rule.ID,
		FireTime:      at,
		ObservedValue: value,
		Severity:      rule.Severity,
		Message:       fmt.Sprintf("%s: %s(%s) %s %.2f (observed %.2f)", rule.Name, rule.Aggregation, rule.Metric, rule.Comparison, rule.Threshold, value),
	}
	e.persist(ctx, rule.ID, inst)
	if e.logger != nil {
		e.logger.Log(ctx, LevelWarn, "", "", "", "alert_fired", map[string]any{"rule": rule.ID, "value": value}, nil, nil)
	}
}

func (e *Evaluator) resolve(ctx context.Context, rule AlertRule, at time.Time) {
	raw, err := e.store.Get(ctx, alertKey(rule.ID))
	if err != nil {
		return
	}
	var inst AlertInstance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return
	}
	resolvedAt := at
	inst.ResolvedTime = &resolvedAt
	e.persist(ctx, rule.ID, inst)
	if e.logger != nil {
		e.logger.Log(ctx, LevelInfo, "", "", "", "alert_resolved", map[string]any{"rule": rule.ID}, nil, nil)
	}
}

func (e *Evaluator) persist(ctx context.Context, ruleID string, inst AlertInstance) {
	raw, err := json.Marshal(inst)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, alertKey(ruleID), raw, alertStateTTL); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("rule", ruleID).Msg("alert_persist_failed")
	}
}

// sampleMetric reduces a metric family to a single float64: the sum across
// all label combinations for counters/gauges, or the sum of histogram
// sample sums for histograms (total elapsed seconds observed).
func sampleMetric(mf *dto.MetricFamily) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.GetCounter() != nil:
			total += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			total += m.GetGauge().GetValue()
		case m.GetHistogram() != nil:
			total += m.GetHistogram().GetSampleSum()
		}
	}
	return total, true
}

func aggregate(agg Aggregation, samples []sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	switch agg {
	case AggAvg:
		var sum float64
		for _, s := range samples {
			sum += s.value
		}
		return sum / float64(len(samples))
	case AggMin:
		min := samples[0].value
		for _, s := range samples[1:] {
			if s.value < min {
				min = s.value
			}
		}
		return min
	case AggMax:
		max := samples[0].value
		for _, s := range samples[1:] {
			if s.value > max {
				max = s.value
			}
		}
		return max
	case AggCount:
		return float64(len(samples))
	default: // sum
		var sum float64
		for _, s := range samples {
			sum += s.value
		}
		return sum
	}
}

func compare(op Comparison, value, threshold float64) bool {
	switch op {
	case CompGT:
		return value > threshold
	case CompGTE:
		return value >= threshold
	case CompLT:
		return value < threshold
	case CompLTE:
		return value <= threshold
	case CompEQ:
		return value == threshold
	default:
		return false
	}
}
