package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"supportcore/internal/observability"
)

// StepEvent is published to the workflow.events topic when a step starts
// running, completes, or fails terminally, so external systems can observe
// progress without polling GetStatus. Compensation is not published.
type StepEvent struct {
	ExecutionID string     `json:"execution_id"`
	StepID      string     `json:"step_id"`
	Status      StepStatus `json:"status"`
	Attempt     int        `json:"attempt"`
	Error       string     `json:"error,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// EventPublisher abstracts the Kafka writer step-completion events are
// published through, so publishing is optional (nil publisher means no-op).
type EventPublisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

const stepEventsTopic = "workflow.events"

func publishStepEvent(ctx context.Context, publisher EventPublisher, ev StepEvent) {
	if publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := publisher.WriteMessages(ctx, kafka.Message{
		Topic: stepEventsTopic,
		Key:   []byte(ev.ExecutionID),
		Value: payload,
	}); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("execution", ev.ExecutionID).Msg("workflow_event_publish_failed")
	}
}
