// Package events publishes job-lifecycle notifications to kafka so other
// systems (a notification service, an analytics sink) can react to a job
// reaching done/failed without polling the job server.
package events

import (
	"context"
	"encoding/json"
	"time"

	"clipforge/ddd/domain/gateway"
	"clipforge/pkg/kafka"
	"clipforge/pkg/logger"
)

// Publisher implements worker.EventPublisher over pkg/kafka.Client. It is
// entirely best-effort: a publish failure is logged and swallowed by the
// caller, never surfaced as a job failure.
type Publisher struct {
	client *kafka.Client
	topic  string
}

func New(client *kafka.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// wireEvent is the JSON shape written to the topic: minimal, timestamped,
// keyed by job_id so consumers can partition on it.
type wireEvent struct {
	JobID     string    `json:"job_id"`
	TraceID   string    `json:"trace_id"`
	Status    string    `json:"status"`
	EmittedAt time.Time `json:"emitted_at"`
}

func (p *Publisher) Publish(ctx context.Context, event gateway.JobEvent) error {
	payload, err := json.Marshal(wireEvent{
		JobID:     event.JobID,
		TraceID:   event.TraceID,
		Status:    event.Status,
		EmittedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if err := p.client.Produce(ctx, p.topic, []byte(event.JobID), payload); err != nil {
		logger.Warnf("kafka publish failed for job %s: %v", event.JobID, err)
		return err
	}
	return nil
}
