// Package pubsub contains concrete adapters for interacting with Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// JobIDAttribute carries the job id alongside the JSON body.
const JobIDAttribute = "job_id"

// publisher is the subset of *pubsub.Publisher we use.
type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// JobQueue implements notify.JobQueue on a Pub/Sub topic. Delivery is
// at-least-once and unordered.
type JobQueue struct {
	topic publisher
}

func NewJobQueue(topic publisher) *JobQueue {
	return &JobQueue{topic: topic}
}

// Enqueue publishes the job and waits for the server to acknowledge it. A
// job without an id is given one.
func (q *JobQueue) Enqueue(ctx context.Context, job *notify.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{JobIDAttribute: job.ID},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}
	return nil
}
