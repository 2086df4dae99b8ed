// Package pipeline contains the core message processing components for the service.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// errEmptyJob marks a job that cannot produce any delivery.
var errEmptyJob = errors.New("job has no device tokens")

// JobTransformer is a dataflow Transformer that unmarshals a raw message
// payload into a notify.Job.
//
// Malformed payloads and jobs without tokens are poison: they return an
// error with skip=false, so the StreamingService Nacks them and Pub/Sub
// dead-letters them. skip=true would Ack them.
func JobTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notify.Job, bool, error) {
	var job notify.Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal dispatch job from message %s: %w", msg.ID, err)
	}
	if len(job.Tokens) == 0 {
		return nil, false, fmt.Errorf("message %s: %w", msg.ID, errEmptyJob)
	}
	if job.ID == "" {
		job.ID = msg.ID
	}
	return &job, false, nil
}
