package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-broadcast-service/internal/dispatch"
	"github.com/tinywideclouds/go-broadcast-service/internal/payload"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// Dispatcher fans a payload out to tokens. *dispatch.Engine satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, p payload.Payload) ([]dispatch.Outcome, error)
}

// GatewayValidator reports missing gateway configuration.
type GatewayValidator interface {
	Validate() error
}

// TokenPruner removes tokens the gateway reported as unregistered and
// returns the owners that lost a device.
type TokenPruner interface {
	PruneTokens(ctx context.Context, tokens []string) ([]urn.URN, error)
}

// NewProcessor creates the logic that runs one dispatch job to completion.
// Per-token failures never fail the job. Missing gateway configuration and
// a failed credential fetch do, so Pub/Sub redelivers the job and eventually
// dead-letters it. pruner may be nil.
func NewProcessor(
	assembler *payload.Assembler,
	engine Dispatcher,
	gateway GatewayValidator,
	pruner TokenPruner,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[notify.Job] {

	return func(ctx context.Context, original messagepipeline.Message, job *notify.Job) error {
		procLogger := logger.With(
			"job_id", job.ID,
			"pubsub_msg_id", original.ID,
		)

		if err := gateway.Validate(); err != nil {
			procLogger.Error("Gateway is not configured, cannot dispatch job", "err", err)
			return err
		}

		msg := assembler.Assemble(&job.Request)

		// A started job runs to completion even if the pipeline is stopping.
		outcomes, dispatchErr := engine.Dispatch(context.WithoutCancel(ctx), job.Tokens, msg)

		sent, failed := dispatch.Summary(outcomes)
		if dispatchErr != nil {
			procLogger.Error("Dispatch job aborted, job will be redelivered", "sent", sent, "failed", failed, "total", len(job.Tokens), "err", dispatchErr)
		} else {
			procLogger.Info("Dispatch job complete", "sent", sent, "failed", failed, "total", len(outcomes))
		}

		// Self-Healing: forget tokens the gateway no longer knows.
		if pruner != nil {
			var dead []string
			for _, o := range outcomes {
				if o.Unregistered() {
					dead = append(dead, o.Token)
				}
			}
			if len(dead) > 0 {
				owners, err := pruner.PruneTokens(ctx, dead)
				if err != nil {
					procLogger.Warn("Failed to prune unregistered tokens", "count", len(dead), "err", err)
				} else {
					procLogger.Info("Pruned unregistered tokens", "count", len(dead), "owners", len(owners))
				}
			}
		}

		return dispatchErr
	}
}
