// Package broadcast is the entry point for sending a built notification to a
// set of recipients: it saves the per-recipient records and queues the
// dispatch jobs.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-broadcast-service/internal/dispatch"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// DefaultJobChunkSize bounds the tokens carried by one queued job.
const DefaultJobChunkSize = 1000

// GatewayValidator reports missing gateway configuration before anything is
// queued.
type GatewayValidator interface {
	Validate() error
}

// Config holds the service-wide switches.
type Config struct {
	SaveNotifications bool
	SendNotifications bool
	JobChunkSize      int
}

// Service wires the record store and job queue. store may be nil when
// persistence is disabled.
type Service struct {
	cfg     Config
	store   notify.RecordStore
	queue   notify.JobQueue
	gateway GatewayValidator
	logger  *slog.Logger
}

func NewService(cfg Config, store notify.RecordStore, queue notify.JobQueue, gateway GatewayValidator, logger *slog.Logger) *Service {
	if cfg.JobChunkSize <= 0 {
		cfg.JobChunkSize = DefaultJobChunkSize
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		queue:   queue,
		gateway: gateway,
		logger:  logger.With("component", "BroadcastService"),
	}
}

type sendOptions struct {
	save     bool
	dispatch bool
}

// SendOption adjusts a single Send call.
type SendOption func(*sendOptions)

// WithoutSave skips the record store for this call.
func WithoutSave() SendOption {
	return func(o *sendOptions) { o.save = false }
}

// WithoutDispatch saves the records but queues nothing.
func WithoutDispatch() SendOption {
	return func(o *sendOptions) { o.dispatch = false }
}

// Result summarises what Send did.
type Result struct {
	Recipients int
	Tokens     int
	Saved      bool
	Jobs       []string
}

// Send resolves recipients, saves records and queues dispatch jobs.
//
// Errors are only returned for problems known before delivery starts:
// recipients without tokens, missing gateway configuration, or a failing
// store or queue. Delivery failures show up in the dispatch logs.
func (s *Service) Send(ctx context.Context, src notify.RecipientSource, req *notify.NotificationRequest, opts ...SendOption) (*Result, error) {
	o := sendOptions{save: true, dispatch: true}
	for _, opt := range opts {
		opt(&o)
	}

	recipients := notify.Resolve(src)
	tokens, err := notify.ExtractTokens(recipients)
	if err != nil {
		return nil, err
	}
	res := &Result{Recipients: len(recipients), Tokens: len(tokens)}

	sending := s.cfg.SendNotifications && o.dispatch && len(tokens) > 0
	if sending {
		if err := s.gateway.Validate(); err != nil {
			return nil, err
		}
	}

	if s.cfg.SaveNotifications && o.save && s.store != nil && len(recipients) > 0 {
		if err := s.store.Save(ctx, recipients, req); err != nil {
			return nil, fmt.Errorf("failed to save notification records: %w", err)
		}
		res.Saved = true
	}

	if !sending {
		s.logger.Debug("Dispatch skipped", "recipients", res.Recipients, "tokens", res.Tokens)
		return res, nil
	}

	for _, chunk := range dispatch.Chunk(tokens, s.cfg.JobChunkSize) {
		job := &notify.Job{ID: uuid.NewString(), Tokens: chunk, Request: *req}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return res, fmt.Errorf("failed to enqueue dispatch job: %w", err)
		}
		res.Jobs = append(res.Jobs, job.ID)
	}

	s.logger.Info("Notification queued", "recipients", res.Recipients, "tokens", res.Tokens, "jobs", len(res.Jobs))
	return res, nil
}
