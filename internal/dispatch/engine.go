// Package dispatch fans a payload out to device tokens through a gateway
// Sender, retrying transient failures per token.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-broadcast-service/internal/payload"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize   = 100
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 100 * time.Millisecond
)

// Sender delivers one message to the gateway. Failures are reported as
// *notify.GatewayTransientError or *notify.GatewayFatalError; any other
// error is treated as transient.
type Sender interface {
	Send(ctx context.Context, accessToken string, msg payload.Payload) (int, error)
}

// CredentialProvider returns the bearer token for the gateway.
type CredentialProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Outcome is the result for one device token.
type Outcome struct {
	Token      string
	Succeeded  bool
	HTTPStatus int
	Err        error
	Attempts   int
}

// Unregistered reports whether the gateway said the token no longer exists.
func (o Outcome) Unregistered() bool {
	return !o.Succeeded && notify.IsUnregistered(o.Err)
}

// Config bounds the engine. ChunkSize is the per-call limit and is unrelated
// to the size of a queued job.
type Config struct {
	ChunkSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	// Concurrency is the number of parallel sends within a chunk.
	Concurrency int
}

type Engine struct {
	cfg         Config
	credentials CredentialProvider
	sender      Sender
	metrics     *Metrics
	logger      *slog.Logger
}

func NewEngine(cfg Config, credentials CredentialProvider, sender Sender, metrics *Metrics, logger *slog.Logger) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Engine{
		cfg:         cfg,
		credentials: credentials,
		sender:      sender,
		metrics:     metrics,
		logger:      logger.With("component", "DispatchEngine"),
	}
}

// Chunk splits tokens into consecutive slices of at most size elements.
func Chunk(tokens []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(tokens); start += size {
		end := min(start+size, len(tokens))
		chunks = append(chunks, tokens[start:end])
	}
	return chunks
}

// Dispatch sends p to every token and returns one outcome per token, in
// input order. Per-token failures are reported in the outcomes only. If a
// chunk cannot obtain a credential, Dispatch stops there and returns the
// outcomes of the chunks already sent together with a *notify.CredentialFetchError,
// so the caller can have the whole job redelivered.
func (e *Engine) Dispatch(ctx context.Context, tokens []string, p payload.Payload) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(tokens))
	for _, chunk := range Chunk(tokens, e.cfg.ChunkSize) {
		accessToken, err := e.credentials.AccessToken(ctx)
		if err != nil {
			remaining := len(tokens) - len(outcomes)
			e.logger.Error("Failed to obtain gateway credential, aborting dispatch", "remaining", remaining, "err", err)
			var fetchErr *notify.CredentialFetchError
			if !errors.As(err, &fetchErr) {
				err = &notify.CredentialFetchError{Err: err}
			}
			return outcomes, fmt.Errorf("dispatch stopped with %d of %d tokens unsent: %w", remaining, len(tokens), err)
		}
		outcomes = append(outcomes, e.dispatchChunk(ctx, accessToken, chunk, p)...)
	}
	return outcomes, nil
}

func (e *Engine) dispatchChunk(ctx context.Context, accessToken string, chunk []string, p payload.Payload) []Outcome {
	outcomes := make([]Outcome, len(chunk))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, token := range chunk {
		g.Go(func() error {
			outcomes[i] = e.sendWithRetry(ctx, accessToken, p.ForToken(token))
			e.metrics.observeOutcome(outcomes[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Engine) sendWithRetry(ctx context.Context, accessToken string, msg payload.Payload) Outcome {
	out := Outcome{Token: msg.Message.Token}
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		out.Attempts = attempt

		start := time.Now()
		status, err := e.sender.Send(ctx, accessToken, msg)
		e.metrics.observeAttempt(classify(err), time.Since(start).Seconds())

		e.logger.Info("Gateway response",
			"token", msg.Message.Token,
			"status", status,
			"attempt", attempt,
			"data", msg.Message.Data,
			"err", err,
		)

		out.HTTPStatus = status
		out.Err = err
		if err == nil {
			out.Succeeded = true
			return out
		}
		if !notify.IsRetryable(err) || attempt == e.cfg.MaxAttempts {
			return out
		}

		select {
		case <-ctx.Done():
			out.Err = errors.Join(err, ctx.Err())
			return out
		case <-time.After(e.cfg.RetryDelay):
		}
	}
	return out
}

func classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case notify.IsRetryable(err):
		return "transient"
	default:
		return "fatal"
	}
}

// Summary counts outcomes.
func Summary(outcomes []Outcome) (sent, failed int) {
	for _, o := range outcomes {
		if o.Succeeded {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}
