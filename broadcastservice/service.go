// Package broadcastservice assembles the HTTP API and the dispatch pipeline
// into one runnable service.
package broadcastservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-broadcast-service/broadcastservice/config"
	"github.com/tinywideclouds/go-broadcast-service/internal/api"
	"github.com/tinywideclouds/go-broadcast-service/internal/broadcast"
	"github.com/tinywideclouds/go-broadcast-service/internal/dispatch"
	"github.com/tinywideclouds/go-broadcast-service/internal/payload"
	"github.com/tinywideclouds/go-broadcast-service/internal/pipeline"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
	"github.com/tinywideclouds/go-broadcast-service/pkg/registry"
)

// Gateway is the configured push gateway: it can vouch for its own
// configuration and issue access tokens. *credential.Manager satisfies it.
type Gateway interface {
	Validate() error
	AccessToken(ctx context.Context) (string, error)
}

// Dependencies are the clients built by the entrypoint. RecordStore may be
// nil when persistence is disabled.
type Dependencies struct {
	Consumer       messagepipeline.MessageConsumer
	TokenStore     registry.TokenStore
	RecordStore    notify.RecordStore
	JobQueue       notify.JobQueue
	Gateway        Gateway
	Sender         dispatch.Sender
	Translator     notify.Translator
	AuthMiddleware func(http.Handler) http.Handler
	Registry       *prometheus.Registry
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[notify.Job]
	broadcast       *broadcast.Service
	logger          *slog.Logger
}

// New assembles the service.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Wrapper, error) {
	if deps.Consumer == nil || deps.TokenStore == nil || deps.JobQueue == nil || deps.Gateway == nil || deps.Sender == nil {
		return nil, errors.New("consumer, token store, job queue, gateway and sender are required")
	}
	if deps.AuthMiddleware == nil {
		return nil, errors.New("auth middleware is required")
	}

	locales, err := notify.NewLocaleSet(cfg.Notifications.Locales, cfg.Notifications.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale configuration: %w", err)
	}

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Dispatch engine and processor
	engine := dispatch.NewEngine(dispatch.Config{
		ChunkSize:   cfg.Gateway.SendChunkSize,
		MaxAttempts: cfg.Gateway.MaxAttempts,
		RetryDelay:  cfg.Gateway.RetryDelay,
		Concurrency: cfg.Gateway.SendConcurrency,
	}, deps.Gateway, deps.Sender, dispatch.NewMetrics(reg), logger)

	assembler := payload.NewAssembler(locales, cfg.Gateway.ClickAction)
	processor := pipeline.NewProcessor(assembler, engine, deps.Gateway, deps.TokenStore, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		deps.Consumer,
		pipeline.JobTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. Send entry point
	broadcastService := broadcast.NewService(broadcast.Config{
		SaveNotifications: cfg.Notifications.SaveNotifications,
		SendNotifications: cfg.Notifications.SendNotifications,
		JobChunkSize:      cfg.Gateway.JobChunkSize,
	}, deps.RecordStore, deps.JobQueue, deps.Gateway, logger)

	// 5. API
	tokenAPI := api.NewTokenAPI(deps.TokenStore, logger)
	notificationAPI := api.NewNotificationAPI(deps.TokenStore, broadcastService, locales, deps.Translator, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(deps.AuthMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/tokens", tokenAPI.Register)
	handle("POST /api/v1/tokens/delete", tokenAPI.Unregister)
	handle("POST /api/v1/notifications", notificationAPI.Send)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		broadcast:       broadcastService,
		logger:          logger,
	}, nil
}

// Broadcast exposes the send entry point for in-process callers.
func (w *Wrapper) Broadcast() *broadcast.Service {
	return w.broadcast
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
