package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-broadcast-service/broadcastservice"
	"github.com/tinywideclouds/go-broadcast-service/broadcastservice/config"
	"github.com/tinywideclouds/go-broadcast-service/internal/credential"
	"github.com/tinywideclouds/go-broadcast-service/internal/dispatch"
	"github.com/tinywideclouds/go-broadcast-service/internal/platform/apns"
	"github.com/tinywideclouds/go-broadcast-service/internal/platform/fcm"
	psQueue "github.com/tinywideclouds/go-broadcast-service/internal/platform/pubsub"
	"github.com/tinywideclouds/go-broadcast-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-broadcast-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-broadcast-service/internal/storage/mysql"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
	"github.com/tinywideclouds/go-broadcast-service/pkg/registry"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

// sharedCache is what both the credential manager and the token cache need.
type sharedCache interface {
	credential.Cache
	cache.CacheClient
}

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-broadcast-service")
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config mapping failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	// --- Shared Cache ---
	var shared sharedCache = credential.NewMemoryCache()
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		shared = redisClient
	} else {
		logger.Warn("Redis disabled, gateway credentials are cached per process")
	}

	// --- Token Store (Decorated) ---
	var tokenStore registry.TokenStore = fsStore.NewTokenStore(fsClient)
	logger.Info("TokenStore initialized", "type", "firestore")
	if cfg.Redis.Enabled {
		tokenStore = cache.NewCachedTokenStore(tokenStore, shared, 24*time.Hour)
		logger.Info("TokenStore upgraded", "type", "redis_cached_firestore")
	}

	// --- Record Store ---
	recordStore, closeRecords, err := newRecordStore(ctx, cfg, fsClient, logger)
	if err != nil {
		logger.Error("Record store failed", "err", err)
		os.Exit(1)
	}
	defer closeRecords()

	// --- Translations ---
	var translator notify.Translator
	if cfg.Notifications.TranslationsPath != "" {
		catalog, err := notify.LoadCatalog(cfg.Notifications.TranslationsPath)
		if err != nil {
			logger.Error("Failed to load translations", "err", err)
			os.Exit(1)
		}
		translator = catalog
	}

	// --- Gateway ---
	gateway, sender, err := newGateway(ctx, cfg, shared, logger)
	if err != nil {
		logger.Error("Gateway setup failed", "err", err)
		os.Exit(1)
	}
	if err := gateway.Validate(); err != nil {
		// Not fatal: records can still be saved and sends fail individually.
		logger.Warn("Gateway configuration incomplete, sends will fail", "err", err)
	}

	// --- Auth ---
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(cfg.IdentityServiceURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT config discovery failed", "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Auth middleware failed", "err", err)
		os.Exit(1)
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// --- Consumer & Service ---
	consumer, err := newJobConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := broadcastservice.New(cfg, broadcastservice.Dependencies{
		Consumer:       consumer,
		TokenStore:     tokenStore,
		RecordStore:    recordStore,
		JobQueue:       psQueue.NewJobQueue(psClient.Publisher(cfg.TopicID)),
		Gateway:        gateway,
		Sender:         sender,
		Translator:     translator,
		AuthMiddleware: authMiddleware,
		Registry:       reg,
	}, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("Starting service...", "addr", cfg.ListenAddr)
		if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Service shutdown with error", "err", err)
			cancel()
		}
	}()

	// Wait for a shutdown signal.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-shutdown:
		logger.Info("Received shutdown signal.", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown.")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("Service shutdown failed.", "err", err)
	}
}

// newGateway builds the credential side and the sender for the configured
// driver.
func newGateway(ctx context.Context, cfg *config.Config, shared credential.Cache, logger *slog.Logger) (broadcastservice.Gateway, dispatch.Sender, error) {
	g := cfg.Gateway
	switch g.Driver {
	case config.GatewaySDK:
		gateway := credential.SelfAuthenticated{ProjectID: g.ProjectID, RequiresProject: true}
		var opts []option.ClientOption
		if g.CredentialsPath != "" {
			opts = append(opts, option.WithCredentialsFile(g.CredentialsPath))
		}
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: g.ProjectID}, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
		}
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
		}
		return gateway, fcm.NewSDKSender(client, logger), nil

	case config.GatewayAPNS:
		key, err := os.ReadFile(cfg.APNS.P8Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read APNs key: %w", err)
		}
		sender, err := apns.NewSender(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: string(key),
			Sandbox:      cfg.APNS.Sandbox,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return credential.SelfAuthenticated{}, sender, nil

	default:
		var scopes []string
		if g.Scope != "" {
			scopes = append(scopes, g.Scope)
		}
		manager := credential.NewManager(credential.Config{
			ProjectID:   g.ProjectID,
			URLTemplate: g.URL,
			TTL:         g.CredentialTTL,
		}, credential.NewGoogleSource(g.CredentialsPath, scopes...), shared, logger)
		return manager, fcm.NewHTTPSender(nil, manager, logger), nil
	}
}

func newRecordStore(ctx context.Context, cfg *config.Config, fsClient *firestore.Client, logger *slog.Logger) (notify.RecordStore, func(), error) {
	noop := func() {}
	switch cfg.Persistence.Driver {
	case config.PersistenceNone:
		logger.Info("RecordStore disabled")
		return nil, noop, nil

	case config.PersistenceMySQL:
		db, err := mysql.Open(ctx, cfg.Persistence.MySQLDSN)
		if err != nil {
			return nil, noop, err
		}
		closeDB := func() { _ = db.Close() }
		store, err := mysql.NewRecordStore(db, mysql.Tables{
			Notifications: cfg.Persistence.NotificationsTable,
			Translations:  cfg.Persistence.TranslationsTable,
			ForeignKey:    mysql.DefaultTables.ForeignKey,
		})
		if err != nil {
			closeDB()
			return nil, noop, err
		}
		if cfg.Persistence.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				closeDB()
				return nil, noop, err
			}
		}
		logger.Info("RecordStore initialized", "type", "mysql")
		return store, closeDB, nil

	default:
		logger.Info("RecordStore initialized", "type", "firestore")
		return fsStore.NewRecordStore(fsClient), noop, nil
	}
}

func newJobConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 topicID,
		AckDeadlineSeconds:    60,
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
