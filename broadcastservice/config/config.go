package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type GatewayDriver string

const (
	GatewayHTTP GatewayDriver = "http"
	GatewaySDK  GatewayDriver = "sdk"
	GatewayAPNS GatewayDriver = "apns"
)

type PersistenceDriver string

const (
	PersistenceFirestore PersistenceDriver = "firestore"
	PersistenceMySQL     PersistenceDriver = "mysql"
	PersistenceNone      PersistenceDriver = "none"
)

const (
	DefaultSendChunkSize   = 100
	DefaultJobChunkSize    = 1000
	DefaultCredentialTTL   = 30 * time.Minute
	DefaultMaxAttempts     = 3
	DefaultRetryDelay      = 100 * time.Millisecond
	DefaultSendConcurrency = 1
	DefaultLocale          = "en"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type NotificationsConfig struct {
	DefaultLocale     string
	Locales           []string
	SaveNotifications bool
	SendNotifications bool
	TranslationsPath  string
}

// GatewayConfig configures credential issuance and delivery. ProjectID and
// URL are not checked at load; a send without them fails with a missing
// configuration error.
type GatewayConfig struct {
	Driver          GatewayDriver
	ProjectID       string
	URL             string
	CredentialsPath string
	Scope           string
	ClickAction     string
	SendChunkSize   int
	JobChunkSize    int
	CredentialTTL   time.Duration
	MaxAttempts     int
	RetryDelay      time.Duration
	SendConcurrency int
}

type APNSConfig struct {
	KeyID    string
	TeamID   string
	BundleID string
	P8Path   string
	Sandbox  bool
}

type PersistenceConfig struct {
	Driver             PersistenceDriver
	MySQLDSN           string
	NotificationsTable string
	TranslationsTable  string
	AutoMigrate        bool
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	IdentityServiceURL     string

	CorsConfig    middleware.CorsConfig
	Redis         RedisConfig
	Notifications NotificationsConfig
	Gateway       GatewayConfig
	APNS          APNSConfig
	Persistence   PersistenceConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		cfg.IdentityServiceURL = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Gateway Overrides
	if val := os.Getenv("GATEWAY_DRIVER"); val != "" {
		logger.Debug("Overriding config value", "key", "GATEWAY_DRIVER", "source", "env")
		cfg.Gateway.Driver = GatewayDriver(val)
	}
	if val := os.Getenv("FIREBASE_PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "FIREBASE_PROJECT_ID", "source", "env")
		cfg.Gateway.ProjectID = val
	}
	if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
		cfg.Gateway.CredentialsPath = val
	}
	if val := os.Getenv("SEND_NOTIFICATIONS"); val != "" {
		if send, err := strconv.ParseBool(val); err == nil {
			cfg.Notifications.SendNotifications = send
		}
	}
	if val := os.Getenv("SAVE_NOTIFICATIONS"); val != "" {
		if save, err := strconv.ParseBool(val); err == nil {
			cfg.Notifications.SaveNotifications = save
		}
	}

	// Persistence Overrides
	if val := os.Getenv("PERSISTENCE_DRIVER"); val != "" {
		cfg.Persistence.Driver = PersistenceDriver(val)
	}
	if val := os.Getenv("MYSQL_DSN"); val != "" {
		logger.Debug("Overriding config value", "key", "MYSQL_DSN", "source", "env")
		cfg.Persistence.MySQLDSN = val
	}

	// APNs Overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_PATH"); val != "" {
		cfg.APNS.P8Path = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.TopicID == "" {
		return nil, fmt.Errorf("topic_id is required (set via YAML or TOPIC_ID env var)")
	}
	if err := finalizeNotifications(&cfg.Notifications); err != nil {
		return nil, err
	}
	if err := finalizeGateway(&cfg.Gateway); err != nil {
		return nil, err
	}
	if err := finalizePersistence(&cfg.Persistence); err != nil {
		return nil, err
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.IdentityServiceURL == "" {
		cfg.IdentityServiceURL = "http://localhost:3000"
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func finalizeNotifications(n *NotificationsConfig) error {
	if n.DefaultLocale == "" {
		n.DefaultLocale = DefaultLocale
	}
	if len(n.Locales) == 0 {
		n.Locales = []string{n.DefaultLocale}
	}
	if !slices.Contains(n.Locales, n.DefaultLocale) {
		return fmt.Errorf("default_locale %q must be one of the configured locales %v", n.DefaultLocale, n.Locales)
	}
	return nil
}

func finalizeGateway(g *GatewayConfig) error {
	switch g.Driver {
	case "":
		g.Driver = GatewayHTTP
	case GatewayHTTP, GatewaySDK, GatewayAPNS:
	default:
		return fmt.Errorf("unknown gateway driver %q", g.Driver)
	}
	if g.SendChunkSize <= 0 {
		g.SendChunkSize = DefaultSendChunkSize
	}
	if g.JobChunkSize <= 0 {
		g.JobChunkSize = DefaultJobChunkSize
	}
	if g.CredentialTTL <= 0 {
		g.CredentialTTL = DefaultCredentialTTL
	}
	if g.MaxAttempts <= 0 {
		g.MaxAttempts = DefaultMaxAttempts
	}
	if g.RetryDelay <= 0 {
		g.RetryDelay = DefaultRetryDelay
	}
	if g.SendConcurrency <= 0 {
		g.SendConcurrency = DefaultSendConcurrency
	}
	return nil
}

func finalizePersistence(p *PersistenceConfig) error {
	switch p.Driver {
	case "":
		p.Driver = PersistenceFirestore
	case PersistenceFirestore, PersistenceNone:
	case PersistenceMySQL:
		if p.MySQLDSN == "" {
			return fmt.Errorf("mysql_dsn is required for the mysql persistence driver (set via YAML or MYSQL_DSN env var)")
		}
	default:
		return fmt.Errorf("unknown persistence driver %q", p.Driver)
	}
	if p.NotificationsTable == "" {
		p.NotificationsTable = "notifications"
	}
	if p.TranslationsTable == "" {
		p.TranslationsTable = "notification_translations"
	}
	return nil
}
