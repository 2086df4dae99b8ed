package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

type YamlNotificationsConfig struct {
	DefaultLocale     string   `yaml:"default_locale"`
	Locales           []string `yaml:"locales"`
	SaveNotifications bool     `yaml:"save_notifications"`
	SendNotifications bool     `yaml:"send_notifications"`
	TranslationsPath  string   `yaml:"translations_path"`
}

type YamlGatewayConfig struct {
	Driver          string `yaml:"driver"`
	ProjectID       string `yaml:"project_id"`
	URL             string `yaml:"url"`
	CredentialsPath string `yaml:"credentials_path"`
	Scope           string `yaml:"scope"`
	ClickAction     string `yaml:"click_action"`
	SendChunkSize   int    `yaml:"send_chunk_size"`
	JobChunkSize    int    `yaml:"job_chunk_size"`
	CredentialTTL   string `yaml:"credential_ttl"`
	MaxAttempts     int    `yaml:"max_attempts"`
	RetryDelay      string `yaml:"retry_delay"`
	SendConcurrency int    `yaml:"send_concurrency"`
}

type YamlAPNSConfig struct {
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
	P8Path   string `yaml:"p8_path"`
	Sandbox  bool   `yaml:"sandbox"`
}

type YamlPersistenceConfig struct {
	Driver             string `yaml:"driver"`
	MySQLDSN           string `yaml:"mysql_dsn"`
	NotificationsTable string `yaml:"notifications_table"`
	TranslationsTable  string `yaml:"translations_table"`
	AutoMigrate        bool   `yaml:"auto_migrate"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string                  `yaml:"project_id"`
	ListenAddr             string                  `yaml:"listen_addr"`
	TopicID                string                  `yaml:"topic_id"`
	SubscriptionID         string                  `yaml:"subscription_id"`
	SubscriptionDLQTopicID string                  `yaml:"subscription_dlq_topic_id"`
	IdentityServiceURL     string                  `yaml:"identity_service_url"`
	CorsConfig             YamlCorsConfig          `yaml:"cors"`
	RedisConfig            YamlRedisConfig         `yaml:"redis"`
	Notifications          YamlNotificationsConfig `yaml:"notifications"`
	Gateway                YamlGatewayConfig       `yaml:"gateway"`
	APNS                   YamlAPNSConfig          `yaml:"apns"`
	Persistence            YamlPersistenceConfig   `yaml:"persistence"`
	NumPipelineWorkers     int                     `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	credentialTTL, err := parseDuration("gateway.credential_ttl", baseCfg.Gateway.CredentialTTL)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("gateway.retry_delay", baseCfg.Gateway.RetryDelay)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:          baseCfg.ProjectID,
		ListenAddr:         baseCfg.ListenAddr,
		TopicID:            baseCfg.TopicID,
		SubscriptionID:     baseCfg.SubscriptionID,
		IdentityServiceURL: baseCfg.IdentityServiceURL,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
		},
		Notifications: NotificationsConfig{
			DefaultLocale:     baseCfg.Notifications.DefaultLocale,
			Locales:           baseCfg.Notifications.Locales,
			SaveNotifications: baseCfg.Notifications.SaveNotifications,
			SendNotifications: baseCfg.Notifications.SendNotifications,
			TranslationsPath:  baseCfg.Notifications.TranslationsPath,
		},
		Gateway: GatewayConfig{
			Driver:          GatewayDriver(baseCfg.Gateway.Driver),
			ProjectID:       baseCfg.Gateway.ProjectID,
			URL:             baseCfg.Gateway.URL,
			CredentialsPath: baseCfg.Gateway.CredentialsPath,
			Scope:           baseCfg.Gateway.Scope,
			ClickAction:     baseCfg.Gateway.ClickAction,
			SendChunkSize:   baseCfg.Gateway.SendChunkSize,
			JobChunkSize:    baseCfg.Gateway.JobChunkSize,
			CredentialTTL:   credentialTTL,
			MaxAttempts:     baseCfg.Gateway.MaxAttempts,
			RetryDelay:      retryDelay,
			SendConcurrency: baseCfg.Gateway.SendConcurrency,
		},
		APNS: APNSConfig{
			KeyID:    baseCfg.APNS.KeyID,
			TeamID:   baseCfg.APNS.TeamID,
			BundleID: baseCfg.APNS.BundleID,
			P8Path:   baseCfg.APNS.P8Path,
			Sandbox:  baseCfg.APNS.Sandbox,
		},
		Persistence: PersistenceConfig{
			Driver:             PersistenceDriver(baseCfg.Persistence.Driver),
			MySQLDSN:           baseCfg.Persistence.MySQLDSN,
			NotificationsTable: baseCfg.Persistence.NotificationsTable,
			TranslationsTable:  baseCfg.Persistence.TranslationsTable,
			AutoMigrate:        baseCfg.Persistence.AutoMigrate,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"gateway_driver", cfg.Gateway.Driver,
	)

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
