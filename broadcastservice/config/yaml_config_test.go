package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-broadcast-service/broadcastservice/config"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"
)

const sampleYAML = `
project_id: yaml-project
listen_addr: ":9000"
topic_id: yaml-topic
subscription_id: yaml-subscription
subscription_dlq_topic_id: yaml-dlq
num_pipeline_workers: 5
cors:
  allowed_origins: ["http://yaml.com"]
  role: editor
notifications:
  default_locale: en
  locales: [en, ar]
  save_notifications: true
  send_notifications: true
gateway:
  driver: http
  project_id: fb-project
  url: "https://fcm.googleapis.com/v1/projects/:project_id/messages:send"
  credential_ttl: 10m
  retry_delay: 250ms
  send_chunk_size: 50
persistence:
  driver: mysql
  mysql_dsn: "u:p@tcp(localhost:3306)/app"
`

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte(sampleYAML), &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		assert.Equal(t, []string{"en", "ar"}, cfg.Notifications.Locales)
		assert.True(t, cfg.Notifications.SendNotifications)

		assert.Equal(t, config.GatewayHTTP, cfg.Gateway.Driver)
		assert.Equal(t, "fb-project", cfg.Gateway.ProjectID)
		assert.Equal(t, 10*time.Minute, cfg.Gateway.CredentialTTL)
		assert.Equal(t, 250*time.Millisecond, cfg.Gateway.RetryDelay)
		assert.Equal(t, 50, cfg.Gateway.SendChunkSize)

		assert.Equal(t, config.PersistenceMySQL, cfg.Persistence.Driver)

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:      "minimal-project",
			SubscriptionID: "minimal-sub",
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "minimal-project", cfg.ProjectID)
		assert.Equal(t, 0, cfg.NumPipelineWorkers)
		assert.Empty(t, cfg.ListenAddr)
		assert.Zero(t, cfg.Gateway.CredentialTTL)
	})

	t.Run("Failure - Bad duration", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID: "p",
			Gateway:   config.YamlGatewayConfig{RetryDelay: "soon"},
		}

		_, err := config.NewConfigFromYaml(yamlCfg, logger)

		assert.ErrorContains(t, err, "gateway.retry_delay")
	})
}
