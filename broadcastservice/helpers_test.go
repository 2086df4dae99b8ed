package broadcastservice_test

import (
	"context"
	"net/http"
	"sync"

	"github.com/stretchr/testify/mock"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-broadcast-service/broadcastservice/config"
	"github.com/tinywideclouds/go-broadcast-service/internal/payload"
)

// --- Fakes ---

type fakeGateway struct{}

func (fakeGateway) Validate() error                             { return nil }
func (fakeGateway) AccessToken(context.Context) (string, error) { return "access-token", nil }

type recordingSender struct {
	mu       sync.Mutex
	messages []payload.Payload
}

func (s *recordingSender) Send(_ context.Context, _ string, msg payload.Payload) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return http.StatusOK, nil
}

func (s *recordingSender) Sent() []payload.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]payload.Payload(nil), s.messages...)
}

func testConfig(subID, topicID string) *config.Config {
	return &config.Config{
		ListenAddr:         ":0",
		NumPipelineWorkers: 2,
		SubscriptionID:     subID,
		TopicID:            topicID,
		Notifications: config.NotificationsConfig{
			DefaultLocale:     "en",
			Locales:           []string{"en", "ar"},
			SaveNotifications: true,
			SendNotifications: true,
		},
		Gateway: config.GatewayConfig{
			SendChunkSize: 100,
			JobChunkSize:  1000,
			MaxAttempts:   3,
		},
	}
}

// --- Mocks ---

// mockTokenStore satisfies New(); a poison message never reaches it.
type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) Register(ctx context.Context, user urn.URN, token string) error {
	return m.Called(ctx, user, token).Error(0)
}
func (m *mockTokenStore) Unregister(ctx context.Context, user urn.URN, token string) error {
	return m.Called(ctx, user, token).Error(0)
}
func (m *mockTokenStore) Fetch(ctx context.Context, user urn.URN) ([]string, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *mockTokenStore) PruneTokens(ctx context.Context, tokens []string) ([]urn.URN, error) {
	args := m.Called(ctx, tokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]urn.URN), args.Error(1)
}

