//go:build integration

package broadcastservice_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-broadcast-service/broadcastservice"
	"github.com/tinywideclouds/go-broadcast-service/internal/api"
	psQueue "github.com/tinywideclouds/go-broadcast-service/internal/platform/pubsub"
	fsStore "github.com/tinywideclouds/go-broadcast-service/internal/storage/firestore"
)

// --- TEST ---

func TestBroadcastService_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-project-integ"

	// 1. Emulators
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(ctx, projectID, fsConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsClient.Close() })

	tokenStore := fsStore.NewTokenStore(fsClient)
	recordStore := fsStore.NewRecordStore(fsClient)

	t.Run("Full Lifecycle: Register -> Send -> Queue -> Dispatch", func(t *testing.T) {
		topicID := "broadcast-jobs-" + uuid.NewString()
		subID := topicID + "-sub"
		createPubsubResources(t, ctx, psClient, projectID, topicID, subID)

		consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(subID)
		consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
		require.NoError(t, err)

		sender := &recordingSender{}
		svc, err := broadcastservice.New(testConfig(subID, topicID), broadcastservice.Dependencies{
			Consumer:       consumer,
			TokenStore:     tokenStore,
			RecordStore:    recordStore,
			JobQueue:       psQueue.NewJobQueue(psClient.Publisher(topicID)),
			Gateway:        fakeGateway{},
			Sender:         sender,
			AuthMiddleware: func(h http.Handler) http.Handler { return h },
			Registry:       prometheus.NewRegistry(),
		}, logger)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		// Step A: register a device
		userURN, _ := urn.Parse("urn:sm:user:integ-user")
		require.NoError(t, tokenStore.Register(ctx, userURN, "android-token-999"))

		// Step B: send through the HTTP API
		body, _ := json.Marshal(api.SendNotificationRequest{
			Recipients: []string{userURN.String()},
			Title:      map[string]string{"en": "Hello", "ar": "مرحبا"},
			Body:       map[string]string{"en": "World"},
			Related:    &api.RelatedEntity{Type: "App\\Models\\Order", ID: "42"},
		})
		w := httptest.NewRecorder()
		svc.Mux().ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/notifications", bytes.NewReader(body)))
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

		// Assert: the gateway receives the assembled message for the token
		require.Eventually(t, func() bool {
			return len(sender.Sent()) == 1
		}, 15*time.Second, 100*time.Millisecond)

		msg := sender.Sent()[0].Message
		assert.Equal(t, "android-token-999", msg.Token)
		assert.Equal(t, "Hello", msg.Notification.Title)
		assert.Equal(t, "World", msg.Notification.Body)
		assert.Equal(t, "مرحبا", msg.Data["title_ar"])
		assert.Equal(t, "order", msg.Data["screen"])
		assert.Equal(t, "42", msg.Data["id"])

		// The record was saved for the recipient.
		docs, err := fsClient.Collection("notifications").Where("model_id", "==", userURN.String()).Documents(ctx).GetAll()
		require.NoError(t, err)
		assert.Len(t, docs, 1)

		// Metrics are exposed.
		mw := httptest.NewRecorder()
		svc.Mux().ServeHTTP(mw, httptest.NewRequest("GET", "/metrics", nil))
		assert.Contains(t, mw.Body.String(), "broadcast_dispatch_outcomes_total")
	})
}

func createPubsubResources(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})

	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	sub := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}
