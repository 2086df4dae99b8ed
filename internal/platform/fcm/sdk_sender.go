package fcm

import (
	"context"
	"log/slog"
	"net/http"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-broadcast-service/internal/payload"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// SDKSender sends through the Admin SDK, which manages its own OAuth token;
// the access token handed in by the engine is ignored.
type SDKSender struct {
	client MessagingClient
	logger *slog.Logger
}

func NewSDKSender(client MessagingClient, logger *slog.Logger) *SDKSender {
	return &SDKSender{
		client: client,
		logger: logger.With("component", "FCMSDKSender"),
	}
}

// Send implements dispatch.Sender. The SDK hides HTTP statuses, so the
// status is reconstructed from the error class.
func (s *SDKSender) Send(ctx context.Context, _ string, msg payload.Payload) (int, error) {
	id, err := s.client.Send(ctx, &messaging.Message{
		Token: msg.Message.Token,
		Data:  msg.Message.Data,
		Notification: &messaging.Notification{
			Title: msg.Message.Notification.Title,
			Body:  msg.Message.Notification.Body,
		},
	})
	if err != nil {
		return classifySDKError(err)
	}
	s.logger.Debug("FCM accepted message", "message_id", id)
	return http.StatusOK, nil
}

func classifySDKError(err error) (int, error) {
	switch {
	case messaging.IsUnregistered(err):
		return http.StatusNotFound, &notify.GatewayFatalError{Status: http.StatusNotFound, Unregistered: true, Err: err}
	case messaging.IsInvalidArgument(err):
		return http.StatusBadRequest, &notify.GatewayFatalError{Status: http.StatusBadRequest, Err: err}
	case messaging.IsSenderIDMismatch(err), messaging.IsThirdPartyAuthError(err):
		return http.StatusForbidden, &notify.GatewayFatalError{Status: http.StatusForbidden, Err: err}
	case messaging.IsQuotaExceeded(err):
		return http.StatusTooManyRequests, &notify.GatewayTransientError{Status: http.StatusTooManyRequests, Err: err}
	case messaging.IsUnavailable(err):
		return http.StatusServiceUnavailable, &notify.GatewayTransientError{Status: http.StatusServiceUnavailable, Err: err}
	case messaging.IsInternal(err):
		return http.StatusInternalServerError, &notify.GatewayTransientError{Status: http.StatusInternalServerError, Err: err}
	}
	// Network failure or an unclassified error.
	return 0, &notify.GatewayTransientError{Err: err}
}
