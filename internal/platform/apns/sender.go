// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sideshow/apns2"
	apnspayload "github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-broadcast-service/internal/payload"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// APNSClient defines the subset of the apns2.Client methods we use.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw content of the .p8 file.
	P8KeyContent string
	Sandbox      bool
}

// Sender delivers to APNs device tokens. APNs authenticates with its own
// signed JWT, so the gateway access token from the engine is unused.
type Sender struct {
	client APNSClient
	topic  string
	logger *slog.Logger
}

// NewSender parses the P8 key immediately to fail fast on bad credentials.
func NewSender(cfg Config, logger *slog.Logger) (*Sender, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return NewSenderWithClient(client, cfg.BundleID, logger), nil
}

func NewSenderWithClient(client APNSClient, topic string, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSSender"),
	}
}

// Send implements dispatch.Sender.
func (s *Sender) Send(ctx context.Context, _ string, msg payload.Payload) (int, error) {
	body := apnspayload.NewPayload().
		AlertTitle(msg.Message.Notification.Title).
		AlertBody(msg.Message.Notification.Body)
	for k, v := range msg.Message.Data {
		body.Custom(k, v)
	}

	res, err := s.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: msg.Message.Token,
		Topic:       s.topic,
		Payload:     body,
	})
	if err != nil {
		return 0, &notify.GatewayTransientError{Err: err}
	}
	if res.Sent() {
		return res.StatusCode, nil
	}

	reason := errors.New(res.Reason)
	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return res.StatusCode, &notify.GatewayTransientError{Status: res.StatusCode, Err: reason}
	case res.Reason == apns2.ReasonBadDeviceToken, res.Reason == apns2.ReasonUnregistered:
		// Dead token.
		return res.StatusCode, &notify.GatewayFatalError{Status: res.StatusCode, Unregistered: true, Err: reason}
	default:
		// Token may be fine but our configuration is not.
		s.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		return res.StatusCode, &notify.GatewayFatalError{Status: res.StatusCode, Err: reason}
	}
}
