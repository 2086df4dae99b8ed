// Package fcm delivers messages through Firebase Cloud Messaging, either by
// posting to the HTTP v1 API directly or through the Firebase Admin SDK.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-broadcast-service/internal/payload"
	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// maxErrorBody caps how much of a rejected response is kept in the error.
const maxErrorBody = 4 << 10

// EndpointResolver returns the messages:send URL for the configured project.
type EndpointResolver interface {
	Endpoint() (string, error)
}

// HTTPSender posts one message per call to the FCM HTTP v1 endpoint.
type HTTPSender struct {
	client   *http.Client
	endpoint EndpointResolver
	logger   *slog.Logger
}

// NewHTTPSender uses a client with a 30s timeout when client is nil.
func NewHTTPSender(client *http.Client, endpoint EndpointResolver, logger *slog.Logger) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSender{
		client:   client,
		endpoint: endpoint,
		logger:   logger.With("component", "FCMHTTPSender"),
	}
}

// errorResponse is the google.rpc.Status envelope FCM returns on failure.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// Send implements dispatch.Sender.
func (s *HTTPSender) Send(ctx context.Context, accessToken string, msg payload.Payload) (int, error) {
	url, err := s.endpoint.Endpoint()
	if err != nil {
		return 0, &notify.GatewayFatalError{Err: err}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return 0, &notify.GatewayFatalError{Err: fmt.Errorf("failed to encode message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, &notify.GatewayFatalError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, &notify.GatewayTransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode, classifyStatus(resp.StatusCode, raw)
}

// errorCodeUnregistered is the FcmError detail for a token that no longer
// exists. Only this verdict marks a token for removal.
const errorCodeUnregistered = "UNREGISTERED"

// classifyStatus maps a non-2xx status to the retry taxonomy: throttling
// and server errors are transient, everything else is the caller's fault.
func classifyStatus(status int, raw []byte) error {
	code, err := describe(raw)
	if status == http.StatusTooManyRequests || status >= 500 {
		return &notify.GatewayTransientError{Status: status, Err: err}
	}
	return &notify.GatewayFatalError{Status: status, Unregistered: code == errorCodeUnregistered, Err: err}
}

// describe renders the gateway error body and extracts the FcmError code,
// if any.
func describe(raw []byte) (string, error) {
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Error.Status == "" {
		return "", fmt.Errorf("%s", bytes.TrimSpace(raw))
	}
	for _, d := range parsed.Error.Details {
		if d.ErrorCode != "" {
			return d.ErrorCode, fmt.Errorf("%s (%s): %s", parsed.Error.Status, d.ErrorCode, parsed.Error.Message)
		}
	}
	return "", fmt.Errorf("%s: %s", parsed.Error.Status, parsed.Error.Message)
}
