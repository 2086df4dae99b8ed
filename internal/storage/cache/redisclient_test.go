//go:build integration

package cache_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/illmade-knight/go-test/emulators"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-broadcast-service/internal/credential"
	"github.com/tinywideclouds/go-broadcast-service/internal/storage/cache"
)

type fixedSource struct{ calls int }

func (s *fixedSource) Fetch(context.Context) (credential.Token, error) {
	s.calls++
	return credential.Token{Value: "shared-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func TestRedisClient_SharedCredential(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	connInfo := emulators.SetupRedisContainer(t, context.Background(), emulators.GetDefaultRedisImageContainer())

	client, err := cache.NewRedisClient(connInfo.EmulatorAddress, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	var missing credential.Token
	assert.ErrorIs(t, client.Get(ctx, "absent", &missing), redis.Nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := credential.Config{ProjectID: "p", URLTemplate: "https://example.test/:project_id"}

	// Two managers stand in for two worker processes sharing one Redis.
	source := &fixedSource{}
	first := credential.NewManager(cfg, source, client, logger)
	second := credential.NewManager(cfg, source, client, logger)

	tok, err := first.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shared-token", tok)

	tok, err = second.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shared-token", tok)
	assert.Equal(t, 1, source.calls)

	require.NoError(t, client.Del(ctx, credential.DefaultCacheKey))
	_, err = second.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}
