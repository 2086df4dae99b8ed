package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-broadcast-service/pkg/registry"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or an error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTokenStore is a Decorator that adds Read-Aside caching to any TokenStore.
type CachedTokenStore struct {
	realStore registry.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

// NewCachedTokenStore creates the decorator.
func NewCachedTokenStore(realStore registry.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedTokenStore) Fetch(ctx context.Context, user urn.URN) ([]string, error) {
	key := s.cacheKey(user)

	var cached []string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.Fetch(ctx, user)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization; if Redis is down we serve from the DB.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)

	return fresh, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedTokenStore) Register(ctx context.Context, user urn.URN, token string) error {
	if err := s.realStore.Register(ctx, user, token); err != nil {
		return err
	}
	return s.invalidate(ctx, user)
}

// Unregister must clear the cache even though the DB write succeeded, or
// the device keeps receiving notifications until the entry expires.
func (s *CachedTokenStore) Unregister(ctx context.Context, user urn.URN, token string) error {
	if err := s.realStore.Unregister(ctx, user, token); err != nil {
		return err
	}
	return s.invalidate(ctx, user)
}

// PruneTokens invalidates every owner the real store reports, even when the
// prune only partly succeeded.
func (s *CachedTokenStore) PruneTokens(ctx context.Context, tokens []string) ([]urn.URN, error) {
	owners, err := s.realStore.PruneTokens(ctx, tokens)

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, owner := range owners {
		if invErr := s.invalidate(ctx, owner); invErr != nil {
			errs = append(errs, fmt.Errorf("failed to invalidate %s: %w", owner, invErr))
		}
	}
	return owners, errors.Join(errs...)
}

// --- Helpers ---

func (s *CachedTokenStore) invalidate(ctx context.Context, user urn.URN) error {
	return s.cache.Del(ctx, s.cacheKey(user))
}

func (s *CachedTokenStore) cacheKey(user urn.URN) string {
	return fmt.Sprintf("broadcast:tokens:%s", user.String())
}
