// Package credential acquires and caches the short-lived bearer token used
// to call the push gateway.
package credential

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheKey is shared by every process that talks to the same
	// gateway project.
	DefaultCacheKey = "broadcast:gateway:access_token"
	// DefaultTTL is kept below the one hour lifetime of Google access tokens.
	DefaultTTL = 30 * time.Minute

	projectPlaceholder = ":project_id"
)

// Cache is the subset of the shared cache the manager needs. A Get that
// misses returns a non-nil error.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Source issues new access tokens.
type Source interface {
	Fetch(ctx context.Context) (Token, error)
}

// Token is the cached credential. A zero ExpiresAt means the source gave no
// expiry and the cache TTL alone bounds its lifetime.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t Token) valid(now time.Time) bool {
	return t.Value != "" && (t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt))
}

// Config identifies the gateway the token is for.
type Config struct {
	ProjectID   string
	URLTemplate string
	TTL         time.Duration
	CacheKey    string
}

// Manager hands out the cached token, refreshing it on a miss. Concurrent
// misses in one process share a single fetch; across processes the last
// writer wins, which is harmless because issuance has no side effects.
type Manager struct {
	cfg    Config
	source Source
	cache  Cache
	group  singleflight.Group
	logger *slog.Logger
}

func NewManager(cfg Config, source Source, cache Cache, logger *slog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CacheKey == "" {
		cfg.CacheKey = DefaultCacheKey
	}
	return &Manager{
		cfg:    cfg,
		source: source,
		cache:  cache,
		logger: logger.With("component", "CredentialManager"),
	}
}

// Validate checks the gateway settings needed before any network call.
func (m *Manager) Validate() error {
	if strings.TrimSpace(m.cfg.ProjectID) == "" {
		return &notify.MissingCredentialConfigError{Field: "project_id"}
	}
	if strings.TrimSpace(m.cfg.URLTemplate) == "" {
		return &notify.MissingCredentialConfigError{Field: "url"}
	}
	return nil
}

// Endpoint is the URL template with the project id substituted.
func (m *Manager) Endpoint() (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	return strings.ReplaceAll(m.cfg.URLTemplate, projectPlaceholder, m.cfg.ProjectID), nil
}

// AccessToken returns a valid bearer token.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	if tok, ok := m.lookup(ctx); ok {
		return tok.Value, nil
	}

	v, err, _ := m.group.Do(m.cfg.CacheKey, func() (interface{}, error) {
		// Another caller may have refreshed while we waited.
		if tok, ok := m.lookup(ctx); ok {
			return tok, nil
		}
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(Token).Value, nil
}

func (m *Manager) lookup(ctx context.Context) (Token, bool) {
	var tok Token
	if err := m.cache.Get(ctx, m.cfg.CacheKey, &tok); err != nil {
		return Token{}, false
	}
	return tok, tok.valid(time.Now())
}

func (m *Manager) refresh(ctx context.Context) (Token, error) {
	tok, err := m.source.Fetch(ctx)
	if err != nil {
		return Token{}, &notify.CredentialFetchError{Err: err}
	}
	if tok.Value == "" {
		return Token{}, &notify.CredentialFetchError{Err: errors.New("issuer returned an empty token")}
	}

	ttl := m.cfg.TTL
	if !tok.ExpiresAt.IsZero() {
		if remaining := time.Until(tok.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		if err := m.cache.Set(ctx, m.cfg.CacheKey, tok, ttl); err != nil {
			m.logger.Warn("Failed to cache access token", "err", err)
		}
	}
	m.logger.Debug("Refreshed gateway access token", "expires_at", tok.ExpiresAt, "ttl", ttl)
	return tok, nil
}
