package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

const (
	CredentialKey = "superset:access_token"

	// DefaultCredentialLifetime is assumed when the upstream token carries no expiry.
	DefaultCredentialLifetime = 14 * time.Minute

	// DefaultCredentialBuffer keeps a credential valid for requests racing its expiry.
	DefaultCredentialBuffer = 60 * time.Second
)

type CredentialConfig struct {
	// Lifetime is used when the access token has no readable exp claim.
	Lifetime time.Duration
	// Buffer is subtracted from the lifetime before caching.
	Buffer time.Duration
}

// CredentialCache holds the current upstream session credential.
type CredentialCache struct {
	cache  *ReadThrough[core.SessionCredential]
	auth   core.Authenticator
	config CredentialConfig
}

func NewCredentialCache(store core.Store, auth core.Authenticator, config CredentialConfig) *CredentialCache {
	if config.Lifetime <= 0 {
		config.Lifetime = DefaultCredentialLifetime
	}
	if config.Buffer < 0 {
		config.Buffer = 0
	}
	return &CredentialCache{
		cache:  NewReadThrough[core.SessionCredential]("credential", CredentialKey, store),
		auth:   auth,
		config: config,
	}
}

// WithClock replaces the clock used for expiry checks.
func (c *CredentialCache) WithClock(now func() time.Time) *CredentialCache {
	c.cache.WithClock(now)
	return c
}

// Get returns the current session credential, logging in upstream on a miss.
// Login failures are never cached and are returned wrapping core.ErrUpstreamAuth.
func (c *CredentialCache) Get(ctx context.Context) (core.SessionCredential, error) {
	return c.cache.Get(ctx, c.login)
}

// Invalidate drops the current credential, e.g. after the upstream rejected it.
func (c *CredentialCache) Invalidate(ctx context.Context) error {
	return c.cache.Invalidate(ctx)
}

func (c *CredentialCache) login(ctx context.Context) (core.SessionCredential, time.Duration, error) {
	logger := log.Ctx(ctx)
	logger.Info().Msg("fetching new upstream access token")

	token, err := c.auth.Login(ctx)
	if err != nil {
		return core.SessionCredential{}, 0, fmt.Errorf("%w: %w", core.ErrUpstreamAuth, err)
	}

	now := c.cache.now()
	lifetime := CredentialLifetime(token, now, c.config.Lifetime)
	ttl := lifetime - c.config.Buffer
	if ttl <= 0 {
		logger.Warn().
			Dur("lifetime", lifetime).
			Dur("buffer", c.config.Buffer).
			Msg("upstream access token expires within the safety buffer, not caching it")
		ttl = 0
	}

	credential := core.SessionCredential{
		Value:    token,
		IssuedAt: now,
		TTL:      ttl,
	}
	logger.Info().Dur("ttl", ttl).Msg("upstream access token obtained")
	return credential, ttl, nil
}

// CredentialLifetime returns how long token stays valid according to its exp claim.
// The signature is not checked: the token is only forwarded to its own issuer.
// fallback is returned when the token is not a JWT or has no exp claim.
func CredentialLifetime(token string, now time.Time, fallback time.Duration) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Sub(now)
}
