package service

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

// CredentialSource hands out the cached administrator session credential.
type CredentialSource interface {
	Get(ctx context.Context) (core.SessionCredential, error)
	Invalidate(ctx context.Context) error
}

// dropRejectedCredential invalidates the cached credential when the upstream no longer accepts it.
// The current request is not retried; the next one logs in again.
func dropRejectedCredential(ctx context.Context, credentials CredentialSource, err error) {
	if core.UpstreamStatus(err) != http.StatusUnauthorized {
		return
	}
	log.Ctx(ctx).Warn().Msg("upstream rejected the cached credential, invalidating it")
	if err := credentials.Invalidate(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to invalidate cached credential")
	}
}
