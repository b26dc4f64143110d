package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yunqiqiliang/embedgate/internal/cache"
	"github.com/yunqiqiliang/embedgate/internal/core"
)

// DashboardService lists published dashboards through the dashboard cache.
type DashboardService struct {
	credentials CredentialSource
	source      core.DashboardSource
	cache       *cache.DashboardCache
	ttl         time.Duration
}

func NewDashboardService(
	credentials CredentialSource,
	source core.DashboardSource,
	dashboards *cache.DashboardCache,
	ttl time.Duration,
) *DashboardService {
	if ttl <= 0 {
		ttl = cache.DefaultDashboardTTL
	}
	return &DashboardService{
		credentials: credentials,
		source:      source,
		cache:       dashboards,
		ttl:         ttl,
	}
}

// List returns the published dashboards. Failures are never answered with stale data.
func (s *DashboardService) List(ctx context.Context) ([]core.DashboardSummary, error) {
	dashboards, err := s.cache.Get(ctx, s.load)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int("upstream_status", core.UpstreamStatus(err)).
			Msg("listing dashboards failed")
		return nil, fmt.Errorf("%w: %w", core.ErrListingFailed, err)
	}
	if dashboards == nil {
		dashboards = []core.DashboardSummary{}
	}
	return dashboards, nil
}

func (s *DashboardService) load(ctx context.Context) ([]core.DashboardSummary, time.Duration, error) {
	credential, err := s.credentials.Get(ctx)
	if err != nil {
		return nil, 0, err
	}
	records, err := s.source.ListDashboards(ctx, credential)
	if err != nil {
		dropRejectedCredential(ctx, s.credentials, err)
		return nil, 0, err
	}
	return PublishedSummaries(records), s.ttl, nil
}

// PublishedSummaries projects records and keeps only the published ones.
func PublishedSummaries(records []core.DashboardRecord) []core.DashboardSummary {
	out := make([]core.DashboardSummary, 0, len(records))
	for _, r := range records {
		summary := r.Summary()
		if !summary.Published {
			continue
		}
		out = append(out, summary)
	}
	return out
}
