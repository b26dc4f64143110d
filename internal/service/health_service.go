package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	serviceOK = "ok"

	// DefaultPingTimeout bounds the cache probe of a health check.
	DefaultPingTimeout = 2 * time.Second
)

type HealthReport struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func (h HealthReport) Healthy() bool {
	return h.Status == StatusHealthy
}

// HealthService probes the backing store and the upstream.
type HealthService struct {
	store       core.Store
	upstream    core.HealthChecker
	pingTimeout time.Duration
	now         func() time.Time
}

func NewHealthService(store core.Store, upstream core.HealthChecker) *HealthService {
	return &HealthService{
		store:       store,
		upstream:    upstream,
		pingTimeout: DefaultPingTimeout,
		now:         time.Now,
	}
}

// WithPingTimeout replaces the cache probe timeout.
func (s *HealthService) WithPingTimeout(d time.Duration) *HealthService {
	if d > 0 {
		s.pingTimeout = d
	}
	return s
}

func (s *HealthService) Check(ctx context.Context) HealthReport {
	logger := log.Ctx(ctx)

	if err := s.ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("health check: cache unreachable")
		return s.unhealthy("cache unavailable")
	}
	if err := s.upstream.Health(ctx); err != nil {
		logger.Warn().Err(err).Int("upstream_status", core.UpstreamStatus(err)).
			Msg("health check: upstream unreachable")
		return s.unhealthy("upstream unavailable")
	}

	return HealthReport{
		Status:    StatusHealthy,
		Timestamp: s.now().UTC(),
		Services: map[string]string{
			"cache":    serviceOK,
			"upstream": serviceOK,
		},
	}
}

func (s *HealthService) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	return s.store.Ping(ctx)
}

func (s *HealthService) unhealthy(reason string) HealthReport {
	return HealthReport{
		Status:    StatusUnhealthy,
		Timestamp: s.now().UTC(),
		Error:     reason,
	}
}
