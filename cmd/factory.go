package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/yunqiqiliang/embedgate/internal/api"
	"github.com/yunqiqiliang/embedgate/internal/audit"
	"github.com/yunqiqiliang/embedgate/internal/cache"
	"github.com/yunqiqiliang/embedgate/internal/config"
	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/logging"
	"github.com/yunqiqiliang/embedgate/internal/ratelimit"
	"github.com/yunqiqiliang/embedgate/internal/service"
	"github.com/yunqiqiliang/embedgate/internal/store"
	"github.com/yunqiqiliang/embedgate/internal/upstream"
	"github.com/yunqiqiliang/embedgate/pkg/client"
)

const (
	RemoteAddrKey    = "remote.addr"
	RemoteOriginKey  = "remote.origin"
	RemoteTimeoutKey = "remote.timeout"
)

type Factory struct {
	// RemoteAddr is the address of the Embedgate broker to connect to.
	RemoteAddr string

	// Origin is sent with client requests so CORS protected brokers accept them.
	Origin string
}

func NewFactory() *Factory {
	return &Factory{}
}

// GetClient returns a client for a running broker.
func (f *Factory) GetClient() (*client.Client, error) {
	server := f.RemoteAddr // prio 1: command-line flag
	if server == "" {
		server = viper.GetString(RemoteAddrKey) // prio 2: config/env
	}
	if server == "" {
		return nil, fmt.Errorf("server address not configured (use --server or set EMBEDGATE_REMOTE_ADDR)")
	}

	origin := f.Origin
	if origin == "" {
		origin = viper.GetString(RemoteOriginKey)
	}

	var opts []client.Option
	if origin != "" {
		opts = append(opts, client.WithOrigin(origin))
	}
	if timeout := viper.GetDuration(RemoteTimeoutKey); timeout > 0 {
		opts = append(opts, client.WithTimeout(timeout))
	}
	return client.New(server, opts...), nil
}

// LoadConfig decodes and validates the broker configuration.
func (f *Factory) LoadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// Runtime is a fully wired broker.
type Runtime struct {
	Handler http.Handler
	Store   core.Store
	Auditor core.Auditor
}

// Close releases the backing store connection and the audit sink.
func (r *Runtime) Close() error {
	return errors.Join(r.Auditor.Close(), r.Store.Close())
}

// BuildRuntime connects the backing store and wires caches, services and routes.
func (f *Factory) BuildRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	redis.SetLogger(logging.NewRedisLogger(zerolog.WarnLevel))

	log.Info().Str("backend", cfg.Cache.Backend).Msg("Connecting cache backend...")
	st, err := store.Open(ctx, cfg.Cache.Backend, cfg.Cache.RedisURL, cfg.Cache.MemoryEntries)
	if err != nil {
		return nil, fmt.Errorf("opening cache backend: %w", err)
	}

	up, err := upstream.New(upstream.Config{
		BaseURL:       cfg.Upstream.URL,
		Username:      cfg.Upstream.Username,
		Password:      cfg.Upstream.Password,
		Provider:      cfg.Upstream.Provider,
		Timeout:       cfg.Upstream.Timeout,
		HealthTimeout: cfg.Upstream.HealthTimeout,
		MaxRPS:        cfg.Upstream.MaxRPS,
		Burst:         cfg.Upstream.Burst,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating upstream client: %w", err)
	}

	auditor, err := audit.Open(cfg.Audit.Backend, cfg.Audit.Path, cfg.Audit.MaxEntries)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	opts := api.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustProxy:     cfg.Server.TrustProxy,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}
	if cfg.RateLimit.Enabled {
		if opts.GeneralLimiter, opts.GuestTokenLimiter, err = buildLimiters(st, cfg.RateLimit); err != nil {
			_ = auditor.Close()
			_ = st.Close()
			return nil, err
		}
	} else {
		log.Warn().Msg("Rate limiting is disabled")
	}

	credentials := cache.NewCredentialCache(st, up, cache.CredentialConfig{
		Lifetime: cfg.Cache.CredentialLifetime,
		Buffer:   cfg.Cache.CredentialBuffer,
	})

	srv := api.NewServer(
		service.NewGuestTokenService(credentials, up, auditor, cfg.Upstream.RLSField),
		service.NewDashboardService(credentials, up, cache.NewDashboardCache(st), cfg.Cache.DashboardTTL),
		service.NewHealthService(st, up),
		opts,
	)

	return &Runtime{
		Handler: srv.Routes(),
		Store:   st,
		Auditor: auditor,
	}, nil
}

// buildLimiters shares rate limit windows through Redis when the cache does.
func buildLimiters(st core.Store, cfg config.RateLimitConfig) (*ratelimit.Limiter, *ratelimit.Limiter, error) {
	var counter ratelimit.Counter
	if rs, ok := st.(*store.RedisStore); ok {
		rc, err := ratelimit.NewRedisCounter(rs.Client())
		if err != nil {
			return nil, nil, err
		}
		counter = rc
	} else {
		mc, err := ratelimit.NewMemoryCounter(cfg.MaxKeys)
		if err != nil {
			return nil, nil, fmt.Errorf("creating rate limit counter: %w", err)
		}
		counter = mc
	}

	general, err := ratelimit.NewLimiter(ratelimit.Policy{
		Name:   ratelimit.General.Name,
		Limit:  cfg.General.Limit,
		Window: cfg.General.Window,
	}, counter)
	if err != nil {
		return nil, nil, err
	}
	guest, err := ratelimit.NewLimiter(ratelimit.Policy{
		Name:   ratelimit.GuestToken.Name,
		Limit:  cfg.GuestToken.Limit,
		Window: cfg.GuestToken.Window,
	}, counter)
	if err != nil {
		return nil, nil, err
	}
	return general, guest, nil
}
