package api

import (
	"context"
	"net/http"

	"github.com/yunqiqiliang/embedgate/internal/api/middleware"
	"github.com/yunqiqiliang/embedgate/internal/api/presenter"
	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/obs"
	"github.com/yunqiqiliang/embedgate/internal/ratelimit"
	"github.com/yunqiqiliang/embedgate/internal/service"
)

// DefaultMaxBodyBytes bounds JSON request bodies.
const DefaultMaxBodyBytes = 64 << 10

type GuestTokenIssuer interface {
	Issue(ctx context.Context, req core.GuestTokenRequest) (*core.GuestTokenResponse, error)
}

type DashboardLister interface {
	List(ctx context.Context) ([]core.DashboardSummary, error)
}

type HealthReporter interface {
	Check(ctx context.Context) service.HealthReport
}

type Options struct {
	AllowedOrigins []string

	// TrustProxy makes the client address come from X-Forwarded-For.
	TrustProxy bool

	MaxBodyBytes int64

	// GeneralLimiter applies to all routes, GuestTokenLimiter to the mint route.
	// A nil limiter disables the policy.
	GeneralLimiter    *ratelimit.Limiter
	GuestTokenLimiter *ratelimit.Limiter
}

type Server struct {
	guestTokens GuestTokenIssuer
	dashboards  DashboardLister
	health      HealthReporter
	opts        Options
}

func NewServer(
	guestTokens GuestTokenIssuer,
	dashboards DashboardLister,
	health HealthReporter,
	opts Options,
) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{
		guestTokens: guestTokens,
		dashboards:  dashboards,
		health:      health,
		opts:        opts,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	mux.HandleFunc("GET "+DashboardsRoute, s.handleDashboards)

	// guest token route
	var issue http.Handler = http.HandlerFunc(s.handleGuestToken)
	if s.opts.GuestTokenLimiter != nil {
		issue = middleware.RateLimit(s.opts.GuestTokenLimiter, middleware.DashboardKey(s.opts.TrustProxy))(issue)
	}
	mux.Handle("POST "+GuestTokenRoute, middleware.BodyLimit(s.opts.MaxBodyBytes)(issue))

	mux.HandleFunc("/", presenter.NotFound)

	var handler http.Handler = mux
	if s.opts.GeneralLimiter != nil {
		handler = middleware.RateLimit(s.opts.GeneralLimiter, middleware.IPKey(s.opts.TrustProxy))(handler)
	}
	handler = middleware.CORS(s.opts.AllowedOrigins)(handler)
	handler = obs.Instrument(handler, func(r *http.Request) string {
		return routeLabel(r.URL.Path)
	})

	return middleware.CorrelationIDMiddleware(
		middleware.LoggingMiddleware(
			middleware.RecoverMiddleware(
				middleware.SecurityHeaders(
					handler))))
}
