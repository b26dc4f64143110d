package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yunqiqiliang/embedgate/internal/api/presenter"
	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/obs"
	"github.com/yunqiqiliang/embedgate/internal/ratelimit"
	"github.com/yunqiqiliang/embedgate/internal/validation"
)

const unknownDashboard = "unknown"

// KeyFunc derives the rate limit key of a request.
type KeyFunc func(r *http.Request) (string, error)

// RateLimit rejects requests over the limiter's budget before they reach next.
// Counter failures admit the request.
func RateLimit(limiter *ratelimit.Limiter, key KeyFunc) func(http.Handler) http.Handler {
	policy := limiter.Policy()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			k, err := key(r)
			if err != nil {
				presenter.Err(w, r, err)
				return
			}

			decision, err := limiter.Allow(ctx, k)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("policy", policy.Name).
					Msg("rate limit counter unavailable, admitting request")
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(int(decision.RetryAfter(now)/time.Second)))

			if !decision.Allowed {
				obs.RateLimitRejections.WithLabelValues(policy.Name).Inc()
				log.Ctx(ctx).Warn().Str("policy", policy.Name).Str("key", k).Msg("rate limit exceeded")
				h.Set("Retry-After", strconv.Itoa(int(decision.RetryAfter(now)/time.Second)))
				presenter.Err(w, r, fmt.Errorf("%w: policy %s", core.ErrRateLimited, policy.Name))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the client address. X-Forwarded-For is honored only behind a trusted proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IPKey keys requests by client address.
func IPKey(trustProxy bool) KeyFunc {
	return func(r *http.Request) (string, error) {
		return ClientIP(r, trustProxy), nil
	}
}

// DashboardKey keys requests by client address and the dashboardId of the JSON body.
// The body is restored for the next handler.
func DashboardKey(trustProxy bool) KeyFunc {
	return func(r *http.Request) (string, error) {
		dashboard := unknownDashboard
		if r.Body != nil {
			data, err := io.ReadAll(r.Body)
			_ = r.Body.Close()
			if err != nil {
				return "", err
			}
			r.Body = io.NopCloser(bytes.NewReader(data))
			dashboard = dashboardFromBody(data)
		}
		return ClientIP(r, trustProxy) + ":" + dashboard, nil
	}
}

func dashboardFromBody(data []byte) string {
	var probe struct {
		DashboardID any `json:"dashboardId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return unknownDashboard
	}
	var id string
	switch v := probe.DashboardID.(type) {
	case string:
		id = v
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	}
	// long garbage shares one bucket so it cannot grow the counter keyspace
	if id == "" || len(id) > 64 {
		return unknownDashboard
	}
	// one budget per dashboard regardless of how the caller spells its id
	if u, err := validation.ParseDashboardID(id); err == nil {
		return u.String()
	}
	return id
}
