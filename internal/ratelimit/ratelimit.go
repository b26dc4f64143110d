// Package ratelimit implements fixed window admission control shared by all broker instances.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Policy is a fixed window budget: Limit hits per Window and key.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

var (
	// General applies to every route, keyed by client address.
	General = Policy{Name: "general", Limit: 100, Window: 15 * time.Minute}

	// GuestToken applies to the mint route, keyed by client address and dashboard.
	GuestToken = Policy{Name: "guest-token", Limit: 50, Window: time.Hour}
)

// Counter counts hits of a key within a window.
// The first hit of a key opens the window. It returns the count including
// this hit and the time the window closes.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time until the window closes, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(wait.Seconds())) * time.Second
}

type Limiter struct {
	policy  Policy
	counter Counter
}

func NewLimiter(policy Policy, counter Counter) (*Limiter, error) {
	if policy.Limit <= 0 || policy.Window <= 0 {
		return nil, fmt.Errorf("rate limit policy %q needs a positive limit and window", policy.Name)
	}
	if counter == nil {
		return nil, fmt.Errorf("rate limit policy %q has no counter", policy.Name)
	}
	return &Limiter{policy: policy, counter: counter}, nil
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

// Allow records a hit for key and reports whether it is within the budget.
// On a counter error the decision admits the request and the error is returned for logging.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, resetAt, err := l.counter.Incr(ctx, "ratelimit:"+l.policy.Name+":"+key, l.policy.Window)
	if err != nil {
		return Decision{Allowed: true, Limit: l.policy.Limit, Remaining: l.policy.Limit}, err
	}
	remaining := int64(l.policy.Limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(l.policy.Limit),
		Limit:     l.policy.Limit,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}, nil
}
