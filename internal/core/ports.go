package core

import "context"

// Authenticator exchanges the configured administrator identity for a session credential.
type Authenticator interface {
	// Login performs the upstream login and returns the raw access token.
	Login(ctx context.Context) (string, error)
}

// GuestTokenMinter mints guest tokens on behalf of a session credential.
type GuestTokenMinter interface {
	MintGuestToken(ctx context.Context, credential SessionCredential, payload GuestTokenPayload) (string, error)
}

// DashboardSource lists the dashboards known to the upstream authority.
type DashboardSource interface {
	ListDashboards(ctx context.Context, credential SessionCredential) ([]DashboardRecord, error)
}

// HealthChecker probes a dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Upstream is the full surface of the analytics platform used by the broker.
type Upstream interface {
	Authenticator
	GuestTokenMinter
	DashboardSource
	HealthChecker
}
