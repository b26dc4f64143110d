package core

import "time"

// GuestTokenValidity is the validity declared to callers of the guest token endpoint.
// It does not depend on the expiry the upstream encodes into the token.
const GuestTokenValidity = 5 * time.Minute

// SessionCredential is the upstream bearer credential obtained via the administrator login.
// It must only ever be used as an outbound Authorization header value.
type SessionCredential struct {
	// Value is the raw bearer token.
	Value string `json:"value"`

	// IssuedAt is the time the credential was obtained.
	IssuedAt time.Time `json:"issued_at"`

	// TTL is how long the credential is considered current, safety buffer already subtracted.
	TTL time.Duration `json:"ttl"`
}

// ExpiresAt returns the point in time after which the credential is no longer used.
func (c SessionCredential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}

// String never prints the credential value.
func (c SessionCredential) String() string {
	return "SessionCredential(issued_at=" + c.IssuedAt.Format(time.RFC3339) + ", ttl=" + c.TTL.String() + ")"
}

// GuestTokenRequest is the caller supplied input to the mint flow.
// All fields are raw and unvalidated.
type GuestTokenRequest struct {
	// DashboardID must be a canonical UUID.
	DashboardID string

	// RequesterID is optional. If set, it must be a positive base-10 integer.
	RequesterID string

	// DisplayName is optional. Defaults are applied when empty.
	DisplayName string
}

// GuestTokenResponse is returned to callers of the mint flow.
type GuestTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// GuestUser is the identity the guest token is issued to.
type GuestUser struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// GuestResource is a resource the guest token grants access to.
type GuestResource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RLSRule is a row level security rule embedded into the guest token.
type RLSRule struct {
	Clause string `json:"clause"`
}

// GuestTokenPayload is the body sent to the upstream guest token endpoint.
type GuestTokenPayload struct {
	User      GuestUser       `json:"user"`
	Resources []GuestResource `json:"resources"`
	RLS       []RLSRule       `json:"rls"`
}
