package core

import "time"

type AuditEntry struct {
	// ID is the unique request ID (X-Correlation-ID)
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "guest_token.issue")
	Action string `json:"action"`

	// Requested resource and identity
	DashboardID string `json:"dashboard_id,omitempty"`
	RequesterID string `json:"requester_id,omitempty"`
	Username    string `json:"username,omitempty"`

	// Outcome
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`

	// TokenFingerprint identifies the minted token without storing it
	TokenFingerprint string `json:"token_fingerprint,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}
