package service

import (
	"fmt"
	"regexp"

	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/validation"
)

const (
	DefaultGuestUsername = "guest_user"
	DefaultRLSField      = "user_id"

	guestFirstName = "Guest"
	guestLastName  = "User"
	resourceType   = "dashboard"
)

var columnPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RequesterClause builds the row level security clause restricting rows to the requester.
// It only accepts a validated requester id, so the value is always a positive integer.
func RequesterClause(field string, id validation.RequesterID) (string, error) {
	if !columnPattern.MatchString(field) {
		return "", fmt.Errorf("invalid row level security column %q", field)
	}
	if id.IsZero() {
		return "", fmt.Errorf("requester id is not set")
	}
	return fmt.Sprintf("%s = %d", field, id.Uint64()), nil
}

// BuildPayload assembles the guest token request for the upstream.
// The rls list holds exactly one clause when a requester was supplied and is empty otherwise.
func BuildPayload(input *validation.GuestTokenInput, rlsField string) (core.GuestTokenPayload, error) {
	username := input.DisplayName
	if username == "" {
		username = DefaultGuestUsername
	}

	payload := core.GuestTokenPayload{
		User: core.GuestUser{
			Username:  username,
			FirstName: guestFirstName,
			LastName:  guestLastName,
		},
		Resources: []core.GuestResource{{
			Type: resourceType,
			ID:   input.DashboardID.String(),
		}},
		RLS: []core.RLSRule{},
	}

	if input.Requester != nil {
		clause, err := RequesterClause(rlsField, *input.Requester)
		if err != nil {
			return core.GuestTokenPayload{}, err
		}
		payload.RLS = append(payload.RLS, core.RLSRule{Clause: clause})
	}
	return payload, nil
}
