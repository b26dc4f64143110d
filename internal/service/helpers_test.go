package service

import (
	"testing"

	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/validation"
)

func mustInput(t *testing.T, req core.GuestTokenRequest) *validation.GuestTokenInput {
	t.Helper()
	input, err := validation.ValidateGuestTokenRequest(req)
	if err != nil {
		t.Fatalf("ValidateGuestTokenRequest: %v", err)
	}
	return input
}
