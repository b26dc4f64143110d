package presenter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/logging"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   ErrorResponse
	}{
		{
			name:       "validation exposes reason",
			err:        core.NewValidationError("dashboardId", "bad identifier format"),
			wantStatus: http.StatusBadRequest,
			wantBody:   ErrorResponse{Error: "Bad Request", Message: "bad identifier format"},
		},
		{
			name:       "rate limited",
			err:        fmt.Errorf("%w: general", core.ErrRateLimited),
			wantStatus: http.StatusTooManyRequests,
			wantBody:   ErrorResponse{Error: "Too Many Requests", Message: "Too many requests, please try again later."},
		},
		{
			name: "issuance hides upstream body",
			err: &core.IssuanceFailedError{StatusCode: 403, Err: &core.UpstreamStatusError{
				Op: "mint_guest_token", StatusCode: 403, Body: "internal detail",
			}},
			wantStatus: http.StatusBadGateway,
			wantBody:   ErrorResponse{Error: "Failed to generate guest token", Message: supportMessage, UpstreamStatus: 403},
		},
		{
			name:       "issuance with unreachable upstream",
			err:        &core.IssuanceFailedError{Err: fmt.Errorf("%w: timeout", core.ErrUpstreamUnavailable)},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   ErrorResponse{Error: "Failed to generate guest token", Message: supportMessage},
		},
		{
			name:       "disallowed origin",
			err:        core.ErrOriginNotAllowed,
			wantStatus: http.StatusForbidden,
			wantBody:   ErrorResponse{Error: "Forbidden", Message: "Not allowed by CORS"},
		},
		{
			name:       "listing",
			err:        fmt.Errorf("%w: boom", core.ErrListingFailed),
			wantStatus: http.StatusInternalServerError,
			wantBody:   ErrorResponse{Error: "Failed to fetch dashboards", Message: supportMessage},
		},
		{
			name:       "body too large",
			err:        &http.MaxBytesError{Limit: 10},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   ErrorResponse{Error: "Payload Too Large", Message: "The request body is too large"},
		},
		{
			name:       "unknown",
			err:        errors.New("database password is hunter2"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   ErrorResponse{Error: "Internal Server Error", Message: "An unexpected error occurred"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := Describe(tt.err)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if diff := cmp.Diff(tt.wantBody, body); diff != "" {
				t.Fatalf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrIncludesCorrelationID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(logging.WithCorrelationID(r.Context(), "corr-9"))
	w := httptest.NewRecorder()

	Err(w, r, core.NewValidationError("username", "bad display name"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.CorrelationID != "corr-9" || body.Message != "bad display name" {
		t.Fatalf("unexpected body %+v", body)
	}
}
