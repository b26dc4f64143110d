package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yunqiqiliang/embedgate/internal/api"
	"github.com/yunqiqiliang/embedgate/internal/core"
)

func TestGuestToken(t *testing.T) {
	var got api.GuestTokenPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.GuestTokenRoute || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Origin") != "https://app.example.com" {
			t.Errorf("origin = %q", r.Header.Get("Origin"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("X-Correlation-ID", "c-1")
		_, _ = w.Write([]byte(`{"token":"guest","expiresIn":300}`))
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/", WithOrigin("https://app.example.com"))
	resp, correlation, err := c.GuestToken(context.Background(), "d-1", GuestTokenOptions{UserID: "42"})
	if err != nil {
		t.Fatalf("GuestToken: %v", err)
	}
	if correlation != "c-1" {
		t.Errorf("correlation = %q", correlation)
	}
	if diff := cmp.Diff(&core.GuestTokenResponse{Token: "guest", ExpiresIn: 300}, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
	if got.DashboardID != "d-1" || got.UserID != "42" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case api.GuestTokenRoute:
			w.Header().Set("Retry-After", "120")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too Many Requests","message":"slow down","correlation_id":"c-2"}`))
		case api.DashboardsRoute:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`gateway exploded`))
		}
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	_, _, err := c.GuestToken(context.Background(), "d-1", GuestTokenOptions{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.RetryAfter != 2*time.Minute || apiErr.CorrelationID != "c-2" || apiErr.Message != "slow down" {
		t.Errorf("unexpected api error %+v", apiErr)
	}

	_, _, err = c.Dashboards(context.Background())
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
	if errors.Is(err, ErrRateLimited) {
		t.Fatal("502 must not match ErrRateLimited")
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy","timestamp":"2024-01-01T00:00:00Z","error":"upstream unavailable"}`))
	}))
	t.Cleanup(srv.Close)

	report, _, err := New(srv.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Healthy() || report.Error != "upstream unavailable" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestURLBuilder(t *testing.T) {
	c := New("http://localhost:3001/")
	got := c.url().setPath("/api/dashboards").build()
	if got != "http://localhost:3001/api/dashboards" {
		t.Fatalf("url = %q", got)
	}
}

func TestWithTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, WithTimeout(50*time.Millisecond))
	if _, _, err := c.Info(context.Background()); err == nil {
		t.Fatal("expected a timeout error")
	}
}
