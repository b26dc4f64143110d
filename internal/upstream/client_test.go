package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yunqiqiliang/embedgate/internal/core"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:  srv.URL + "/",
		Username: "admin",
		Password: "s3cret",
		Timeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresBaseURLAndCredentials(t *testing.T) {
	if _, err := New(Config{Username: "a", Password: "b"}); err == nil {
		t.Fatal("expected error without base URL")
	}
	if _, err := New(Config{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestLogin(t *testing.T) {
	var got loginRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != loginEndpoint {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "Embedgate/") {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"access_token":"tok-1"}`))
	}))

	token, err := c.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("token = %q", token)
	}
	want := loginRequest{Username: "admin", Password: "s3cret", Provider: "db", Refresh: false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("login body mismatch (-want +got):\n%s", diff)
	}
}

func TestLogin_Rejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad creds"}`, http.StatusUnauthorized)
	}))

	_, err := c.Login(context.Background())
	var statusErr *core.UpstreamStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected UpstreamStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized || statusErr.Op != OpLogin {
		t.Fatalf("unexpected error %+v", statusErr)
	}
}

func TestMintGuestToken(t *testing.T) {
	var (
		gotAuth    string
		gotPayload core.GuestTokenPayload
	)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != guestTokenEndpoint {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(`{"token":"guest-1"}`))
	}))

	payload := core.GuestTokenPayload{
		User:      core.GuestUser{Username: "guest_user", FirstName: "Guest", LastName: "User"},
		Resources: []core.GuestResource{{Type: "dashboard", ID: "123e4567-e89b-12d3-a456-426614174000"}},
		RLS:       []core.RLSRule{},
	}
	token, err := c.MintGuestToken(context.Background(), core.SessionCredential{Value: "admin-tok"}, payload)
	if err != nil {
		t.Fatalf("MintGuestToken: %v", err)
	}
	if token != "guest-1" {
		t.Fatalf("token = %q", token)
	}
	if gotAuth != "Bearer admin-tok" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if diff := cmp.Diff(payload, gotPayload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestListDashboards(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":2,"result":[
			{"id":1,"uuid":"u-1","dashboard_title":"Sales","url":"/superset/dashboard/1/","published":true},
			{"id":2,"dashboard_title":"Draft","url":"/superset/dashboard/2/"}
		]}`))
	}))

	records, err := c.ListDashboards(context.Background(), core.SessionCredential{Value: "admin-tok"})
	if err != nil {
		t.Fatalf("ListDashboards: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Published == nil || !*records[0].Published {
		t.Fatal("first record should be published")
	}
	if records[1].Published != nil {
		t.Fatal("second record should have no published flag")
	}
}

func TestHealth(t *testing.T) {
	status := http.StatusOK
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	status = http.StatusServiceUnavailable
	if err := c.Health(context.Background()); core.UpstreamStatus(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 status error, got %v", err)
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c, err := New(Config{
		BaseURL:       srv.URL,
		Username:      "admin",
		Password:      "s3cret",
		HealthTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.Health(context.Background())
	if !errors.Is(err, core.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Username: "admin", Password: "s3cret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Login(context.Background()); !errors.Is(err, core.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestOutboundLimiter(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c2, err := New(Config{BaseURL: c.baseURL, Username: "a", Password: "b", MaxRPS: 1, Burst: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c2.limiter == nil || c2.limiter.Burst() != 1 {
		t.Fatal("limiter not configured")
	}
	if err := c2.Health(context.Background()); err != nil {
		t.Fatalf("first Health: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c2.Health(ctx); !errors.Is(err, core.ErrUpstreamUnavailable) {
		t.Fatalf("expected limiter wait to fail as unavailable, got %v", err)
	}
}
