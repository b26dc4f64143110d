package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yunqiqiliang/embedgate/internal/audit"
	"github.com/yunqiqiliang/embedgate/internal/cache"
	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/store"
)

const testDashboard = "123e4567-e89b-12d3-a456-426614174000"

type fakeCredentials struct {
	mu          sync.Mutex
	gets        int
	invalidated int
	err         error
}

func (f *fakeCredentials) Get(context.Context) (core.SessionCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return core.SessionCredential{}, f.err
	}
	return core.SessionCredential{Value: "admin-token", IssuedAt: time.Now(), TTL: time.Minute}, nil
}

func (f *fakeCredentials) Invalidate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	return nil
}

type fakeUpstream struct {
	mu       sync.Mutex
	mints    int
	lists    int
	payload  core.GuestTokenPayload
	bearer   string
	records  []core.DashboardRecord
	err      error
	health   error
	tokenOut string
}

func (f *fakeUpstream) MintGuestToken(_ context.Context, c core.SessionCredential, p core.GuestTokenPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mints++
	f.payload = p
	f.bearer = c.Value
	if f.err != nil {
		return "", f.err
	}
	return f.tokenOut, nil
}

func (f *fakeUpstream) ListDashboards(context.Context, core.SessionCredential) ([]core.DashboardRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeUpstream) Health(context.Context) error {
	return f.health
}

func TestGuestTokenService_Issue(t *testing.T) {
	tests := []struct {
		name        string
		req         core.GuestTokenRequest
		wantPayload core.GuestTokenPayload
	}{
		{
			name: "defaults without requester",
			req:  core.GuestTokenRequest{DashboardID: testDashboard},
			wantPayload: core.GuestTokenPayload{
				User:      core.GuestUser{Username: "guest_user", FirstName: "Guest", LastName: "User"},
				Resources: []core.GuestResource{{Type: "dashboard", ID: testDashboard}},
				RLS:       []core.RLSRule{},
			},
		},
		{
			name: "requester and display name",
			req:  core.GuestTokenRequest{DashboardID: testDashboard, RequesterID: "42", DisplayName: "alice_1"},
			wantPayload: core.GuestTokenPayload{
				User:      core.GuestUser{Username: "alice_1", FirstName: "Guest", LastName: "User"},
				Resources: []core.GuestResource{{Type: "dashboard", ID: testDashboard}},
				RLS:       []core.RLSRule{{Clause: "user_id = 42"}},
			},
		},
		{
			name: "uppercase id is canonicalised",
			req:  core.GuestTokenRequest{DashboardID: strings.ToUpper(testDashboard)},
			wantPayload: core.GuestTokenPayload{
				User:      core.GuestUser{Username: "guest_user", FirstName: "Guest", LastName: "User"},
				Resources: []core.GuestResource{{Type: "dashboard", ID: testDashboard}},
				RLS:       []core.RLSRule{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := &fakeCredentials{}
			up := &fakeUpstream{tokenOut: "guest-jwt"}
			auditor := audit.NewInMemoryAuditor(10)
			svc := NewGuestTokenService(creds, up, auditor, "")

			resp, err := svc.Issue(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if diff := cmp.Diff(&core.GuestTokenResponse{Token: "guest-jwt", ExpiresIn: 300}, resp); diff != "" {
				t.Fatalf("response mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantPayload, up.payload); diff != "" {
				t.Fatalf("payload mismatch (-want +got):\n%s", diff)
			}
			if up.bearer != "admin-token" {
				t.Fatalf("bearer = %q", up.bearer)
			}

			entries, _ := auditor.GetRecent(1)
			if len(entries) != 1 || !entries[0].Success || entries[0].TokenFingerprint == "" {
				t.Fatalf("unexpected audit entries %+v", entries)
			}
		})
	}
}

func TestGuestTokenService_InvalidInputSkipsUpstream(t *testing.T) {
	tests := []struct {
		name string
		req  core.GuestTokenRequest
	}{
		{"missing dashboard", core.GuestTokenRequest{}},
		{"bad dashboard", core.GuestTokenRequest{DashboardID: "not-a-uuid"}},
		{"injection in requester", core.GuestTokenRequest{DashboardID: testDashboard, RequesterID: "7 OR 1=1"}},
		{"zero requester", core.GuestTokenRequest{DashboardID: testDashboard, RequesterID: "0"}},
		{"short display name", core.GuestTokenRequest{DashboardID: testDashboard, DisplayName: "ab"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := &fakeCredentials{}
			up := &fakeUpstream{tokenOut: "x"}
			svc := NewGuestTokenService(creds, up, nil, "")

			_, err := svc.Issue(context.Background(), tt.req)
			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if creds.gets != 0 || up.mints != 0 {
				t.Fatalf("invalid input reached credential cache (%d) or upstream (%d)", creds.gets, up.mints)
			}
		})
	}
}

func TestGuestTokenService_UpstreamFailure(t *testing.T) {
	creds := &fakeCredentials{}
	up := &fakeUpstream{err: &core.UpstreamStatusError{Op: "mint_guest_token", StatusCode: http.StatusForbidden, Body: "secret detail"}}
	auditor := audit.NewInMemoryAuditor(10)
	svc := NewGuestTokenService(creds, up, auditor, "")

	_, err := svc.Issue(context.Background(), core.GuestTokenRequest{DashboardID: testDashboard})
	var issueErr *core.IssuanceFailedError
	if !errors.As(err, &issueErr) {
		t.Fatalf("expected IssuanceFailedError, got %v", err)
	}
	if issueErr.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", issueErr.StatusCode)
	}
	if creds.invalidated != 0 {
		t.Fatal("403 must not invalidate the credential")
	}
	entries, _ := auditor.GetRecent(1)
	if len(entries) != 1 || entries[0].Success || entries[0].UpstreamStatus != http.StatusForbidden {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
}

func TestGuestTokenService_RejectedCredentialIsInvalidated(t *testing.T) {
	creds := &fakeCredentials{}
	up := &fakeUpstream{err: &core.UpstreamStatusError{Op: "mint_guest_token", StatusCode: http.StatusUnauthorized}}
	svc := NewGuestTokenService(creds, up, nil, "")

	if _, err := svc.Issue(context.Background(), core.GuestTokenRequest{DashboardID: testDashboard}); err == nil {
		t.Fatal("expected error")
	}
	if creds.invalidated != 1 {
		t.Fatalf("invalidated = %d, want 1", creds.invalidated)
	}
	if up.mints != 1 {
		t.Fatalf("mints = %d, no retry expected", up.mints)
	}
}

func TestGuestTokenService_LoginFailure(t *testing.T) {
	creds := &fakeCredentials{err: core.ErrUpstreamAuth}
	up := &fakeUpstream{}
	svc := NewGuestTokenService(creds, up, nil, "")

	_, err := svc.Issue(context.Background(), core.GuestTokenRequest{DashboardID: testDashboard})
	if !errors.Is(err, core.ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth in chain, got %v", err)
	}
	var issueErr *core.IssuanceFailedError
	if !errors.As(err, &issueErr) {
		t.Fatalf("expected IssuanceFailedError, got %T", err)
	}
	if up.mints != 0 {
		t.Fatal("mint must not be called without a credential")
	}
}

func TestRequesterClause(t *testing.T) {
	input := mustInput(t, core.GuestTokenRequest{DashboardID: testDashboard, RequesterID: "18446744073709551615"})
	clause, err := RequesterClause("user_id", *input.Requester)
	if err != nil {
		t.Fatalf("RequesterClause: %v", err)
	}
	if clause != "user_id = 18446744073709551615" {
		t.Fatalf("clause = %q", clause)
	}
	if _, err := RequesterClause("user_id; DROP", *input.Requester); err == nil {
		t.Fatal("expected error for invalid column")
	}
}

func TestDashboardService_List(t *testing.T) {
	yes, no := true, false
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mem, err := store.NewMemoryStore(0)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	mem.WithClock(clock.Now)
	dashboards := cache.NewDashboardCache(mem).WithClock(clock.Now)

	creds := &fakeCredentials{}
	up := &fakeUpstream{records: []core.DashboardRecord{
		{ID: 1, UUID: "u-1", DashboardTitle: "Sales", URL: "/d/1/", Published: &yes},
		{ID: 2, UUID: "u-2", DashboardTitle: "Draft", URL: "/d/2/", Published: &no},
		{ID: 3, UUID: "u-3", DashboardTitle: "Legacy", URL: "/d/3/"},
	}}
	svc := NewDashboardService(creds, up, dashboards, 0)
	ctx := context.Background()

	want := []core.DashboardSummary{{ID: 1, UUID: "u-1", Title: "Sales", URL: "/d/1/", Published: true}}
	got, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dashboards mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(4 * time.Minute)
	if _, err := svc.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if up.lists != 1 {
		t.Fatalf("lists = %d, want 1 within TTL", up.lists)
	}

	clock.Advance(time.Minute)
	if _, err := svc.List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if up.lists != 2 {
		t.Fatalf("lists = %d, want 2 after TTL", up.lists)
	}
}

func TestDashboardService_FailureIsNotCached(t *testing.T) {
	mem, _ := store.NewMemoryStore(0)
	creds := &fakeCredentials{}
	up := &fakeUpstream{err: &core.UpstreamStatusError{Op: "list_dashboards", StatusCode: http.StatusUnauthorized}}
	svc := NewDashboardService(creds, up, cache.NewDashboardCache(mem), time.Minute)

	_, err := svc.List(context.Background())
	if !errors.Is(err, core.ErrListingFailed) {
		t.Fatalf("expected ErrListingFailed, got %v", err)
	}
	if creds.invalidated != 1 {
		t.Fatal("401 from listing must invalidate the credential")
	}

	up.err = nil
	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List after recovery: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
	if up.lists != 2 {
		t.Fatalf("lists = %d, failure must not be cached", up.lists)
	}
}

func TestHealthService_Check(t *testing.T) {
	mem, _ := store.NewMemoryStore(0)

	healthy := NewHealthService(mem, &fakeUpstream{}).Check(context.Background())
	if !healthy.Healthy() || healthy.Services["cache"] != "ok" || healthy.Services["upstream"] != "ok" {
		t.Fatalf("unexpected report %+v", healthy)
	}
	if healthy.Timestamp.IsZero() {
		t.Fatal("timestamp missing")
	}

	down := NewHealthService(mem, &fakeUpstream{health: core.ErrUpstreamUnavailable}).Check(context.Background())
	if down.Healthy() || down.Error != "upstream unavailable" {
		t.Fatalf("unexpected report %+v", down)
	}
}

// hangingStore blocks Ping until the context ends.
type hangingStore struct {
	core.Store
}

func (hangingStore) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestHealthService_CachePingTimeout(t *testing.T) {
	svc := NewHealthService(hangingStore{}, &fakeUpstream{}).WithPingTimeout(20 * time.Millisecond)

	start := time.Now()
	report := svc.Check(context.Background())
	if report.Healthy() || report.Error != "cache unavailable" {
		t.Fatalf("unexpected report %+v", report)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("health check took %s, the cache probe is not bounded", elapsed)
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
