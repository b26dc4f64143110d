// Package upstream is a thin, retryless client for the analytics platform API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/time/rate"

	"github.com/yunqiqiliang/embedgate/internal/audit"
	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/logging"
	"github.com/yunqiqiliang/embedgate/internal/obs"
)

const (
	loginEndpoint      = "/api/v1/security/login"
	guestTokenEndpoint = "/api/v1/security/guest_token/"
	dashboardEndpoint  = "/api/v1/dashboard/"
	healthEndpoint     = "/health"

	DefaultTimeout       = 10 * time.Second
	DefaultHealthTimeout = 5 * time.Second
	DefaultLoginProvider = "db"

	// maxErrorBody bounds how much of a non-2xx body is kept for server side logs.
	maxErrorBody = 4 << 10
)

const (
	OpLogin          = "login"
	OpMintGuestToken = "mint_guest_token"
	OpListDashboards = "list_dashboards"
	OpHealth         = "health"
)

var _ core.Upstream = (*Client)(nil)

type Config struct {
	// BaseURL of the analytics platform, e.g. https://superset.example.com
	BaseURL string

	// Username and Password of the administrator identity used for login.
	Username string
	Password string

	// Provider is the upstream authentication provider, "db" by default.
	Provider string

	// Timeout bounds login, mint and list calls.
	Timeout time.Duration

	// HealthTimeout bounds health probes.
	HealthTimeout time.Duration

	// MaxRPS caps the outbound call rate. Zero disables the limiter.
	MaxRPS float64
	Burst  int

	// HTTPClient overrides the pooled default client.
	HTTPClient *http.Client
}

type Client struct {
	baseURL       string
	username      string
	password      string
	provider      string
	timeout       time.Duration
	healthTimeout time.Duration
	limiter       *rate.Limiter
	httpClient    *http.Client
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("upstream base URL cannot be empty")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("upstream administrator credentials cannot be empty")
	}
	if cfg.Provider == "" {
		cfg.Provider = DefaultLoginProvider
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}

	var limiter *rate.Limiter
	if cfg.MaxRPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}

	return &Client{
		baseURL:       baseURL,
		username:      cfg.Username,
		password:      cfg.Password,
		provider:      cfg.Provider,
		timeout:       cfg.Timeout,
		healthTimeout: cfg.HealthTimeout,
		limiter:       limiter,
		httpClient:    httpClient,
	}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Provider string `json:"provider"`
	Refresh  bool   `json:"refresh"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Login exchanges the administrator identity for an access token.
func (c *Client) Login(ctx context.Context) (string, error) {
	var resp loginResponse
	err := c.do(ctx, OpLogin, http.MethodPost, loginEndpoint, "", c.timeout, &loginRequest{
		Username: c.username,
		Password: c.password,
		Provider: c.provider,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("upstream %s: response contained no access token", OpLogin)
	}
	return resp.AccessToken, nil
}

type guestTokenResponse struct {
	Token string `json:"token"`
}

// MintGuestToken requests a guest token for payload, authorized by credential.
func (c *Client) MintGuestToken(
	ctx context.Context,
	credential core.SessionCredential,
	payload core.GuestTokenPayload,
) (string, error) {
	var resp guestTokenResponse
	if err := c.do(ctx, OpMintGuestToken, http.MethodPost, guestTokenEndpoint, credential.Value, c.timeout, &payload, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("upstream %s: response contained no token", OpMintGuestToken)
	}
	return resp.Token, nil
}

type dashboardListResponse struct {
	Count  int                    `json:"count"`
	Result []core.DashboardRecord `json:"result"`
}

// ListDashboards returns the dashboards visible to credential.
func (c *Client) ListDashboards(ctx context.Context, credential core.SessionCredential) ([]core.DashboardRecord, error) {
	var resp dashboardListResponse
	if err := c.do(ctx, OpListDashboards, http.MethodGet, dashboardEndpoint, credential.Value, c.timeout, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Health probes the upstream health endpoint with the short health timeout.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, OpHealth, http.MethodGet, healthEndpoint, "", c.healthTimeout, nil, nil)
}

func (c *Client) do(
	ctx context.Context,
	op, method, path, bearer string,
	timeout time.Duration,
	payload, result any,
) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, core.ErrUpstreamUnavailable):
			outcome = "unavailable"
		case err != nil:
			outcome = "error"
		}
		obs.UpstreamRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s: waiting for outbound rate limit: %w", core.ErrUpstreamUnavailable, op, err)
		}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshalling payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	// inject audit user-agent
	req.Header.Set("User-Agent", audit.CreateUserAgent(logging.CorrelationID(ctx)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrUpstreamUnavailable, op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &core.UpstreamStatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(detail)),
		}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: reading response: %w", core.ErrUpstreamUnavailable, op, err)
		}
		return fmt.Errorf("upstream %s: decoding response: %w", op, err)
	}
	return nil
}
