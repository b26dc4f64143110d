package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/yunqiqiliang/embedgate/internal/api"
	"github.com/yunqiqiliang/embedgate/internal/buildinfo"
	"github.com/yunqiqiliang/embedgate/internal/service"
)

func (c *Client) Info(
	ctx context.Context,
) (*buildinfo.Info, string, error) {
	var info buildinfo.Info
	correlation, err := c.get(ctx, c.url().
		setPath(api.AboutRoute).
		build(), &info)
	return &info, correlation, err
}

// Health returns the health report. An unhealthy report is returned together with a nil error.
func (c *Client) Health(ctx context.Context) (*service.HealthReport, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url().
		setPath(api.HealthCheckRoute).
		build(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("connection failed: %w", err)
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, correlationFromResponse(resp), parseErrorResponse(resp)
	}

	var report service.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, correlationFromResponse(resp), fmt.Errorf("decoding response: %w", err)
	}
	return &report, correlationFromResponse(resp), nil
}
