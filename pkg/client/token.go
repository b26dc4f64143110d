package client

import (
	"context"

	"github.com/yunqiqiliang/embedgate/internal/api"
	"github.com/yunqiqiliang/embedgate/internal/core"
)

// GuestTokenOptions contains optional parameters for requesting a guest token.
type GuestTokenOptions struct {
	// UserID restricts the dashboard rows to this requester.
	UserID string

	// Username is the display name embedded in the guest token.
	Username string
}

// GuestToken requests a guest token for one dashboard.
func (c *Client) GuestToken(
	ctx context.Context,
	dashboardID string,
	opts GuestTokenOptions,
) (*core.GuestTokenResponse, string, error) {
	payload := api.GuestTokenPayload{
		DashboardID: dashboardID,
		UserID:      api.FlexibleID(opts.UserID),
		Username:    opts.Username,
	}
	var result core.GuestTokenResponse
	correlation, err := c.post(ctx, c.url().
		setPath(api.GuestTokenRoute).
		build(), payload, &result)
	if err != nil {
		return nil, correlation, err
	}
	return &result, correlation, nil
}

// Dashboards lists the published dashboards.
func (c *Client) Dashboards(ctx context.Context) ([]core.DashboardSummary, string, error) {
	var resp api.DashboardsResponse
	correlation, err := c.get(ctx, c.url().
		setPath(api.DashboardsRoute).
		build(), &resp)
	if err != nil {
		return nil, correlation, err
	}
	return resp.Dashboards, correlation, nil
}
