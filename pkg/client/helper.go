package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/yunqiqiliang/embedgate/internal/api/presenter"
)

// ErrRateLimited is matched by APIErrors for 429 responses.
var ErrRateLimited = errors.New("rate limited")

type APIError struct {
	StatusCode     int
	CorrelationID  string
	Title          string
	Message        string
	UpstreamStatus int
	RetryAfter     time.Duration
}

func (e APIError) Error() string {
	msg := e.Title
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.UpstreamStatus != 0 {
		msg += fmt.Sprintf(" (upstream status %d)", e.UpstreamStatus)
	}
	return fmt.Sprintf("api error %d: '%s' (correlation: %s)", e.StatusCode, msg, e.CorrelationID)
}

func (e APIError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

func (c *Client) get(ctx context.Context, url string, result any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, url string, payload, result any) (string, error) {
	var body io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshaling payload: %w", err)
		}
		body = bytes.NewBuffer(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, result)
}

func parseErrorResponse(resp *http.Response) error {
	var errResp presenter.ErrorResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d and unreadable body: %w", resp.StatusCode, err)
	}
	apiErr := APIError{
		StatusCode:    resp.StatusCode,
		CorrelationID: correlationFromResponse(resp),
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		apiErr.Title = errResp.Error
		apiErr.Message = errResp.Message
		apiErr.UpstreamStatus = errResp.UpstreamStatus
		if errResp.CorrelationID != "" {
			apiErr.CorrelationID = errResp.CorrelationID
		}
		return apiErr
	}
	apiErr.Title = fmt.Sprintf("*unparsed '%s'", string(body))
	return apiErr
}

func (c *Client) do(req *http.Request, result any) (string, error) {
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= 400 {
		return correlationFromResponse(resp), parseErrorResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return correlationFromResponse(resp), fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return correlationFromResponse(resp), nil
}

func correlationFromResponse(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	return resp.Header.Get("X-Correlation-ID")
}
