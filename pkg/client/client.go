// Package client is a Go client for the embedgate HTTP API.
package client

import (
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL    string
	origin     string
	httpClient *http.Client
}

type Option func(*Client)

// WithTimeout bounds every request of the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithOrigin sends an Origin header, as a browser embedding the dashboard would.
func WithOrigin(origin string) Option {
	return func(c *Client) {
		c.origin = origin
	}
}

func New(baseURL string, opts ...Option) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = defaultTimeout
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type urlBuilder struct {
	base string
	path string
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{base: c.baseURL}
}

func (b *urlBuilder) setPath(path string) *urlBuilder {
	b.path = path
	return b
}

func (b *urlBuilder) build() string {
	return b.base + b.path
}
