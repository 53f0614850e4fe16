// Package client provides the HTTP client used to reach the upstream platform API.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"impact-gateway/internal/config"
	"impact-gateway/internal/metrics"
	"impact-gateway/internal/model"
)

// UpstreamClient sends requests to the upstream platform API.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	// basePath is the path part of the upstream base URL, stripped before
	// the resource label is derived.
	basePath string
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:   logger.With("component", "upstream_client"),
		metrics:  m,
		basePath: basePath(cfg.Upstream.BaseURL),
	}
}

func basePath(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return strings.TrimRight(u.Path, "/")
}

// resource labels an upstream request by the platform resource it targets.
func (c *UpstreamClient) resource(req *http.Request) string {
	return metrics.NormalizeResource(strings.TrimPrefix(req.URL.Path, c.basePath))
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body. Failed calls are
// counted with status_code "error".
func (c *UpstreamClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	method := metrics.NormalizeMethod(req.Method)
	resource := c.resource(req)

	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
		"resource", resource,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	elapsed := time.Since(start).Seconds()

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method, resource).Observe(elapsed)
		c.metrics.UpstreamResponses.WithLabelValues(method, status, resource).Inc()
	}
	if err != nil {
		return nil, fmt.Errorf("upstream %s %s: %w", req.Method, resource, err)
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream builds a request bound to ctx and executes it. Canceling ctx
// (for example when the inbound client disconnects) cancels the upstream call.
// The caller is responsible for closing the returned body.
func (c *UpstreamClient) DoStream(ctx context.Context, method, target string, header http.Header, body io.Reader) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	return c.Do(req)
}
