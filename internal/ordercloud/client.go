// Package ordercloud is a minimal client for the commerce platform API:
// the order, approval, and user surfaces the reminder job touches, plus
// the client-credentials token exchange. It is not a general SDK; every
// method exists because a pipeline stage calls it.
package ordercloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultRatePerSec   = 30
	defaultRateBurst    = 10
	userAgent           = "approval-reminder/v1"
	// DefaultPageSize matches the platform maximum the job has always used.
	DefaultPageSize = 100
)

// ListOptions narrows and pages a list call.
type ListOptions struct {
	Page     int
	PageSize int
	// Filters are field=value pairs passed through as query parameters.
	// Comparison filters use the platform's operator-prefix value syntax,
	// e.g. "DateSubmitted" -> "<2024-01-02T15:04:05Z".
	Filters map[string]string
}

// ClientConfig holds the settings for creating a Client.
type ClientConfig struct {
	BaseURL string
	// Token is the bearer token from a completed Authenticate call. The
	// client never refreshes it; a run acquires exactly one.
	Token          string
	Timeout        time.Duration
	RequestsPerSec int
}

// Client talks to the commerce platform API. Safe for concurrent use; the
// embedded limiter paces requests across all goroutines of a run.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
	token      string
	limiter    *rate.Limiter
}

// NewClient creates a Client. Returns an error if the base URL is invalid
// or the token is empty.
func NewClient(logger *zap.Logger, cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base URL must use http or https scheme, got %q", u.Scheme)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("access token is required; authenticate first")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	perSec := cfg.RequestsPerSec
	if perSec == 0 {
		perSec = defaultRatePerSec
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("ordercloud"),
		baseURL:    u.String(),
		token:      cfg.Token,
		limiter:    rate.NewLimiter(rate.Limit(perSec), defaultRateBurst),
	}, nil
}

// ListOrders lists orders in the given direction ("incoming" for orders
// submitted to the marketplace owner) matching opts.
func (c *Client) ListOrders(ctx context.Context, direction string, opts ListOptions) (*OrderPage, error) {
	var page OrderPage
	path := fmt.Sprintf("/orders/%s", url.PathEscape(direction))
	if err := c.get(ctx, path, opts, &page); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return &page, nil
}

// ListApprovals lists approval requests on one order.
func (c *Client) ListApprovals(ctx context.Context, direction, orderID string, opts ListOptions) (*ApprovalPage, error) {
	var page ApprovalPage
	path := fmt.Sprintf("/orders/%s/%s/approvals", url.PathEscape(direction), url.PathEscape(orderID))
	if err := c.get(ctx, path, opts, &page); err != nil {
		return nil, fmt.Errorf("list approvals for %s: %w", orderID, err)
	}
	return &page, nil
}

// ListUsers lists users of a buyer company, optionally narrowed to one user
// group via the userGroupID filter.
func (c *Client) ListUsers(ctx context.Context, buyerID string, opts ListOptions) (*UserPage, error) {
	var page UserPage
	path := fmt.Sprintf("/buyers/%s/users", url.PathEscape(buyerID))
	if err := c.get(ctx, path, opts, &page); err != nil {
		return nil, fmt.Errorf("list users for buyer %s: %w", buyerID, err)
	}
	return &page, nil
}

// PatchOrder applies a partial update to one order.
func (c *Client) PatchOrder(ctx context.Context, direction, orderID string, patch OrderPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal order patch: %w", err)
	}
	path := fmt.Sprintf("/orders/%s/%s", url.PathEscape(direction), url.PathEscape(orderID))
	if err := c.do(ctx, http.MethodPatch, path, nil, body, nil); err != nil {
		return fmt.Errorf("patch order %s: %w", orderID, err)
	}
	return nil
}

// get issues a list GET and decodes the page envelope into out.
func (c *Client) get(ctx context.Context, path string, opts ListOptions, out any) error {
	return c.do(ctx, http.MethodGet, path, listQuery(opts), nil, out)
}

// do executes one rate-limited request against the platform.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		// Drain and close body to reuse connections.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	c.logger.Debug("API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// StatusError is a non-2xx platform response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: platform returned HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// readErrorBody captures a bounded prefix of an error response for logs.
func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(b) == 0 {
		return "<no body>"
	}
	return string(b)
}

// listQuery turns ListOptions into query parameters. Filter keys are
// emitted in sorted order so request URLs are stable in tests and logs.
func listQuery(opts ListOptions) url.Values {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	keys := make([]string, 0, len(opts.Filters))
	for k := range opts.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, opts.Filters[k])
	}
	return q
}
