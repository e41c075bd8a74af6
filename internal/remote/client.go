// Package remote provides a client for the text-similarity check service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antiplagiat/textcheck/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "textcheck/1.0"
	maxErrorBody     = 64 << 10
)

// Client talks to the check service. It keeps no state between calls beyond its configuration
// and never retries; retry policy belongs to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	limiter    *rate.Limiter
	metrics    *Metrics
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The client is never modified.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request. Zero keeps the HTTP client's own timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit throttles outgoing requests. A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// checkBody is the wire form of a check request; "auto" is left for the backend to decide.
type checkBody struct {
	Text                string `json:"text"`
	Mode                string `json:"mode"`
	Lang                string `json:"lang,omitempty"`
	ExcludeQuotes       bool   `json:"exclude_quotes"`
	ExcludeBibliography bool   `json:"exclude_bibliography"`
}

// SubmitCheck submits a text for analysis and returns the task identifier.
func (c *Client) SubmitCheck(ctx context.Context, req *models.CheckRequest) (*models.SubmitResponse, error) {
	body := checkBody{
		Text:                req.Text,
		Mode:                string(req.Mode),
		ExcludeQuotes:       req.ExcludeQuotes,
		ExcludeBibliography: req.ExcludeBibliography,
	}
	if req.Lang != models.LangAuto {
		body.Lang = string(req.Lang)
	}

	var resp models.SubmitResponse
	if err := c.do(ctx, "submit", http.MethodPost, "/api/v1/check", body, &resp); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		return nil, &Error{Kind: KindMalformed, Message: "Service returned no task id"}
	}

	log.Debug().Str("task_id", resp.TaskID).Str("status", resp.Status).Msg("Check submitted")
	return &resp, nil
}

// FetchResult fetches the result of a task. Missing match and source arrays come back empty.
func (c *Client) FetchResult(ctx context.Context, taskID string) (*models.CheckResult, error) {
	var result models.CheckResult
	if err := c.do(ctx, "fetch", http.MethodGet, "/api/v1/check/"+url.PathEscape(taskID), nil, &result); err != nil {
		return nil, err
	}
	if result.Matches == nil {
		result.Matches = []models.Match{}
	}
	if result.Sources == nil {
		result.Sources = []models.Source{}
	}
	if result.TaskID == "" {
		result.TaskID = taskID
	}
	return &result, nil
}

// DeleteCheck asks the service to forget a task.
func (c *Client) DeleteCheck(ctx context.Context, taskID string) error {
	return c.do(ctx, "delete", http.MethodDelete, "/api/v1/check/"+url.PathEscape(taskID), nil, nil)
}

// ListSources returns the service's source catalog. Best effort: callers should not block on it.
func (c *Client) ListSources(ctx context.Context) (*models.SourceCatalog, error) {
	var catalog models.SourceCatalog
	if err := c.do(ctx, "sources", http.MethodGet, "/api/v1/sources", nil, &catalog); err != nil {
		return nil, err
	}
	if catalog.Total == 0 {
		catalog.Total = len(catalog.Sources)
	}
	return &catalog, nil
}

// HealthCheck queries the service health endpoint. Best effort.
func (c *Client) HealthCheck(ctx context.Context) (*models.HealthStatus, error) {
	var health models.HealthStatus
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.observe(endpoint, err, time.Since(start))
	}()

	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return &Error{Kind: KindNetwork, Message: "Request not sent", Err: werr}
		}
	}

	var reqBody io.Reader
	if in != nil {
		data, merr := json.Marshal(in)
		if merr != nil {
			return fmt.Errorf("failed to encode request: %w", merr)
		}
		reqBody = bytes.NewReader(data)
	}

	req, rerr := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if rerr != nil {
		return fmt.Errorf("failed to create request: %w", rerr)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, derr := c.httpClient.Do(req)
	if derr != nil {
		return &Error{Kind: KindNetwork, Message: "Check service unreachable", Err: derr}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readDetail(resp.Body)
		log.Debug().Str("endpoint", endpoint).Int("status", resp.StatusCode).Str("detail", detail).Msg("Check service returned error")
		return newStatusError(resp.StatusCode, detail)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if jerr := json.NewDecoder(resp.Body).Decode(out); jerr != nil {
		return &Error{Kind: KindMalformed, Message: "Failed to decode response", Err: jerr}
	}
	return nil
}

// readDetail extracts the "detail" field of an error body. FastAPI sends either a string
// or a list of validation errors carrying "msg".
func readDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
