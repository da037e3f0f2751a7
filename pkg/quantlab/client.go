// Package quantlab is a Go client for the quantlab HTTP API.
package quantlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quantlab/internal/report"
	"quantlab/internal/util"
)

// Wire types shared with the server.
type (
	Float           = report.Float
	Analysis        = report.AnalysisJSON
	Series          = report.SeriesJSON
	BacktestRequest = report.BacktestRequestJSON
	Backtest        = report.BacktestJSON
	SweepRequest    = report.SweepRequestJSON
	SweepPoint      = report.SweepPointJSON
	Diagnostics     = report.DiagnosticsJSON
	Correlation     = report.CorrelationJSON
)

// AnalyzeQuery narrows an analysis. Zero fields use server defaults.
type AnalyzeQuery struct {
	Interval string
	Start    string
	End      string
	Series   bool
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quantlab: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Client provides a Go SDK for the quantlab HTTP API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the attempt count and initial backoff for transport
// failures, 429 and 5xx responses. Other 4xx responses are never retried.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(c *Client) { c.maxAttempts, c.baseDelay = attempts, baseDelay }
}

// NewClient creates a new quantlab API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		maxAttempts: 3,
		baseDelay:   200 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Health reports whether the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

// Symbols lists stored symbols at interval ("" for the server default).
func (c *Client) Symbols(ctx context.Context, interval string) ([]string, error) {
	var out struct {
		Symbols []string `json:"symbols"`
	}
	q := url.Values{}
	if interval != "" {
		q.Set("interval", interval)
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/symbols", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Symbols, nil
}

// Strategies lists registered strategies.
func (c *Client) Strategies(ctx context.Context) ([]string, error) {
	var out struct {
		Strategies []string `json:"strategies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/strategies", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}

// Analyze fetches the analysis of symbol.
func (c *Client) Analyze(ctx context.Context, symbol string, aq AnalyzeQuery) (*Analysis, error) {
	q := url.Values{}
	setIf(q, "interval", aq.Interval)
	setIf(q, "start", aq.Start)
	setIf(q, "end", aq.End)
	if aq.Series {
		q.Set("series", "true")
	}
	var out Analysis
	if err := c.do(ctx, http.MethodGet, "/api/v1/analyze/"+url.PathEscape(symbol), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Indicators fetches full indicator series; no names means all of them.
func (c *Client) Indicators(ctx context.Context, symbol string, names ...string) (map[string]Series, error) {
	q := url.Values{"name": names}
	var out struct {
		Indicators map[string]Series `json:"indicators"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/indicators/"+url.PathEscape(symbol), q, nil, &out); err != nil {
		return nil, err
	}
	return out.Indicators, nil
}

// Diagnostics fetches rolling statistics and QQ data for symbol.
func (c *Client) Diagnostics(ctx context.Context, symbol string, aq AnalyzeQuery) (*Diagnostics, error) {
	q := url.Values{}
	setIf(q, "interval", aq.Interval)
	setIf(q, "start", aq.Start)
	setIf(q, "end", aq.End)
	var out Diagnostics
	if err := c.do(ctx, http.MethodGet, "/api/v1/diagnostics/"+url.PathEscape(symbol), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Correlate fetches the correlation and covariance matrices of symbols.
func (c *Client) Correlate(ctx context.Context, aq AnalyzeQuery, symbols ...string) (*Correlation, error) {
	q := url.Values{"symbol": symbols}
	setIf(q, "interval", aq.Interval)
	setIf(q, "start", aq.Start)
	setIf(q, "end", aq.End)
	var out Correlation
	if err := c.do(ctx, http.MethodGet, "/api/v1/correlation", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Backtest runs one backtest.
func (c *Client) Backtest(ctx context.Context, req BacktestRequest) (*Backtest, error) {
	var out Backtest
	if err := c.do(ctx, http.MethodPost, "/api/v1/backtest", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sweep runs a parameter sweep and returns points in grid order.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) ([]SweepPoint, error) {
	var out struct {
		Points []SweepPoint `json:"points"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sweep", nil, req, &out); err != nil {
		return nil, err
	}
	return out.Points, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	return util.Retry(ctx, c.maxAttempts, c.baseDelay, func() error {
		var r io.Reader
		if payload != nil {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, r)
		if err != nil {
			return util.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return util.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode/100 != 2 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return util.Permanent(apiErr)
			}
			return apiErr
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return util.Permanent(fmt.Errorf("decoding %s response: %w", path, err))
		}
		return nil
	})
}

func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(b))
}

func setIf(q url.Values, k, v string) {
	if v != "" {
		q.Set(k, v)
	}
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
