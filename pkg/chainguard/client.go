package chainguard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client talks to a Chainguard scoring service over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string

	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the service at baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ScoreTransaction submits a pending transaction and returns the verdict.
func (c *Client) ScoreTransaction(ctx context.Context, tx Transaction) (*ScoreResult, error) {
	var result ScoreResult
	if err := c.do(ctx, http.MethodPost, "/v1/transactions/score", tx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWallet fetches a wallet record with up to limit recent transactions.
// A limit of 0 uses the server default. Use IsNotFound to detect unknown wallets.
func (c *Client) GetWallet(ctx context.Context, address string, limit int) (*WalletHistory, error) {
	path := "/v1/wallets/" + url.PathEscape(address)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var history WalletHistory
	if err := c.do(ctx, http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// GetFeed fetches the most recently scored transactions, newest first.
func (c *Client) GetFeed(ctx context.Context, limit int) ([]LogEntry, error) {
	path := "/v1/feed"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var feed struct {
		Transactions []LogEntry `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &feed); err != nil {
		return nil, err
	}
	return feed.Transactions, nil
}

// GetNetworkStats fetches ledger-wide aggregate counts.
func (c *Client) GetNetworkStats(ctx context.Context) (*NetworkStats, error) {
	var stats NetworkStats
	if err := c.do(ctx, http.MethodGet, "/v1/network/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, apiErr)
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
