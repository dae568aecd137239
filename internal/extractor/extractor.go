// Package extractor is the HTTP client for the external content extraction
// service, which fetches a page and distills readable article content.
// The extraction algorithm itself lives behind that service; this client
// only speaks its contract.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pagekeep/pagekeep/internal/snapshot"
)

// Config configures the extractor client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RPS       float64
	UserAgent string
}

// Client implements snapshot.Extractor against the extraction service.
type Client struct {
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
	http      *http.Client
}

// New builds an extractor client with client-side rate limiting so a burst
// of deliveries cannot overwhelm the extraction service.
func New(cfg Config) *Client {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(limit, 1),
		http:      &http.Client{Timeout: timeout},
	}
}

type processRequest struct {
	URL string `json:"url"`
}

// Process asks the extraction service for the readable content of url.
// A non-nil error means the service itself was unreachable; extraction
// failures come back inside the result with a typed reason.
func (c *Client) Process(ctx context.Context, url string) (snapshot.ExtractResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return snapshot.ExtractResult{}, fmt.Errorf("extractor rate limit wait: %w", err)
	}

	body, err := json.Marshal(processRequest{URL: url})
	if err != nil {
		return snapshot.ExtractResult{}, fmt.Errorf("marshal extract request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return snapshot.ExtractResult{}, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return snapshot.ExtractResult{}, fmt.Errorf("call extractor: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return snapshot.ExtractResult{}, fmt.Errorf("extractor returned %d: %s", resp.StatusCode, snippet)
	}

	var result snapshot.ExtractResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return snapshot.ExtractResult{}, fmt.Errorf("decode extractor response: %w", err)
	}
	return result, nil
}
