package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	baseURL   = "https://esi.evetech.net/latest"
	userAgent = "lp-trader/1.0 (github.com)"
)

// Client is a rate-limited ESI HTTP client.
type Client struct {
	BaseURL string

	http      *http.Client
	sem       chan struct{}
	limiter   *rate.Limiter
	nameCache sync.Map // int64 -> UniverseName
	offers    *OfferCache

	mu     sync.Mutex
	lastOK time.Time
}

// NewClient creates an ESI client.
// At most 20 requests are in flight and requests are paced to 50/s
// (ESI tolerates far more, but LP stores and names are small payloads).
func NewClient() *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		sem:     make(chan struct{}, 20),
		limiter: rate.NewLimiter(rate.Limit(50), 10),
		offers:  NewOfferCache(),
	}
}

// HealthCheck pings ESI to verify connectivity.
func (c *Client) HealthCheck(ctx context.Context) bool {
	var status struct {
		Players int `json:"players"`
	}
	return c.GetJSON(ctx, c.url("/status/"), &status) == nil
}

// HealthStatus returns the time of the last successful ESI response.
func (c *Client) HealthStatus() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOK
}

func (c *Client) url(path string) string {
	base := c.BaseURL
	if base == "" {
		base = baseURL
	}
	return base + path + "?datasource=tranquility"
}

// GetJSON fetches a URL and decodes JSON into dst.
func (c *Client) GetJSON(ctx context.Context, url string, dst interface{}) error {
	_, err := c.do(ctx, http.MethodGet, url, "", nil, dst)
	return err
}

// AuthGetJSON performs an authenticated GET to an ESI endpoint.
func (c *Client) AuthGetJSON(ctx context.Context, url, accessToken string, dst interface{}) error {
	_, err := c.do(ctx, http.MethodGet, url, accessToken, nil, dst)
	return err
}

// PostJSON posts body as JSON and decodes the response into dst.
func (c *Client) PostJSON(ctx context.Context, url string, body, dst interface{}) error {
	_, err := c.do(ctx, http.MethodPost, url, "", body, dst)
	return err
}

// do runs one request under the semaphore and limiter. It returns the response
// headers so callers can read Expires/X-Pages.
func (c *Client) do(ctx context.Context, method, url, accessToken string, body, dst interface{}) (http.Header, error) {
	if c.sem == nil {
		// zero-value Client (tests); behave like NewClient
		c.sem = make(chan struct{}, 20)
	}
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	httpClient := c.http
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.Header, &Error{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	c.mu.Lock()
	c.lastOK = time.Now()
	c.mu.Unlock()

	if dst == nil {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return resp.Header, fmt.Errorf("decode %s: %w", url, err)
	}
	return resp.Header, nil
}

// parseExpires reads the Expires header from an ESI response.
// Falls back to the given TTL if the header is missing or unparseable.
func parseExpires(h http.Header, fallback time.Duration) time.Time {
	if h != nil {
		if exp := h.Get("Expires"); exp != "" {
			if t, err := time.Parse(time.RFC1123, exp); err == nil {
				return t
			}
		}
	}
	return time.Now().Add(fallback)
}
