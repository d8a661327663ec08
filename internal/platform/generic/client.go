// Package generic adapts venues whose listing APIs only differ in field
// names (Predict.fun, Probable, Opinion) to market records.
package generic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Config describes one venue.
type Config struct {
	Platform    domain.Platform
	BaseURL     string
	MarketsPath string // default "/v1/markets"
	APIKey      string // sent as x-api-key when set
	RateLimit   float64
	Burst       int
	MaxPages    int
	Timeout     time.Duration
}

// Client lists markets from a venue described by Config.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. Zero config values take defaults.
func NewClient(cfg Config) *Client {
	if cfg.MarketsPath == "" {
		cfg.MarketsPath = "/v1/markets"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
	}
}

// Platform implements domain.MarketSource.
func (c *Client) Platform() domain.Platform { return c.cfg.Platform }

// FetchMarkets follows the listing cursor until it runs out or MaxPages is
// reached.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.MarketRecord, error) {
	var (
		records []domain.MarketRecord
		cursor  string
	)
	for range c.cfg.MaxPages {
		items, next, err := c.page(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if rec, ok := toRecord(c.cfg.Platform, it); ok {
				records = append(records, rec)
			}
		}
		if next == "" || next == cursor || len(items) == 0 {
			break
		}
		cursor = next
	}
	return records, nil
}

func (c *Client) page(ctx context.Context, cursor string) ([]object, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("%s: rate limit wait: %w", c.cfg.Platform, err)
	}

	params := url.Values{}
	params.Set("active", "true")
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+c.cfg.MarketsPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%s: create request: %w", c.cfg.Platform, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w: %v", c.cfg.Platform, domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%s: read response: %w", c.cfg.Platform, err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", fmt.Errorf("%s: %w", c.cfg.Platform, domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, "", fmt.Errorf("%s: %w", c.cfg.Platform, domain.ErrUnauthorized)
	case resp.StatusCode >= 500:
		return nil, "", fmt.Errorf("%s: %w: HTTP %d", c.cfg.Platform, domain.ErrUpstream, resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, "", fmt.Errorf("%s: HTTP %d", c.cfg.Platform, resp.StatusCode)
	}

	items, next, err := listOf(body)
	if err != nil {
		return nil, "", fmt.Errorf("%s: decode markets: %w", c.cfg.Platform, err)
	}
	return items, next, nil
}
