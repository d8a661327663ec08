package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	defaultPageSize    = 100
	defaultMaxPages    = 20
	defaultMinOutcomes = 3
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery and metadata.
type GammaClient struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	pageSize    int
	maxPages    int
	minOutcomes int
}

// GammaOption configures the client.
type GammaOption func(*GammaClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) GammaOption {
	return func(g *GammaClient) { g.httpClient = hc }
}

// WithRateLimit sets requests per second and burst.
func WithRateLimit(rps float64, burst int) GammaOption {
	return func(g *GammaClient) { g.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithPaging bounds GET /events pagination.
func WithPaging(pageSize, maxPages int) GammaOption {
	return func(g *GammaClient) {
		if pageSize > 0 {
			g.pageSize = pageSize
		}
		if maxPages > 0 {
			g.maxPages = maxPages
		}
	}
}

// WithMinOutcomes sets how many open markets a NegRisk event needs to be
// listed as a single multi-outcome record.
func WithMinOutcomes(n int) GammaOption {
	return func(g *GammaClient) {
		if n >= 3 {
			g.minOutcomes = n
		}
	}
}

// NewGammaClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, opts ...GammaOption) *GammaClient {
	g := &GammaClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(10), 5),
		pageSize:    defaultPageSize,
		maxPages:    defaultMaxPages,
		minOutcomes: defaultMinOutcomes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Platform implements domain.MarketSource.
func (g *GammaClient) Platform() domain.Platform { return domain.PlatformPolymarket }

// FetchMarkets pages through open events and flattens them into records.
func (g *GammaClient) FetchMarkets(ctx context.Context) ([]domain.MarketRecord, error) {
	var records []domain.MarketRecord
	seen := make(map[string]bool)
	for page := range g.maxPages {
		events, err := g.GetEvents(ctx, g.pageSize, page*g.pageSize)
		if err != nil {
			return nil, err
		}
		for i := range events {
			if events[i].Closed {
				continue
			}
			for _, rec := range events[i].ToRecords(g.minOutcomes) {
				if seen[rec.NativeID] {
					continue
				}
				seen[rec.NativeID] = true
				records = append(records, rec)
			}
		}
		if len(events) < g.pageSize {
			break
		}
	}
	return records, nil
}

// GetEvents returns a page of open events with their markets.
func (g *GammaClient) GetEvents(ctx context.Context, limit, offset int) ([]APIEvent, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := g.doGet(ctx, "/events?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get events: %w", err)
	}

	var events []APIEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode events: %w", err)
	}
	return events, nil
}

// GetMarket returns a single market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (APIMarket, error) {
	body, err := g.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var m APIMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	return m, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an unauthenticated GET request to the Gamma API.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx responses to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", domain.ErrUpstream, statusCode)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
