package domain

import "context"

// MarketSource lists one platform's open markets.
type MarketSource interface {
	Platform() Platform
	FetchMarkets(ctx context.Context) ([]MarketRecord, error)
}
