// Package swap abstracts a DEX aggregator: quote a route, execute it. The
// routing itself is the aggregator's business; callers treat Route as opaque.
package swap

import (
	"context"
	"encoding/json"
)

// Route is a quoted path for exchanging one token for another. The Quote
// payload is passed back verbatim when executing.
type Route struct {
	InputToken     string
	OutputToken    string
	InAmount       float64
	OutAmount      float64
	PriceImpactPct float64
	Quote          json.RawMessage
}

// SwapResult is the outcome of an executed swap.
type SwapResult struct {
	TxID        string
	InputToken  string
	OutputToken string
	InAmount    float64
	OutAmount   float64
}

// Swapper is the capability interface for a swap venue.
type Swapper interface {
	// Name returns the venue identifier used in position records and logs.
	Name() string

	// GetBestRoute quotes the best route for the given pair and amount.
	// Returns (nil, nil) when the aggregator has no route for the pair.
	GetBestRoute(ctx context.Context, inputToken, outputToken string, amount float64) (*Route, error)

	// ExecuteSwap executes a previously quoted route.
	ExecuteSwap(ctx context.Context, route *Route) (*SwapResult, error)

	// GetTokenPrice returns the token price quoted in the stable token.
	GetTokenPrice(ctx context.Context, token string) (float64, error)
}
