package exchange

import (
	"context"
	"fmt"
)

// OrderSide defines the order direction (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType defines the order type.
type OrderType string

const (
	Limit            OrderType = "LIMIT"
	Market           OrderType = "MARKET"
	StopMarket       OrderType = "STOP_MARKET"
	TakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// PositionSide defines the position direction.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Opposite returns the order side that closes a position on this side.
func (p PositionSide) Opposite() OrderSide {
	if p == Long {
		return Sell
	}
	return Buy
}

// EntrySide returns the order side that opens a position on this side.
func (p PositionSide) EntrySide() OrderSide {
	if p == Long {
		return Buy
	}
	return Sell
}

// OrderRequest carries the parameters for a new order submission.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	Price         float64 // Required for LIMIT orders
	StopPrice     float64 // Required for STOP_MARKET / TAKE_PROFIT_MARKET orders
	PositionSide  PositionSide
	ClientOrderID string
}

// Order represents the venue's view of a placed order.
type Order struct {
	OrderID       string       `json:"orderId"`
	ClientOrderID string       `json:"clientOrderId"`
	Symbol        string       `json:"symbol"`
	Side          OrderSide    `json:"side"`
	Type          OrderType    `json:"type"`
	Status        string       `json:"status"`
	PositionSide  PositionSide `json:"positionSide"`
	ExecutedQty   string       `json:"executedQty"`
	AvgPrice      string       `json:"avgPrice"`
}

// Balance is a single asset balance.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// AccountInfo holds account balances as reported by the venue.
type AccountInfo struct {
	Balances []Balance `json:"balances"`
}

// FreeBalance returns the free balance of the given asset, 0 if absent or unparsable.
func (a *AccountInfo) FreeBalance(asset string) float64 {
	for _, b := range a.Balances {
		if b.Asset == asset {
			var v float64
			fmt.Sscanf(b.Free, "%f", &v)
			return v
		}
	}
	return 0
}

// Adapter is the capability interface every execution venue must implement.
// Signing and transport details are adapter-internal concerns.
type Adapter interface {
	// Name returns the venue identifier used in position records and logs.
	Name() string

	// SupportsLeverage reports whether the venue can take leveraged positions.
	SupportsLeverage() bool

	// SyncTime synchronizes with the venue server clock. Must be called before
	// making any signed requests.
	SyncTime() error

	// PlaceOrder submits a new order to the venue.
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)

	// CancelOrder cancels an active order.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// GetMarkPrice returns the venue's mark price for a symbol.
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)

	// SetLeverage sets the leverage multiple for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// GetAccountInfo returns the account balances.
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
}

// VenueError wraps a venue-layer failure with enough context to act on it.
type VenueError struct {
	Venue    string
	Endpoint string
	Err      error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s: %s: %v", e.Venue, e.Endpoint, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }
