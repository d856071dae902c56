// exchange/mock_client.go
package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Mock implementation of the Adapter interface for running and testing the
// trading flow without a real API.

// Ensure MockAdapter implements the Adapter interface.
var _ Adapter = (*MockAdapter)(nil)

// MockAdapter is an in-memory venue. Mark prices are settable, failures can
// be injected per order type, and every placed order is recorded.
type MockAdapter struct {
	mu          sync.RWMutex
	name        string
	leverage    bool
	markPrices  map[string]float64
	leverages   map[string]int
	orders      map[string]*Order
	cancelled   map[string]bool
	nextOrderID int64
	account     *AccountInfo

	// Failure injection, keyed by order type ("" matches everything).
	failPlace    map[OrderType]error
	failCancel   error
	failLeverage error
	failPrice    error
}

// NewMockAdapter creates a new mock venue with leverage support.
func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{
		name:        name,
		leverage:    true,
		markPrices:  make(map[string]float64),
		leverages:   make(map[string]int),
		orders:      make(map[string]*Order),
		cancelled:   make(map[string]bool),
		nextOrderID: 1,
		failPlace:   make(map[OrderType]error),
		account: &AccountInfo{Balances: []Balance{
			{Asset: "USDT", Free: "10000", Locked: "0"},
		}},
	}
}

func (m *MockAdapter) Name() string           { return m.name }
func (m *MockAdapter) SupportsLeverage() bool { return m.leverage }
func (m *MockAdapter) SyncTime() error        { return nil }

// SetMarkPrice sets the simulated mark price for a symbol.
func (m *MockAdapter) SetMarkPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markPrices[symbol] = price
}

// SetAccountInfo replaces the simulated account balances.
func (m *MockAdapter) SetAccountInfo(info *AccountInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = info
}

// SetLeverageSupport toggles whether this venue reports leverage capability.
func (m *MockAdapter) SetLeverageSupport(supported bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverage = supported
}

// FailPlaceOrders makes PlaceOrder fail for the given order type. An empty
// order type fails every placement.
func (m *MockAdapter) FailPlaceOrders(orderType OrderType, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failPlace, orderType)
		return
	}
	m.failPlace[orderType] = err
}

// FailCancelOrders makes CancelOrder fail with err.
func (m *MockAdapter) FailCancelOrders(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCancel = err
}

// FailSetLeverage makes SetLeverage fail with err.
func (m *MockAdapter) FailSetLeverage(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failLeverage = err
}

// FailMarkPrice makes GetMarkPrice fail with err.
func (m *MockAdapter) FailMarkPrice(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPrice = err
}

func (m *MockAdapter) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failPlace[req.Type]; ok {
		return nil, &VenueError{Venue: m.name, Endpoint: "PlaceOrder", Err: err}
	}
	if err, ok := m.failPlace[OrderType("")]; ok {
		return nil, &VenueError{Venue: m.name, Endpoint: "PlaceOrder", Err: err}
	}

	price := m.markPrices[req.Symbol]
	order := &Order{
		OrderID:       strconv.FormatInt(m.nextOrderID, 10),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        "FILLED",
		PositionSide:  req.PositionSide,
		ExecutedQty:   strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		AvgPrice:      strconv.FormatFloat(price, 'f', -1, 64),
	}
	m.nextOrderID++
	m.orders[order.OrderID] = order
	return order, nil
}

func (m *MockAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCancel != nil {
		return &VenueError{Venue: m.name, Endpoint: "CancelOrder", Err: m.failCancel}
	}
	if _, ok := m.orders[orderID]; !ok {
		return &VenueError{Venue: m.name, Endpoint: "CancelOrder",
			Err: fmt.Errorf("unknown order %s for %s", orderID, symbol)}
	}
	m.cancelled[orderID] = true
	return nil
}

func (m *MockAdapter) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failPrice != nil {
		return 0, &VenueError{Venue: m.name, Endpoint: "GetMarkPrice", Err: m.failPrice}
	}
	price, ok := m.markPrices[symbol]
	if !ok {
		return 0, &VenueError{Venue: m.name, Endpoint: "GetMarkPrice",
			Err: fmt.Errorf("no mark price for %s", symbol)}
	}
	return price, nil
}

func (m *MockAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failLeverage != nil {
		return &VenueError{Venue: m.name, Endpoint: "SetLeverage", Err: m.failLeverage}
	}
	m.leverages[symbol] = leverage
	return nil
}

func (m *MockAdapter) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	copied := *m.account
	copied.Balances = append([]Balance(nil), m.account.Balances...)
	return &copied, nil
}

// Orders returns a snapshot of every order placed so far, in placement order.
func (m *MockAdapter) Orders() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0, len(m.orders))
	for id := int64(1); id < m.nextOrderID; id++ {
		if o, ok := m.orders[strconv.FormatInt(id, 10)]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// Cancelled reports whether the given order has been cancelled.
func (m *MockAdapter) Cancelled(orderID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancelled[orderID]
}

// Leverage returns the last leverage set for symbol, 0 if never set.
func (m *MockAdapter) Leverage(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.leverages[symbol]
}
