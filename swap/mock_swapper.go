package swap

import (
	"context"
	"fmt"
	"sync"
)

// Ensure MockSwapper implements the Swapper interface.
var _ Swapper = (*MockSwapper)(nil)

// MockSwapper is an in-memory swap venue for tests and simulation mode.
type MockSwapper struct {
	mu       sync.Mutex
	routes   map[string]*Route // key: input->output
	prices   map[string]float64
	executed []Route
	failExec error
	nextTx   int
}

func NewMockSwapper() *MockSwapper {
	return &MockSwapper{
		routes: make(map[string]*Route),
		prices: make(map[string]float64),
		nextTx: 1,
	}
}

func (m *MockSwapper) Name() string { return "MockDEX" }

func routeKey(in, out string) string { return in + "->" + out }

// SetRoute registers a quotable route for the pair.
func (m *MockSwapper) SetRoute(inputToken, outputToken string, outAmount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[routeKey(inputToken, outputToken)] = &Route{
		InputToken:  inputToken,
		OutputToken: outputToken,
		OutAmount:   outAmount,
	}
}

// SetTokenPrice registers a token price.
func (m *MockSwapper) SetTokenPrice(token string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[token] = price
}

// FailExecute makes ExecuteSwap fail with err.
func (m *MockSwapper) FailExecute(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failExec = err
}

func (m *MockSwapper) GetBestRoute(ctx context.Context, inputToken, outputToken string, amount float64) (*Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.routes[routeKey(inputToken, outputToken)]
	if !ok {
		return nil, nil
	}
	copied := *r
	copied.InAmount = amount
	return &copied, nil
}

func (m *MockSwapper) ExecuteSwap(ctx context.Context, route *Route) (*SwapResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failExec != nil {
		return nil, m.failExec
	}
	m.executed = append(m.executed, *route)
	tx := fmt.Sprintf("mock-tx-%d", m.nextTx)
	m.nextTx++
	return &SwapResult{
		TxID:        tx,
		InputToken:  route.InputToken,
		OutputToken: route.OutputToken,
		InAmount:    route.InAmount,
		OutAmount:   route.OutAmount,
	}, nil
}

func (m *MockSwapper) GetTokenPrice(ctx context.Context, token string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.prices[token]
	if !ok {
		return 0, fmt.Errorf("no price for token %s", token)
	}
	return price, nil
}

// Executed returns all executed routes, in order.
func (m *MockSwapper) Executed() []Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Route(nil), m.executed...)
}
