package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"signal_trader_go/config"

	"github.com/go-resty/resty/v2"
)

// Ensure JupiterClient implements the Swapper interface.
var _ Swapper = (*JupiterClient)(nil)

// JupiterClient quotes and executes swaps against a Jupiter-style v6
// aggregator API.
type JupiterClient struct {
	baseURL     string
	httpClient  *resty.Client
	slippageBps int
}

// NewJupiterClient creates a swap client for the given aggregator base URL.
func NewJupiterClient(baseURL string, cfg *config.SwapConfig) *JupiterClient {
	client := resty.New().
		SetTransport(&http.Transport{Proxy: http.ProxyFromEnvironment}).
		SetRetryCount(cfg.RetryCount).
		SetTimeout(time.Duration(cfg.QuoteTimeout) * time.Second)

	return &JupiterClient{
		baseURL:     baseURL,
		httpClient:  client,
		slippageBps: cfg.SlippageBps,
	}
}

func (j *JupiterClient) Name() string { return "Jupiter" }

type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// GetBestRoute queries the aggregator for the best route across DEXes.
func (j *JupiterClient) GetBestRoute(ctx context.Context, inputToken, outputToken string, amount float64) (*Route, error) {
	resp, err := j.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   inputToken,
			"outputMint":  outputToken,
			"amount":      strconv.FormatFloat(amount, 'f', -1, 64),
			"slippageBps": strconv.Itoa(j.slippageBps),
		}).
		Get(j.baseURL + "/v6/quote")
	if err != nil {
		return nil, fmt.Errorf("swap quote request failed: %w", err)
	}

	// The aggregator answers 404 when no route covers the pair. That is a
	// normal "token not found" outcome, not an error.
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("swap quote: unexpected status code %d: %s", resp.StatusCode(), resp.String())
	}

	var quote quoteResponse
	if err := json.Unmarshal(resp.Body(), &quote); err != nil {
		return nil, fmt.Errorf("swap quote: failed to decode response: %w", err)
	}
	if quote.OutAmount == "" || quote.OutAmount == "0" {
		return nil, nil
	}

	inAmount, _ := strconv.ParseFloat(quote.InAmount, 64)
	outAmount, _ := strconv.ParseFloat(quote.OutAmount, 64)
	impact, _ := strconv.ParseFloat(quote.PriceImpactPct, 64)

	return &Route{
		InputToken:     inputToken,
		OutputToken:    outputToken,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		PriceImpactPct: impact,
		Quote:          append(json.RawMessage(nil), resp.Body()...),
	}, nil
}

type swapResponse struct {
	TxID      string `json:"txid"`
	OutAmount string `json:"outAmount"`
}

// ExecuteSwap executes a quoted route. The original quote payload is sent
// back to the aggregator unchanged.
func (j *JupiterClient) ExecuteSwap(ctx context.Context, route *Route) (*SwapResult, error) {
	if route == nil {
		return nil, fmt.Errorf("swap execute: nil route")
	}

	body := map[string]interface{}{
		"quoteResponse": json.RawMessage(route.Quote),
	}

	resp, err := j.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(j.baseURL + "/v6/swap")
	if err != nil {
		return nil, fmt.Errorf("swap execute request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("swap execute: unexpected status code %d: %s", resp.StatusCode(), resp.String())
	}

	var result swapResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("swap execute: failed to decode response: %w", err)
	}

	outAmount := route.OutAmount
	if v, err := strconv.ParseFloat(result.OutAmount, 64); err == nil && v > 0 {
		outAmount = v
	}

	return &SwapResult{
		TxID:        result.TxID,
		InputToken:  route.InputToken,
		OutputToken: route.OutputToken,
		InAmount:    route.InAmount,
		OutAmount:   outAmount,
	}, nil
}

type priceResponse struct {
	Price string `json:"price"`
}

// GetTokenPrice returns the token price in the aggregator's stable quote.
func (j *JupiterClient) GetTokenPrice(ctx context.Context, token string) (float64, error) {
	resp, err := j.httpClient.R().
		SetContext(ctx).
		SetQueryParam("token", token).
		Get(j.baseURL + "/v6/price")
	if err != nil {
		return 0, fmt.Errorf("token price request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("token price: unexpected status code %d", resp.StatusCode())
	}

	var pr priceResponse
	if err := json.Unmarshal(resp.Body(), &pr); err != nil {
		return 0, fmt.Errorf("token price: failed to decode response: %w", err)
	}
	return strconv.ParseFloat(pr.Price, 64)
}
