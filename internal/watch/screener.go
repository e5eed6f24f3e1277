// Package watch polls DexScreener for the live market caps of the tokens
// behind active markets and feeds them into the registry.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mememarket/exchange/internal/domain"
)

const defaultBaseURL = "https://api.dexscreener.com/latest"

// TokenQuote is the subset of a DexScreener pair the watcher cares about.
type TokenQuote struct {
	PriceUSD  float64
	MarketCap float64
	DexID     string
}

// ScreenerClient fetches token market data from the DexScreener API.
type ScreenerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewScreenerClient creates a client. baseURL may be empty for production;
// tests point it at an httptest server.
func NewScreenerClient(baseURL string, httpClient *http.Client) *ScreenerClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ScreenerClient{baseURL: baseURL, httpClient: httpClient}
}

// screenerResponse mirrors the DexScreener token endpoint. Pairs come back
// most liquid first; the watcher takes the first one.
type screenerResponse struct {
	Pairs []struct {
		DexID     string  `json:"dexId"`
		PriceUSD  string  `json:"priceUsd"`
		MarketCap float64 `json:"marketCap"`
		FDV       float64 `json:"fdv"`
	} `json:"pairs"`
}

// TokenQuote returns market data for a token address. Tokens with no listed
// pairs map to domain.ErrNotFound.
func (c *ScreenerClient) TokenQuote(ctx context.Context, tokenAddress string) (TokenQuote, error) {
	url := fmt.Sprintf("%s/dex/tokens/%s", c.baseURL, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TokenQuote{}, fmt.Errorf("watch: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenQuote{}, fmt.Errorf("watch: fetch %s: %w", tokenAddress, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenQuote{}, fmt.Errorf("watch: fetch %s: status %d", tokenAddress, resp.StatusCode)
	}

	var body screenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return TokenQuote{}, fmt.Errorf("watch: decode %s: %w", tokenAddress, err)
	}
	if len(body.Pairs) == 0 {
		return TokenQuote{}, domain.ErrNotFound
	}

	pair := body.Pairs[0]
	price, err := strconv.ParseFloat(pair.PriceUSD, 64)
	if err != nil {
		return TokenQuote{}, fmt.Errorf("watch: parse price %q for %s: %w", pair.PriceUSD, tokenAddress, err)
	}

	cap := pair.MarketCap
	if cap == 0 {
		cap = pair.FDV
	}
	return TokenQuote{PriceUSD: price, MarketCap: cap, DexID: pair.DexID}, nil
}
