package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	jupiterURL   = "https://price.jup.ag/v4/price?ids=SOL"
	coinGeckoURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
	binanceURL   = "https://api.binance.com/api/v3/ticker/price?symbol=SOLUSDT"
)

// source pairs a price API's name with its fetcher. Order in the feed's
// slice is the failover order.
type source struct {
	name  string
	fetch func(ctx context.Context) (float64, error)
}

func buildSources(cfg Config, client *http.Client) []source {
	jupiter := cfg.JupiterURL
	if jupiter == "" {
		jupiter = jupiterURL
	}
	gecko := cfg.CoinGeckoURL
	if gecko == "" {
		gecko = coinGeckoURL
	}
	binance := cfg.BinanceURL
	if binance == "" {
		binance = binanceURL
	}

	return []source{
		{name: "jupiter", fetch: func(ctx context.Context) (float64, error) {
			var body struct {
				Data struct {
					SOL struct {
						Price float64 `json:"price"`
					} `json:"SOL"`
				} `json:"data"`
			}
			if err := getJSON(ctx, client, jupiter, &body); err != nil {
				return 0, err
			}
			return body.Data.SOL.Price, nil
		}},
		{name: "coingecko", fetch: func(ctx context.Context) (float64, error) {
			var body struct {
				Solana struct {
					USD float64 `json:"usd"`
				} `json:"solana"`
			}
			if err := getJSON(ctx, client, gecko, &body); err != nil {
				return 0, err
			}
			return body.Solana.USD, nil
		}},
		{name: "binance", fetch: func(ctx context.Context) (float64, error) {
			var body struct {
				Price string `json:"price"`
			}
			if err := getJSON(ctx, client, binance, &body); err != nil {
				return 0, err
			}
			var price float64
			if _, err := fmt.Sscanf(body.Price, "%f", &price); err != nil {
				return 0, fmt.Errorf("oracle: binance price %q: %w", body.Price, err)
			}
			return price, nil
		}},
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("oracle: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("oracle: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle: fetch %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("oracle: decode %s: %w", url, err)
	}
	return nil
}
