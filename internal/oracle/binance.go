// Package oracle looks up spot prices and fiat exchange rates. Lookups never
// fail the caller: an unreachable or malformed source reports ok=false.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/web3-frozen/wallet-telemetry/internal/metrics"
)

const binanceTickerAPI = "https://api.binance.com/api/v3/ticker/price"

// QuoteAsset is the fixed quote currency of every spot lookup.
const QuoteAsset = "USDT"

type binanceTickerResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Binance fetches spot prices from the Binance public ticker.
type Binance struct {
	client  *retryablehttp.Client
	baseURL string
	logger  *slog.Logger
}

func NewBinance(client *retryablehttp.Client, logger *slog.Logger) *Binance {
	return &Binance{client: client, baseURL: binanceTickerAPI, logger: logger}
}

// FetchPrice fetches the current price of symbol against USDT.
// symbol is the base asset without the quote (e.g., "TRX").
func (b *Binance) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	pair := strings.ToUpper(strings.TrimSpace(symbol)) + QuoteAsset
	url := fmt.Sprintf("%s?symbol=%s", b.baseURL, pair)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("binance API status: %d", resp.StatusCode)
	}

	var ticker binanceTickerResp
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return decimal.Zero, fmt.Errorf("decode binance ticker: %w", err)
	}
	if ticker.Price == "" {
		return decimal.Zero, fmt.Errorf("binance ticker %s has no price", pair)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse binance price: %w", err)
	}
	return price, nil
}

// SpotPrice is FetchPrice with failures folded into ok=false.
func (b *Binance) SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	price, err := b.FetchPrice(ctx, symbol)
	if err != nil {
		b.logger.Warn("spot price unavailable", "symbol", symbol, "error", err)
		metrics.PriceLookupsTotal.WithLabelValues(symbol, "unavailable").Inc()
		return decimal.Zero, false
	}
	metrics.PriceLookupsTotal.WithLabelValues(symbol, "ok").Inc()
	return price, true
}
