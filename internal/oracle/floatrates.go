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

const floatRatesUSD = "http://www.floatrates.com/daily/usd.json"

type floatRate struct {
	Code string          `json:"code"`
	Rate decimal.Decimal `json:"rate"`
}

// FloatRates reads daily USD exchange rates from floatrates.com.
type FloatRates struct {
	client  *retryablehttp.Client
	baseURL string
	logger  *slog.Logger
}

func NewFloatRates(client *retryablehttp.Client, logger *slog.Logger) *FloatRates {
	return &FloatRates{client: client, baseURL: floatRatesUSD, logger: logger}
}

// FetchRate returns how many units of currency one US dollar buys, rounded
// to two decimals.
func (f *FloatRates) FetchRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.baseURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("floatrates request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("floatrates API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("floatrates API status: %d", resp.StatusCode)
	}

	var rates map[string]floatRate
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return decimal.Zero, fmt.Errorf("decode floatrates: %w", err)
	}
	r, ok := rates[strings.ToLower(currency)]
	if !ok || !r.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("floatrates has no rate for %s", currency)
	}
	return r.Rate.Round(2), nil
}

// FiatRate is FetchRate with failures folded into ok=false.
func (f *FloatRates) FiatRate(ctx context.Context, currency string) (decimal.Decimal, bool) {
	rate, err := f.FetchRate(ctx, currency)
	if err != nil {
		f.logger.Warn("fiat rate unavailable", "currency", currency, "error", err)
		metrics.PriceLookupsTotal.WithLabelValues("USD"+strings.ToUpper(currency), "unavailable").Inc()
		return decimal.Zero, false
	}
	metrics.PriceLookupsTotal.WithLabelValues("USD"+strings.ToUpper(currency), "ok").Inc()
	return rate, true
}
