package monitor

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/web3-frozen/wallet-telemetry/internal/publisher"
	"github.com/web3-frozen/wallet-telemetry/internal/wallet"
)

// Collector produces one wallet report per call.
type Collector interface {
	CollectAndReport(ctx context.Context, endpoints []string) (*wallet.Report, error)
}

// PriceOracle quotes a crypto asset in USDT.
type PriceOracle interface {
	SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// RateOracle quotes one US dollar in a fiat currency.
type RateOracle interface {
	FiatRate(ctx context.Context, currency string) (decimal.Decimal, bool)
}

// Deduplicator remembers announcements across restarts.
type Deduplicator interface {
	AlreadySent(ctx context.Context, key string) bool
	Record(ctx context.Context, key string)
}

// Publisher receives every persisted daily total.
type Publisher interface {
	PublishDailyTotal(p publisher.Payload) error
}
