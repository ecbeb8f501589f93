package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/web3-frozen/wallet-telemetry/internal/ledger"
	"github.com/web3-frozen/wallet-telemetry/internal/metrics"
	"github.com/web3-frozen/wallet-telemetry/internal/tracing"
)

// ErrNoData means no endpoint produced a usable snapshot. Nothing is
// reported and nothing is written to the ledger.
var ErrNoData = errors.New("no wallet data available")

// Fetcher reads one endpoint.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (*Snapshot, error)
}

// PriceOracle quotes symbol in USDT. ok=false means unavailable.
type PriceOracle interface {
	SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// TotalMode selects how several wallets collapse into one ledger value.
type TotalMode string

const (
	// TotalSum records the sum over all wallets in the run.
	TotalSum TotalMode = "sum"
	// TotalLast records the last wallet in endpoint order.
	TotalLast TotalMode = "last"
)

// ParseTotalMode accepts "sum" or "last".
func ParseTotalMode(s string) (TotalMode, error) {
	switch m := TotalMode(s); m {
	case TotalSum, TotalLast:
		return m, nil
	}
	return "", fmt.Errorf("unknown ledger total mode %q (want sum or last)", s)
}

const DefaultSecondaryLabel = "🟡 Wallet address 🟡"

// Options configures an Aggregator.
type Options struct {
	PrimaryAddress string
	PrimaryLabel   string
	SecondaryLabel string
	// Symbol is the priced asset, e.g. "TRX".
	Symbol   string
	Mode     TotalMode
	Location *time.Location
	// Concurrency bounds in-flight endpoint fetches.
	Concurrency int
}

// Aggregator collects every endpoint into one report and records the day's
// total.
type Aggregator struct {
	fetcher Fetcher
	oracle  PriceOracle
	ledger  ledger.Ledger
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

func NewAggregator(f Fetcher, o PriceOracle, l ledger.Ledger, opts Options, logger *slog.Logger) *Aggregator {
	if opts.SecondaryLabel == "" {
		opts.SecondaryLabel = DefaultSecondaryLabel
	}
	if opts.Mode == "" {
		opts.Mode = TotalSum
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Aggregator{fetcher: f, oracle: o, ledger: l, opts: opts, logger: logger, now: time.Now}
}

// CollectAndReport fetches all endpoints, prices them with a single oracle
// call and writes the day's total. Failed endpoints are skipped. When none
// succeed it returns ErrNoData.
func (a *Aggregator) CollectAndReport(ctx context.Context, endpoints []string) (*Report, error) {
	ctx, span := tracing.Start(ctx, "wallet.collect", attribute.Int("endpoints", len(endpoints)))
	defer span.End()

	snaps := a.fetchAll(ctx, endpoints)
	metrics.WalletsReporting.Set(float64(len(snaps)))
	if len(snaps) == 0 {
		a.logger.Warn("no wallet data, skipping report", "endpoints", len(endpoints))
		tracing.RecordError(ctx, ErrNoData)
		return nil, ErrNoData
	}

	price, priceOK := a.oracle.SpotPrice(ctx, a.opts.Symbol)

	now := a.now()
	report := &Report{
		Date:     ledger.DateOf(now, a.opts.Location),
		Symbol:   a.opts.Symbol,
		Price:    price,
		PriceOK:  priceOK,
		Mode:     a.opts.Mode,
		Wallets:  make([]Entry, 0, len(snaps)),
		Total:    decimal.Zero,
		Produced: now,
	}
	for _, s := range snaps {
		s.Value(price, priceOK)
		report.Wallets = append(report.Wallets, Entry{
			Label:    a.label(s.Address),
			Primary:  a.isPrimary(s.Address),
			Snapshot: s,
		})
		switch a.opts.Mode {
		case TotalLast:
			report.Total = s.AllTokensTotal
		default:
			report.Total = report.Total.Add(s.AllTokensTotal)
		}
	}
	span.SetAttributes(
		attribute.Int("wallets", len(snaps)),
		attribute.Bool("price_ok", priceOK),
		attribute.String("total", report.Total.String()),
	)

	if err := a.ledger.Put(ctx, report.Date, report.Total); err != nil {
		a.logger.Error("ledger write failed", "date", report.Date, "error", err)
		metrics.LedgerWritesTotal.WithLabelValues("error").Inc()
		tracing.RecordError(ctx, err)
	} else {
		report.Persisted = true
		metrics.LedgerWritesTotal.WithLabelValues("ok").Inc()
		metrics.DailyTotal.Set(report.Total.InexactFloat64())
		metrics.SourceLastSuccess.SetToCurrentTime()
	}

	a.logger.Info("wallets collected",
		"date", report.Date,
		"wallets", len(snaps),
		"endpoints", len(endpoints),
		"total", report.Total.String(),
		"price_ok", priceOK,
		"mode", string(a.opts.Mode),
	)
	return report, nil
}

// fetchAll runs the endpoints concurrently and returns the successful
// snapshots in endpoint order.
func (a *Aggregator) fetchAll(ctx context.Context, endpoints []string) []*Snapshot {
	results := make([]*Snapshot, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			snap, err := a.fetcher.Fetch(gctx, ep)
			if err != nil {
				a.logger.Error("wallet fetch failed", "endpoint", i, "error", err)
				return nil
			}
			results[i] = snap
			return nil
		})
	}
	_ = g.Wait()

	snaps := make([]*Snapshot, 0, len(results))
	for _, s := range results {
		if s != nil {
			snaps = append(snaps, s)
		}
	}
	return snaps
}

func (a *Aggregator) isPrimary(address string) bool {
	return a.opts.PrimaryAddress != "" && address == a.opts.PrimaryAddress
}

func (a *Aggregator) label(address string) string {
	if a.isPrimary(address) {
		return a.opts.PrimaryLabel
	}
	return a.opts.SecondaryLabel
}
