package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/web3-frozen/wallet-telemetry/internal/dedup"
	"github.com/web3-frozen/wallet-telemetry/internal/ledger"
	"github.com/web3-frozen/wallet-telemetry/internal/markdown"
	"github.com/web3-frozen/wallet-telemetry/internal/metrics"
	"github.com/web3-frozen/wallet-telemetry/internal/publisher"
	"github.com/web3-frozen/wallet-telemetry/internal/scheduler"
	"github.com/web3-frozen/wallet-telemetry/internal/wallet"
)

const (
	NoDataText    = "No data for calculation"
	DefaultFiat   = "RUB"
	earningsDedup = "earnings"
)

// Message is one outgoing chat message. Markdown selects MarkdownV2.
type Message struct {
	Text     string
	Markdown bool
}

// DeliverFunc sends a message to a chat.
type DeliverFunc func(ctx context.Context, chatID int64, msg Message) error

// Config is the engine's static configuration.
type Config struct {
	Endpoints []string
	Trigger   scheduler.Trigger
	// Symbol is the tracked asset, e.g. "TRX".
	Symbol string
	// Fiat is the currency quoted by the USD button.
	Fiat string
}

// Deps are the engine's collaborators. Dedup and Publisher are optional.
type Deps struct {
	Collector Collector
	Ledger    ledger.Ledger
	Prices    PriceOracle
	Rates     RateOracle
	Scheduler *scheduler.Scheduler
	Dedup     Deduplicator
	Publisher Publisher
	Deliver   DeliverFunc
	Logger    *slog.Logger
}

// Engine runs the daily wallet report and answers chat commands.
type Engine struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	now  func() time.Time

	mu         sync.RWMutex
	lastReport *wallet.Report
	target     int64
}

func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.Fiat == "" {
		cfg.Fiat = DefaultFiat
	}
	if cfg.Trigger.Location == nil {
		cfg.Trigger.Location = time.UTC
	}
	return &Engine{cfg: cfg, deps: deps, log: deps.Logger, now: time.Now}
}

// Run blocks until ctx is done, then stops the scheduler.
func (e *Engine) Run(ctx context.Context) {
	<-ctx.Done()
	e.deps.Scheduler.Stop()
	e.log.Info("monitor engine stopped")
}

// Arm starts the daily schedule delivering to chatID. Only the first call
// per process takes effect.
func (e *Engine) Arm(ctx context.Context, chatID int64) *scheduler.Handle {
	wasArmed := e.deps.Scheduler.Armed()
	// The loop outlives the command that armed it; shutdown goes through Run.
	h := e.deps.Scheduler.Arm(context.WithoutCancel(ctx), e.cfg.Trigger,
		func(ctx context.Context, firedAt time.Time) { e.runDaily(ctx, chatID, firedAt) },
		func(ctx context.Context, firedAt time.Time) { e.AnnouncePreviousMonth(ctx, chatID, firedAt) },
	)
	if !wasArmed {
		e.mu.Lock()
		e.target = chatID
		e.mu.Unlock()
	}
	return h
}

// Start greets chatID and arms the schedule for it.
func (e *Engine) Start(ctx context.Context, chatID int64) error {
	err := e.deliver(ctx, chatID, "start", Message{Text: fmt.Sprintf(
		"Sending wallet stats every day at %02d:%02d %s",
		e.cfg.Trigger.Hour, e.cfg.Trigger.Minute, e.cfg.Trigger.Location,
	)})
	e.Arm(ctx, chatID)
	return err
}

// Check runs one collection immediately and delivers the report. With no
// wallet data nothing is sent.
func (e *Engine) Check(ctx context.Context, chatID int64) error {
	_, err := e.collectAndDeliver(ctx, chatID, "check")
	if errors.Is(err, wallet.ErrNoData) {
		return nil
	}
	return err
}

// MonthlyStats delivers the current month's earnings.
func (e *Engine) MonthlyStats(ctx context.Context, chatID int64) error {
	asOf := e.now().In(e.cfg.Trigger.Location)
	earned, err := ledger.MonthlyEarnings(ctx, e.deps.Ledger, asOf)
	if err != nil {
		if !errors.Is(err, ledger.ErrUnavailable) {
			e.log.Error("monthly earnings", "error", err)
		}
		return e.deliver(ctx, chatID, "monthly_stats", Message{Text: NoDataText})
	}
	return e.deliver(ctx, chatID, "monthly_stats", Message{
		Text:     fmt.Sprintf("Earned this month: %s %s 🔻", markdown.Bold(markdown.Escape(earned.StringFixed(2))), e.cfg.Symbol),
		Markdown: true,
	})
}

// AnnouncePreviousMonth delivers last month's net change. It stays silent
// when the ledger has no data for that month or the month was already
// announced.
func (e *Engine) AnnouncePreviousMonth(ctx context.Context, chatID int64, asOf time.Time) {
	asOf = asOf.In(e.cfg.Trigger.Location)
	earned, err := ledger.PreviousMonthEarnings(ctx, e.deps.Ledger, asOf)
	if err != nil {
		e.log.Info("previous month earnings unavailable", "as_of", asOf.Format(ledger.DateLayout), "error", err)
		return
	}

	prev := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location()).AddDate(0, -1, 0)
	key := dedup.MonthKey(earningsDedup, prev.Year(), prev.Month())
	if e.deps.Dedup != nil && e.deps.Dedup.AlreadySent(ctx, key) {
		e.log.Info("previous month already announced", "key", key)
		metrics.MessagesDeduplicatedTotal.WithLabelValues("previous_month").Inc()
		return
	}

	err = e.deliver(ctx, chatID, "previous_month", Message{
		Text:     fmt.Sprintf("Earned last month: %s %s 🔻", markdown.Bold(markdown.Escape(earned.StringFixed(2))), e.cfg.Symbol),
		Markdown: true,
	})
	if err == nil && e.deps.Dedup != nil {
		e.deps.Dedup.Record(ctx, key)
	}
}

// CryptoRate delivers the USDT price of symbol.
func (e *Engine) CryptoRate(ctx context.Context, chatID int64, symbol string) error {
	price, ok := e.deps.Prices.SpotPrice(ctx, symbol)
	if !ok {
		return e.deliver(ctx, chatID, "rate", Message{Text: fmt.Sprintf("⚠️ Could not fetch the %s rate", symbol)})
	}
	return e.deliver(ctx, chatID, "rate", Message{Text: fmt.Sprintf("💰 %s/USDT rate: %s 💲", symbol, price.String())})
}

// FiatRate delivers the dollar rate in the configured fiat currency.
func (e *Engine) FiatRate(ctx context.Context, chatID int64) error {
	rate, ok := e.deps.Rates.FiatRate(ctx, e.cfg.Fiat)
	if !ok {
		return e.deliver(ctx, chatID, "rate", Message{Text: fmt.Sprintf("⚠️ Could not fetch the USD/%s rate", e.cfg.Fiat)})
	}
	return e.deliver(ctx, chatID, "rate", Message{Text: fmt.Sprintf("💰 USD to %s rate: %s %s", e.cfg.Fiat, rate.StringFixed(2), currencySign(e.cfg.Fiat))})
}

// LastReport returns the most recent successful report, or nil.
func (e *Engine) LastReport() *wallet.Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReport
}

// Schedule describes the armed schedule.
type Schedule struct {
	Armed   bool      `json:"armed"`
	Trigger string    `json:"trigger"`
	Next    time.Time `json:"next,omitempty"`
	ChatID  int64     `json:"chat_id,omitempty"`
}

// Schedule reports whether the daily run is armed and when it fires next.
func (e *Engine) Schedule() Schedule {
	s := Schedule{Armed: e.deps.Scheduler.Armed(), Trigger: e.cfg.Trigger.String()}
	if h := e.deps.Scheduler.Handle(); h != nil {
		s.Next = h.Next()
	}
	e.mu.RLock()
	s.ChatID = e.target
	e.mu.RUnlock()
	return s
}

func (e *Engine) runDaily(ctx context.Context, chatID int64, firedAt time.Time) {
	runID := uuid.NewString()
	log := e.log.With("run_id", runID)
	log.Info("daily run", "fired_at", firedAt.Format(time.RFC3339), "chat_id", chatID)

	report, err := e.collectAndDeliver(ctx, chatID, "daily")
	if err != nil && !errors.Is(err, wallet.ErrNoData) {
		log.Error("daily run", "error", err)
	}
	if report == nil || !report.Persisted || e.deps.Publisher == nil {
		return
	}
	err = e.deps.Publisher.PublishDailyTotal(publisher.Payload{
		Date:    report.Date,
		Total:   report.Total,
		Symbol:  report.Symbol,
		Wallets: len(report.Wallets),
		RunID:   runID,
	})
	if err != nil {
		log.Error("publish daily total", "error", err)
	}
}

// collectAndDeliver returns the report even when delivery fails.
func (e *Engine) collectAndDeliver(ctx context.Context, chatID int64, kind string) (*wallet.Report, error) {
	report, err := e.deps.Collector.CollectAndReport(ctx, e.cfg.Endpoints)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.lastReport = report
	e.mu.Unlock()

	if err := e.deliver(ctx, chatID, kind, Message{Text: report.Text()}); err != nil {
		return report, err
	}
	return report, nil
}

// deliver logs and counts failures; it never retries.
func (e *Engine) deliver(ctx context.Context, chatID int64, kind string, msg Message) error {
	if err := e.deps.Deliver(ctx, chatID, msg); err != nil {
		metrics.MessagesFailedTotal.WithLabelValues(kind).Inc()
		e.log.Error("deliver message failed", "chat_id", chatID, "kind", kind, "error", err)
		return err
	}
	metrics.MessagesSentTotal.WithLabelValues(kind).Inc()
	return nil
}

func currencySign(code string) string {
	switch code {
	case "RUB":
		return "₽"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	}
	return code
}
