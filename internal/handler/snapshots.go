package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3-frozen/wallet-telemetry/internal/ledger"
	"github.com/web3-frozen/wallet-telemetry/internal/monitor"
	"github.com/web3-frozen/wallet-telemetry/internal/wallet"
)

// ReportSource exposes the last collected report.
type ReportSource interface {
	LastReport() *wallet.Report
}

// ScheduleSource exposes the daily schedule.
type ScheduleSource interface {
	Schedule() monitor.Schedule
}

type ledgerEntry struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}

type snapshotsResponse struct {
	Latest *wallet.Report `json:"latest"`
	Ledger []ledgerEntry  `json:"ledger"`
}

// Snapshots returns the latest report and the full daily ledger in date
// order.
func Snapshots(reports ReportSource, l ledger.Ledger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := l.Entries(r.Context())
		if err != nil {
			logger.Error("read ledger", "error", err)
			http.Error(w, `{"error":"ledger unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		resp := snapshotsResponse{
			Latest: reports.LastReport(),
			Ledger: make([]ledgerEntry, 0, len(entries)),
		}
		for _, d := range entries.Dates() {
			resp.Ledger = append(resp.Ledger, ledgerEntry{Date: d, Total: entries[d]})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type earningsResponse struct {
	AsOf          string           `json:"as_of"`
	Monthly       *decimal.Decimal `json:"monthly"`
	PreviousMonth *decimal.Decimal `json:"previous_month"`
	PreviousKey   string           `json:"previous_month_key"`
}

// Earnings computes both earnings figures as of ?as_of=YYYY-MM-DD (default
// today). Unavailable figures are null.
func Earnings(l ledger.Ledger, loc *time.Location, now func() time.Time, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asOf := now().In(loc)
		if v := r.URL.Query().Get("as_of"); v != "" {
			t, err := time.ParseInLocation(ledger.DateLayout, v, loc)
			if err != nil {
				http.Error(w, `{"error":"as_of must be YYYY-MM-DD"}`, http.StatusBadRequest)
				return
			}
			asOf = t
		}

		entries, err := l.Entries(r.Context())
		if err != nil {
			logger.Error("read ledger", "error", err)
			http.Error(w, `{"error":"ledger unavailable"}`, http.StatusServiceUnavailable)
			return
		}

		resp := earningsResponse{
			AsOf:        asOf.Format(ledger.DateLayout),
			PreviousKey: ledger.PreviousMonthKey(asOf),
		}
		if v, err := entries.MonthlyEarnings(asOf); err == nil {
			resp.Monthly = &v
		} else if !errors.Is(err, ledger.ErrUnavailable) {
			logger.Error("monthly earnings", "error", err)
		}
		if v, err := entries.PreviousMonthEarnings(asOf); err == nil {
			resp.PreviousMonth = &v
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Schedule reports whether the daily run is armed and its next instant.
func Schedule(s ScheduleSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Schedule())
	}
}
