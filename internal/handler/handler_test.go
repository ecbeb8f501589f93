package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3-frozen/wallet-telemetry/internal/ledger"
	"github.com/web3-frozen/wallet-telemetry/internal/monitor"
	"github.com/web3-frozen/wallet-telemetry/internal/wallet"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func scenarioLedger() *ledger.MemoryLedger {
	return ledger.NewMemoryLedger(ledger.Entries{
		"2024-01-31": decimal.RequireFromString("100"),
		"2024-02-15": decimal.RequireFromString("110"),
		"2024-02-28": decimal.RequireFromString("118.5"),
	})
}

type brokenLedger struct{}

func (brokenLedger) Put(context.Context, string, decimal.Decimal) error { return errors.New("read-only") }
func (brokenLedger) Entries(context.Context) (ledger.Entries, error) {
	return nil, errors.New("decode ledger: unexpected EOF")
}

type staticReports struct{ r *wallet.Report }

func (s staticReports) LastReport() *wallet.Report { return s.r }

type staticSchedule monitor.Schedule

func (s staticSchedule) Schedule() monitor.Schedule { return monitor.Schedule(s) }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name string
		l    ledger.Ledger
		want int
	}{
		{"readable", scenarioLedger(), http.StatusOK},
		{"empty", ledger.NewMemoryLedger(nil), http.StatusOK},
		{"corrupt", brokenLedger{}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Ready(tt.l).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSnapshots(t *testing.T) {
	report := &wallet.Report{Date: "2024-02-28", Symbol: "TRX", Total: decimal.RequireFromString("118.5")}
	handler := Snapshots(staticReports{report}, scenarioLedger(), quiet)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Latest *struct {
			Date  string `json:"date"`
			Total string `json:"total"`
		} `json:"latest"`
		Ledger []struct {
			Date  string `json:"date"`
			Total string `json:"total"`
		} `json:"ledger"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Latest == nil || resp.Latest.Date != "2024-02-28" || resp.Latest.Total != "118.5" {
		t.Errorf("latest = %+v", resp.Latest)
	}
	if len(resp.Ledger) != 3 {
		t.Fatalf("len(ledger) = %d, want 3", len(resp.Ledger))
	}
	if resp.Ledger[0].Date != "2024-01-31" || resp.Ledger[2].Date != "2024-02-28" {
		t.Errorf("ledger not in date order: %+v", resp.Ledger)
	}
}

func TestSnapshotsNoReportYet(t *testing.T) {
	rec := httptest.NewRecorder()
	Snapshots(staticReports{}, ledger.NewMemoryLedger(nil), quiet).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got != "{\"latest\":null,\"ledger\":[]}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestSnapshotsLedgerError(t *testing.T) {
	rec := httptest.NewRecorder()
	Snapshots(staticReports{}, brokenLedger{}, quiet).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestEarnings(t *testing.T) {
	msk, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatal(err)
	}
	now := func() time.Time { return time.Date(2024, 3, 1, 12, 20, 0, 0, msk) }
	handler := Earnings(scenarioLedger(), msk, now, quiet)

	tests := []struct {
		query    string
		code     int
		asOf     string
		monthly  string
		previous string
		prevKey  string
	}{
		{"", http.StatusOK, "2024-03-01", "", "8.5", "2024-02"},
		{"?as_of=2024-02-28", http.StatusOK, "2024-02-28", "18.5", "0", "2024-01"},
		{"?as_of=2023-06-01", http.StatusOK, "2023-06-01", "", "", "2023-05"},
		{"?as_of=28.02.2024", http.StatusBadRequest, "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/earnings"+tt.query, nil))
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if tt.code != http.StatusOK {
				return
			}

			var resp struct {
				AsOf          string  `json:"as_of"`
				Monthly       *string `json:"monthly"`
				PreviousMonth *string `json:"previous_month"`
				PreviousKey   string  `json:"previous_month_key"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.AsOf != tt.asOf {
				t.Errorf("as_of = %q, want %q", resp.AsOf, tt.asOf)
			}
			if got := deref(resp.Monthly); got != tt.monthly {
				t.Errorf("monthly = %q, want %q", got, tt.monthly)
			}
			if got := deref(resp.PreviousMonth); got != tt.previous {
				t.Errorf("previous_month = %q, want %q", got, tt.previous)
			}
			if resp.PreviousKey != tt.prevKey {
				t.Errorf("previous_month_key = %q, want %q", resp.PreviousKey, tt.prevKey)
			}
		})
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestSchedule(t *testing.T) {
	next := time.Date(2024, 3, 2, 9, 20, 0, 0, time.UTC)
	rec := httptest.NewRecorder()
	Schedule(staticSchedule{Armed: true, Trigger: "12:20 Europe/Moscow", Next: next, ChatID: 42}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schedule", nil))

	var got monitor.Schedule
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Armed || got.ChatID != 42 || !got.Next.Equal(next) || got.Trigger != "12:20 Europe/Moscow" {
		t.Errorf("schedule = %+v", got)
	}
}
