package wallet

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one wallet as it appears in a report.
type Entry struct {
	Label    string    `json:"label"`
	Primary  bool      `json:"primary"`
	Snapshot *Snapshot `json:"snapshot"`
}

// Report is the outcome of one collection run.
type Report struct {
	Date      string          `json:"date"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	PriceOK   bool            `json:"price_ok"`
	Mode      TotalMode       `json:"mode"`
	Wallets   []Entry         `json:"wallets"`
	Total     decimal.Decimal `json:"total"`
	Persisted bool            `json:"persisted"`
	Produced  time.Time       `json:"produced_at"`
}

// Text renders the chat message: one block per wallet in endpoint order.
func (r *Report) Text() string {
	var b strings.Builder
	for _, w := range r.Wallets {
		s := w.Snapshot
		fmt.Fprintf(&b, "%s\n\n", w.Label)
		fmt.Fprintf(&b, "💰 %s $\n", FormatInteger(s.USDValue))
		fmt.Fprintf(&b, "🔻 ALL %s   - %s\n\n", r.Symbol, s.AllTokensTotal.String())
		fmt.Fprintf(&b, "⚡️ Energy         -  %s / %s\n", FormatCount(s.EnergyRemaining), FormatCount(s.EnergyLimit))
		fmt.Fprintf(&b, "🔋 Bandwidth  -  %s / %s\n\n", FormatCount(s.TotalBandwidth), FormatCount(s.FreeBandwidth))
		fmt.Fprintf(&b, "🆓 Voting %s   - %s\n", r.Symbol, FormatVoting(s.RewardTokens()))
		fmt.Fprintf(&b, "♦️ Free %s      -  %s\n\n", r.Symbol, FormatInteger(s.FreeTokens()))
	}
	return b.String()
}
