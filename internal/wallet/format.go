package wallet

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// FormatInteger rounds d to a whole number with spaces between thousands:
// 1234567.6 -> "1 234 568".
func FormatInteger(d decimal.Decimal) string {
	return humanize.FormatFloat("# ###.", d.Round(0).InexactFloat64())
}

// FormatCount is FormatInteger for resource counters.
func FormatCount(n uint64) string {
	return humanize.FormatFloat("# ###.", float64(n))
}

// FormatVoting renders a whole-token reward with at most two decimals and
// no trailing zeros: 1234.5 -> "1,234.5", 12 -> "12".
func FormatVoting(d decimal.Decimal) string {
	s := humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
