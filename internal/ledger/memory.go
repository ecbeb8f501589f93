package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryLedger keeps entries in process memory. Used by tests and by
// ledgerctl dry runs.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries Entries
}

// NewMemoryLedger returns a ledger seeded with a copy of initial.
func NewMemoryLedger(initial Entries) *MemoryLedger {
	m := &MemoryLedger{entries: Entries{}}
	for d, v := range initial {
		m.entries[d] = v
	}
	return m
}

func (m *MemoryLedger) Put(ctx context.Context, date string, value decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateDate(date); err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[date] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryLedger) Entries(ctx context.Context) (Entries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Entries, len(m.entries))
	for d, v := range m.entries {
		out[d] = v
	}
	return out, nil
}
