package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
)

// FileLedger stores entries as a flat, indented JSON object on disk.
// Every Put rewrites the whole file through a temp file and rename, so a
// crash mid-write leaves the previous contents intact.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger returns a ledger backed by path. The file is created on the
// first Put.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Path returns the backing file.
func (l *FileLedger) Path() string { return l.path }

func (l *FileLedger) Put(ctx context.Context, date string, value decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateDate(date); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// A file that fails to parse is left alone rather than overwritten.
	entries, err := l.load()
	if err != nil {
		return err
	}
	entries[date] = value
	return l.write(entries)
}

func (l *FileLedger) Entries(ctx context.Context) (Entries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *FileLedger) load() (Entries, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entries{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var raw map[string]json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", l.path, err)
	}

	entries := make(Entries, len(raw))
	for date, n := range raw {
		v, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil, fmt.Errorf("decode ledger value for %s: %w", date, err)
		}
		entries[date] = v
	}
	return entries, nil
}

func (l *FileLedger) write(entries Entries) error {
	raw := make(map[string]json.Number, len(entries))
	for date, v := range entries {
		raw[date] = json.Number(v.String())
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		cleanup()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		cleanup()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		cleanup()
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
