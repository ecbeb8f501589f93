package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-frozen/wallet-telemetry/internal/ledger"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	asOfFlag = ""
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	out, err := run(t, "list", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No entries in "+path)
}

func TestPutThenList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")

	_, err := run(t, "put", "2024-02-01", "100", "--file", path)
	require.NoError(t, err)
	_, err = run(t, "put", "2024-01-31", "90.456", "--file", path)
	require.NoError(t, err)

	out, err := run(t, "list", "--file", path)
	require.NoError(t, err)
	jan := strings.Index(out, "2024-01-31")
	feb := strings.Index(out, "2024-02-01")
	require.True(t, jan >= 0 && feb >= 0, "output missing dates:\n%s", out)
	assert.Less(t, jan, feb, "entries should be in date order")
	assert.Contains(t, out, "90.46")
	assert.Contains(t, out, "2 entries")

	entries, err := ledger.NewFileLedger(path).Entries(context.Background())
	require.NoError(t, err)
	assert.True(t, entries["2024-01-31"].Equal(decimal.RequireFromString("90.46")))
}

func TestPutRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	tests := []struct {
		name string
		args []string
	}{
		{"bad date", []string{"put", "2024-13-01", "1"}},
		{"bad value", []string{"put", "2024-01-01", "abc"}},
		{"negative", []string{"put", "2024-01-01", "-5"}},
		{"missing value", []string{"put", "2024-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append(tt.args, "--file", path)...)
			assert.Error(t, err)
		})
	}
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "rejected puts must not create the ledger")
}

func TestEarnings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	l := ledger.NewFileLedger(path)
	ctx := context.Background()
	for date, v := range map[string]string{
		"2024-01-01": "1000",
		"2024-01-31": "1100",
		"2024-02-10": "1150.5",
	} {
		require.NoError(t, l.Put(ctx, date, decimal.RequireFromString(v)))
	}

	out, err := run(t, "earnings", "--file", path, "--tz", "UTC", "--as-of", "2024-02-15")
	require.NoError(t, err)
	assert.Contains(t, out, "As of 2024-02-15")
	assert.Regexp(t, `This month:\s+50\.50`, out)
	assert.Regexp(t, `Last month \(2024-01\):\s+100\.00`, out)
}

func TestEarningsNoData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	out, err := run(t, "earnings", "--file", path, "--tz", "UTC", "--as-of", "2024-02-15")
	require.NoError(t, err)
	assert.Regexp(t, `This month:\s+no data`, out)
	assert.Regexp(t, `Last month \(2024-01\):\s+no data`, out)
}

func TestEarningsBadTimezone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	_, err := run(t, "earnings", "--file", path, "--tz", "Mars/Olympus")
	assert.Error(t, err)
}
