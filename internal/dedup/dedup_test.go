package dedup

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestDedup(t *testing.T) (*Deduplicator, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	d, err := New("redis://"+mr.Addr(), "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		mr.Close()
		t.Fatalf("New: %v", err)
	}
	return d, mr
}

func TestAlreadySentNewKey(t *testing.T) {
	d, mr := setupTestDedup(t)
	defer mr.Close()
	defer d.Close()

	ctx := context.Background()
	if d.AlreadySent(ctx, "earnings:2024-02") {
		t.Error("AlreadySent should return false for new key")
	}
}

func TestRecordAndAlreadySent(t *testing.T) {
	d, mr := setupTestDedup(t)
	defer mr.Close()
	defer d.Close()

	ctx := context.Background()
	d.Record(ctx, "earnings:2024-02")

	if !d.AlreadySent(ctx, "earnings:2024-02") {
		t.Error("AlreadySent should return true after Record")
	}
	if !mr.Exists(keyPrefix + "earnings:2024-02") {
		t.Error("key should be stored under the service prefix")
	}
}

func TestRecordExpires(t *testing.T) {
	d, mr := setupTestDedup(t)
	defer mr.Close()
	defer d.Close()

	ctx := context.Background()
	d.Record(ctx, "earnings:2024-02")

	if ttl := mr.TTL(keyPrefix + "earnings:2024-02"); ttl != DefaultTTL {
		t.Errorf("TTL = %v, want %v", ttl, DefaultTTL)
	}

	mr.FastForward(DefaultTTL + time.Second)
	if d.AlreadySent(ctx, "earnings:2024-02") {
		t.Error("AlreadySent should return false after the TTL elapsed")
	}
}

func TestClear(t *testing.T) {
	d, mr := setupTestDedup(t)
	defer mr.Close()
	defer d.Close()

	ctx := context.Background()
	d.Record(ctx, "earnings:2024-03")

	if !d.AlreadySent(ctx, "earnings:2024-03") {
		t.Fatal("should be sent after Record")
	}

	d.Clear(ctx, "earnings:2024-03")
	if d.AlreadySent(ctx, "earnings:2024-03") {
		t.Error("AlreadySent should return false after Clear")
	}
}

func TestAlreadySentFailOpen(t *testing.T) {
	d, mr := setupTestDedup(t)
	defer d.Close()

	// Stop Redis to simulate failure
	mr.Close()

	ctx := context.Background()
	if d.AlreadySent(ctx, "earnings:2024-02") {
		t.Error("AlreadySent should return false (fail-open) when Redis is down")
	}
	// Must not panic.
	d.Record(ctx, "earnings:2024-02")
}

func TestNewUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	if _, err := New("redis://"+addr, "", slog.Default()); err == nil {
		t.Error("New should fail when Redis is unreachable")
	}
	if _, err := New("://bad", "", slog.Default()); err == nil {
		t.Error("New should fail on a malformed URL")
	}
}

func TestMonthKey(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  string
	}{
		{2024, time.February, "earnings:2024-02"},
		{2023, time.December, "earnings:2023-12"},
		{999, time.January, "earnings:0999-01"},
	}
	for _, tt := range tests {
		if got := MonthKey("earnings", tt.year, tt.month); got != tt.want {
			t.Errorf("MonthKey(%d, %v) = %q, want %q", tt.year, tt.month, got, tt.want)
		}
	}
}
