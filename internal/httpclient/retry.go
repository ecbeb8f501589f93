// Package httpclient builds the retrying HTTP client shared by every
// outbound data source.
package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Options tunes retry and timeout behavior.
type Options struct {
	// Timeout bounds a single attempt.
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultOptions mirrors the retry policy the bot has always used against
// Tronscan: five retries with half-second exponential backoff.
func DefaultOptions() Options {
	return Options{
		Timeout:      30 * time.Second,
		RetryMax:     5,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 8 * time.Second,
	}
}

// New creates a retrying client. 5xx responses (other than 501) and
// connection errors are retried; everything else is returned as-is.
func New(opts Options, logger *slog.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: opts.Timeout}
	c.RetryMax = opts.RetryMax
	c.RetryWaitMin = opts.RetryWaitMin
	c.RetryWaitMax = opts.RetryWaitMax
	// *slog.Logger satisfies retryablehttp.LeveledLogger.
	c.Logger = nil
	if logger != nil {
		c.Logger = logger
	}
	return c
}
