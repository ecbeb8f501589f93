package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/web3-frozen/wallet-telemetry/internal/metrics"
)

// ErrSourceUnavailable wraps every failure to obtain a usable snapshot from
// one endpoint: transport errors, timeouts, bad status, malformed payloads.
var ErrSourceUnavailable = errors.New("wallet source unavailable")

const maxBodyBytes = 4 << 20

// Client reads account snapshots from data-source endpoints.
type Client struct {
	http    *retryablehttp.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient returns a client sharing http across endpoints. limiter paces
// outbound requests; nil disables pacing.
func NewClient(hc *retryablehttp.Client, limiter *rate.Limiter, logger *slog.Logger) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{http: hc, limiter: limiter, logger: logger, now: time.Now}
}

// Fetch retrieves and normalizes one endpoint's account payload.
func (c *Client) Fetch(ctx context.Context, endpoint string) (*Snapshot, error) {
	start := time.Now()
	snap, err := c.fetch(ctx, endpoint)
	metrics.SourceFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceFetchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	metrics.SourceFetchTotal.WithLabelValues("ok").Inc()
	c.logger.Debug("wallet fetched", "source", snap.Source, "address", snap.Address)
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", redact(endpoint), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", redact(endpoint), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", redact(endpoint), err)
	}

	snap, err := ParseAccount(body)
	if err != nil {
		return nil, err
	}
	snap.Source = redact(endpoint)
	snap.FetchedAt = c.now()
	return snap, nil
}

// redact drops the query string and credentials, which may carry API keys.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "invalid-url"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
