// Package hyperliquid implements REST and WebSocket clients for the public
// Hyperliquid API. All endpoints are unauthenticated; responses are returned
// loosely typed because their shapes vary between deployments.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hypersig/hypersig/internal/domain"
)

const (
	// requestTimeout bounds a single HTTP round trip.
	requestTimeout = 15 * time.Second

	// maxAttempts is the total number of tries per request, including the first.
	maxAttempts = 3

	// initialBackoff is the delay before the first retry; it doubles per attempt.
	initialBackoff = 500 * time.Millisecond
)

// InfoClient is the REST client for the Hyperliquid /info endpoint. Every
// query is a POST of a typed JSON payload ({"type": ..., ...}) to the same
// URL. Outgoing requests are token-spaced through a shared rate limiter, so
// concurrent callers serialize and each call waits at least 1/maxRPS after
// the previous one.
type InfoClient struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewInfoClient creates an InfoClient for the given /info URL, limited to
// maxRPS requests per second.
func NewInfoClient(url string, maxRPS float64, logger *slog.Logger) *InfoClient {
	return &InfoClient{
		url: url,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(maxRPS), 1),
		logger:  logger.With(slog.String("component", "info_client")),
	}
}

// Info posts an arbitrary info payload and returns the decoded JSON response.
// Known payload kinds have typed wrappers below; Info itself is exposed for
// probing endpoints whose availability is not guaranteed (e.g. leaderboards).
//
// Transient failures (transport errors, HTTP 5xx, HTTP 429) are retried up to
// three attempts with doubling backoff starting at 0.5s. Other HTTP errors are
// terminal. After the final failed attempt the last cause is returned wrapped
// in domain.ErrRetryExhausted.
func (c *InfoClient) Info(ctx context.Context, payload map[string]any) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("hyperliquid: rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: marshal payload: %w", err)
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("hyperliquid: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := c.doOnce(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		c.logger.Debug("info request retrying",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}

	return nil, fmt.Errorf("hyperliquid: %w: %w", domain.ErrRetryExhausted, lastErr)
}

// doOnce performs a single POST attempt and decodes the JSON response.
func (c *InfoClient) doOnce(ctx context.Context, body []byte) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: http request: %w: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: read response: %w: %w", domain.ErrUpstream, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode response: %w", err)
	}
	return decoded, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors. 5xx and 429 map
// to retryable sentinels; everything else is terminal.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("hyperliquid: %w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("hyperliquid: %w: HTTP %d: %s", domain.ErrUpstream, statusCode, bodyStr)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("hyperliquid: %w: %s", domain.ErrNotFound, bodyStr)
	default:
		return fmt.Errorf("hyperliquid: HTTP %d: %s", statusCode, bodyStr)
	}
}

// retryable reports whether err is a transient transport failure.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrUpstream) || errors.Is(err, domain.ErrRateLimited)
}

// --------------------------------------------------------------------------
// Typed payload wrappers
// --------------------------------------------------------------------------

// AllMids returns the current mid price for every instrument. The response is
// either a flat {coin: price} mapping or the same mapping wrapped under a
// "mids" key.
func (c *InfoClient) AllMids(ctx context.Context) (any, error) {
	return c.Info(ctx, map[string]any{"type": "allMids"})
}

// MetaAndAssetCtxs returns [metadata, [assetCtx, ...]] where metadata.universe
// lists instrument names in the same index order as the asset contexts.
func (c *InfoClient) MetaAndAssetCtxs(ctx context.Context) (any, error) {
	return c.Info(ctx, map[string]any{"type": "metaAndAssetCtxs"})
}

// L2Book returns the current order book for a coin.
func (c *InfoClient) L2Book(ctx context.Context, coin string) (any, error) {
	return c.Info(ctx, map[string]any{"type": "l2Book", "coin": coin})
}

// CandleSnapshot returns OHLCV candles for a coin over [startTime, endTime]
// at the given interval (e.g. "15m").
func (c *InfoClient) CandleSnapshot(ctx context.Context, coin, interval string, startTime, endTime int64) (any, error) {
	return c.Info(ctx, map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      coin,
			"interval":  interval,
			"startTime": startTime,
			"endTime":   endTime,
		},
	})
}

// ClearinghouseState returns the per-account snapshot of positions and margin
// for a user address.
func (c *InfoClient) ClearinghouseState(ctx context.Context, user string) (any, error) {
	return c.Info(ctx, map[string]any{"type": "clearinghouseState", "user": user})
}

// VaultDetails returns metadata for a vault address.
func (c *InfoClient) VaultDetails(ctx context.Context, vault string) (any, error) {
	return c.Info(ctx, map[string]any{"type": "vaultDetails", "vaultAddress": vault})
}

// UserFills returns recent fills for a user address.
func (c *InfoClient) UserFills(ctx context.Context, user string) (any, error) {
	return c.Info(ctx, map[string]any{"type": "userFills", "user": user})
}

// UserFillsByTime returns fills for a user address within [startTime, endTime].
func (c *InfoClient) UserFillsByTime(ctx context.Context, user string, startTime, endTime int64) (any, error) {
	return c.Info(ctx, map[string]any{
		"type":      "userFillsByTime",
		"user":      user,
		"startTime": startTime,
		"endTime":   endTime,
	})
}

// HistoricalOrders returns the order history for a user address.
func (c *InfoClient) HistoricalOrders(ctx context.Context, user string) (any, error) {
	return c.Info(ctx, map[string]any{"type": "historicalOrders", "user": user})
}

// FundingHistory returns historical funding rates for a coin within
// [startTime, endTime].
func (c *InfoClient) FundingHistory(ctx context.Context, coin string, startTime, endTime int64) (any, error) {
	return c.Info(ctx, map[string]any{
		"type":      "fundingHistory",
		"coin":      coin,
		"startTime": startTime,
		"endTime":   endTime,
	})
}
