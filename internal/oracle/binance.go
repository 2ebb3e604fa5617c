package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultBinanceBase = "https://api.binance.com"
	defaultSymbol      = "BTCUSDT"

	// Binance allows 1200 request weight/min on the ticker endpoint; stay
	// well under it since several processes may poll concurrently.
	tickerRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond

	// How long a fetched price may serve CurrentValue before a refetch.
	cacheTTL = 2 * time.Second
)

// BinanceOracle fetches spot prices from the Binance ticker endpoint with
// rate limiting and bounded retries.
type BinanceOracle struct {
	http    *http.Client
	base    string
	symbol  string
	limiter *rate.Limiter

	mu        sync.Mutex
	lastPrice float64
	fetchedAt time.Time
}

// NewBinanceOracle creates an oracle for the given symbol. Empty arguments
// fall back to the production base URL and BTCUSDT.
func NewBinanceOracle(base, symbol string) *BinanceOracle {
	if base == "" {
		base = defaultBinanceBase
	}
	if symbol == "" {
		symbol = defaultSymbol
	}
	return &BinanceOracle{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		symbol:  symbol,
		limiter: rate.NewLimiter(tickerRatePerSec, 5),
	}
}

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// CurrentValue returns the most recent price, refetching when the cached
// value is older than the cache TTL. On fetch failure it falls back to the
// last known price; callers that need a guaranteed-fresh value must use
// SnapshotValue.
func (o *BinanceOracle) CurrentValue(ctx context.Context) float64 {
	o.mu.Lock()
	if time.Since(o.fetchedAt) < cacheTTL && o.lastPrice > 0 {
		price := o.lastPrice
		o.mu.Unlock()
		return price
	}
	o.mu.Unlock()

	price, err := o.fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("symbol", o.symbol).Msg("price refresh failed, serving last known value")
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.lastPrice
	}
	return price
}

// SnapshotValue fetches a fresh authoritative price, retrying transient
// failures. It never serves the cache.
func (o *BinanceOracle) SnapshotValue(ctx context.Context) (float64, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := baseRetryWait * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return 0, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		price, err := o.fetch(ctx)
		if err == nil {
			return price, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (o *BinanceOracle) fetch(ctx context.Context) (float64, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", o.base, o.symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("ticker status %d: %s", resp.StatusCode, body)
	}

	var ticker tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("invalid ticker price %q", ticker.Price)
	}

	o.mu.Lock()
	o.lastPrice = price
	o.fetchedAt = time.Now()
	o.mu.Unlock()

	return price, nil
}
