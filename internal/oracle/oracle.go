// Package oracle supplies reference prices for rounds. The engine is
// agnostic to the upstream market-data source; it only pulls values through
// the PriceOracle interface.
package oracle

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the price source could not be reached. Round
// completion treats this as retryable and never substitutes a stale or
// default price.
var ErrUnavailable = errors.New("oracle: price unavailable")

// PriceOracle provides the moving reference value and authoritative
// snapshots used to open and score rounds.
type PriceOracle interface {
	// CurrentValue returns the latest known reference price. A short-lived
	// cached value is acceptable here.
	CurrentValue(ctx context.Context) float64

	// SnapshotValue fetches a fresh authoritative price. Implementations
	// must return ErrUnavailable (wrapped) rather than stale data.
	SnapshotValue(ctx context.Context) (float64, error)
}
