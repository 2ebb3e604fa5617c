package oracle

import (
	"context"
	"sync"
)

// StaticOracle serves a settable price without touching the network. It backs
// local single-process deployments and tests.
type StaticOracle struct {
	mu    sync.RWMutex
	price float64
	err   error
}

// NewStaticOracle returns an oracle pinned to the given price.
func NewStaticOracle(price float64) *StaticOracle {
	return &StaticOracle{price: price}
}

// SetPrice updates the served price.
func (o *StaticOracle) SetPrice(price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = price
}

// FailSnapshots makes SnapshotValue return err until cleared with nil.
func (o *StaticOracle) FailSnapshots(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *StaticOracle) CurrentValue(ctx context.Context) float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price
}

func (o *StaticOracle) SnapshotValue(ctx context.Context) (float64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.err != nil {
		return 0, o.err
	}
	return o.price, nil
}
