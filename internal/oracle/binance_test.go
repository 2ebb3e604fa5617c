package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tickerServer(t *testing.T, price string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		fmt.Fprintf(w, `{"symbol":"BTCUSDT","price":"%s"}`, price)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSnapshotValue(t *testing.T) {
	server := tickerServer(t, "100000.50", nil)
	o := NewBinanceOracle(server.URL, "BTCUSDT")

	price, err := o.SnapshotValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100000.50, price)
}

func TestSnapshotValueRetriesThenFails(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	o := NewBinanceOracle(server.URL, "BTCUSDT")

	_, err := o.SnapshotValue(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int64(3), hits.Load())
}

func TestSnapshotValueRejectsBadPrice(t *testing.T) {
	server := tickerServer(t, "-5", nil)
	o := NewBinanceOracle(server.URL, "BTCUSDT")

	_, err := o.SnapshotValue(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCurrentValueServesCache(t *testing.T) {
	var hits atomic.Int64
	server := tickerServer(t, "100000", &hits)
	o := NewBinanceOracle(server.URL, "BTCUSDT")

	first := o.CurrentValue(context.Background())
	second := o.CurrentValue(context.Background())

	assert.Equal(t, 100000.0, first)
	assert.Equal(t, 100000.0, second)
	assert.Equal(t, int64(1), hits.Load())
}

func TestCurrentValueFallsBackToLastKnown(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"100000"}`)
	}))
	t.Cleanup(server.Close)
	o := NewBinanceOracle(server.URL, "BTCUSDT")

	price, err := o.SnapshotValue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100000.0, price)

	fail.Store(true)

	// A snapshot never serves stale data, but CurrentValue degrades to it.
	_, err = o.SnapshotValue(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 100000.0, o.CurrentValue(context.Background()))
}

func TestStaticOracle(t *testing.T) {
	o := NewStaticOracle(50_000)

	assert.Equal(t, 50_000.0, o.CurrentValue(context.Background()))
	price, err := o.SnapshotValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50_000.0, price)

	o.SetPrice(60_000)
	assert.Equal(t, 60_000.0, o.CurrentValue(context.Background()))

	feedErr := errors.New("feed down")
	o.FailSnapshots(feedErr)
	_, err = o.SnapshotValue(context.Background())
	assert.ErrorIs(t, err, feedErr)

	o.FailSnapshots(nil)
	_, err = o.SnapshotValue(context.Background())
	assert.NoError(t, err)
}
