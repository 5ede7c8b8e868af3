// internal/utils/metrics/collector_test.go
package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector()

	c.RecordPoolDiscovered("oneshot")
	c.RecordPoolDiscovered("oneshot")
	c.RecordDiscoveryFailure("Fetching")
	c.RecordQuote(5*time.Millisecond, true)
	c.RecordQuote(time.Millisecond, false)
	c.RecordRPCLatency("getTransaction", 20*time.Millisecond, true)
	c.UpdateWebsocketConnections("prog", 1)
	c.UpdatePoolLiquidity("pool", "mint", 79)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.poolsDiscovered.WithLabelValues("oneshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.discoveryFailures.WithLabelValues("Fetching")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.quotes.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.websocketConnections.WithLabelValues("prog")))
	assert.Equal(t, 79.0, testutil.ToFloat64(c.poolLiquidity.WithLabelValues("pool", "mint")))

	c.Reset()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.poolsDiscovered.WithLabelValues("oneshot")))
}

func TestCollectorNilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordPoolDiscovered("active")
		c.RecordDiscoveryFailure("Publishing")
		c.RecordQuote(time.Second, true)
		c.RecordRPCLatency("getSlot", time.Second, false)
		c.UpdateWebsocketConnections("prog", -1)
		c.UpdatePoolLiquidity("pool", "mint", 1)
		c.Reset()
	})
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.RecordPoolDiscovered("active")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `raydium_watcher_pools_discovered_total{mode="active"} 1`)
}
