// internal/utils/metrics/collector.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "raydium_watcher"

// Collector держит метрики discovery, котировок и RPC в собственном реестре.
// Все методы безопасны для nil-получателя: компонент без метрик просто не пишет их.
type Collector struct {
	registry *prometheus.Registry

	poolsDiscovered      *prometheus.CounterVec
	discoveryFailures    *prometheus.CounterVec
	quotes               *prometheus.CounterVec
	quoteDuration        *prometheus.HistogramVec
	rpcLatency           *prometheus.HistogramVec
	websocketConnections *prometheus.GaugeVec
	poolLiquidity        *prometheus.GaugeVec
}

// NewCollector создает новый экземпляр коллектора метрик
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		poolsDiscovered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pools_discovered_total",
				Help:      "Pools detected and published by the discovery listener",
			},
			[]string{"mode"},
		),
		discoveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_failures_total",
				Help:      "Detection failures by listener stage",
			},
			[]string{"stage"},
		),
		quotes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quotes_total",
				Help:      "Quote requests by outcome",
			},
			[]string{"status"},
		),
		quoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "quote_duration_seconds",
				Help:      "Quote latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"status"},
		),
		rpcLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_latency_seconds",
				Help:      "RPC request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"method", "status"},
		),
		websocketConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Number of active log subscriptions",
			},
			[]string{"program"},
		),
		poolLiquidity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_initial_liquidity",
				Help:      "Initial reserves of discovered pools",
			},
			[]string{"pool_id", "mint"},
		),
	}

	c.registry.MustRegister(
		c.poolsDiscovered,
		c.discoveryFailures,
		c.quotes,
		c.quoteDuration,
		c.rpcLatency,
		c.websocketConnections,
		c.poolLiquidity,
	)
	return c
}

// Handler отдаёт метрики в формате Prometheus.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry нужен тестам и внешней регистрации.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.poolsDiscovered.Reset()
	c.discoveryFailures.Reset()
	c.quotes.Reset()
	c.quoteDuration.Reset()
	c.rpcLatency.Reset()
	c.websocketConnections.Reset()
	c.poolLiquidity.Reset()
}

// RecordPoolDiscovered учитывает опубликованный пул.
func (c *Collector) RecordPoolDiscovered(mode string) {
	if c == nil {
		return
	}
	c.poolsDiscovered.WithLabelValues(mode).Inc()
}

// RecordDiscoveryFailure учитывает сбой обработки события.
func (c *Collector) RecordDiscoveryFailure(stage string) {
	if c == nil {
		return
	}
	c.discoveryFailures.WithLabelValues(stage).Inc()
}

// RecordQuote записывает исход и длительность котировки.
func (c *Collector) RecordQuote(duration time.Duration, success bool) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	c.quotes.WithLabelValues(status).Inc()
	c.quoteDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRPCLatency записывает метрики RPC-запроса
func (c *Collector) RecordRPCLatency(method string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	c.rpcLatency.WithLabelValues(method, status).Observe(duration.Seconds())
}

// UpdateWebsocketConnections обновляет число активных подписок
func (c *Collector) UpdateWebsocketConnections(program string, delta float64) {
	if c == nil {
		return
	}
	c.websocketConnections.WithLabelValues(program).Add(delta)
}

// UpdatePoolLiquidity обновляет метрики пула
func (c *Collector) UpdatePoolLiquidity(poolID, mint string, amount float64) {
	if c == nil {
		return
	}
	c.poolLiquidity.WithLabelValues(poolID, mint).Set(amount)
}
