package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StockCacheMetrics counts cache interactions on the SKU stock read path.
type StockCacheMetrics struct {
	hit      prometheus.Counter
	miss     prometheus.Counter
	fallback prometheus.Counter
	write    prometheus.Counter
	evict    prometheus.Counter
}

// NewStockCacheMetrics registers the counters on the provided registerer.
// A nil registerer yields a no-op instance for tests.
func NewStockCacheMetrics(reg prometheus.Registerer) *StockCacheMetrics {
	if reg == nil {
		return &StockCacheMetrics{}
	}
	hit := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_cache_hit_total",
		Help: "Stock reads served from the cache.",
	})
	miss := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_cache_miss_total",
		Help: "Stock reads that fell through to the database.",
	})
	fallback := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_cache_fallback_total",
		Help: "Stock reads where the cache errored and the database answered.",
	})
	write := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_cache_write_total",
		Help: "Stock snapshots written to the cache.",
	})
	evict := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stock_cache_evict_total",
		Help: "Stock cache entries evicted after a mutation.",
	})
	reg.MustRegister(hit, miss, fallback, write, evict)
	return &StockCacheMetrics{
		hit:      hit,
		miss:     miss,
		fallback: fallback,
		write:    write,
		evict:    evict,
	}
}

func (m *StockCacheMetrics) IncHit() {
	if m == nil || m.hit == nil {
		return
	}
	m.hit.Inc()
}

func (m *StockCacheMetrics) IncMiss() {
	if m == nil || m.miss == nil {
		return
	}
	m.miss.Inc()
}

func (m *StockCacheMetrics) IncFallback() {
	if m == nil || m.fallback == nil {
		return
	}
	m.fallback.Inc()
}

func (m *StockCacheMetrics) IncWrite() {
	if m == nil || m.write == nil {
		return
	}
	m.write.Inc()
}

func (m *StockCacheMetrics) IncEvict() {
	if m == nil || m.evict == nil {
		return
	}
	m.evict.Inc()
}
