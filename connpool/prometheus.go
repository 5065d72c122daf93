package connpool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reddit/searchbp.go/internal/prometheusbpint"
)

const (
	poolLabel   = "pool"
	statusLabel = "status"
)

var (
	poolConnections = promauto.With(prometheusbpint.GlobalRegistry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "searchbp_pool_connections",
		Help: "Number of connections in the pool",
	}, []string{poolLabel})

	healthTransitions = promauto.With(prometheusbpint.GlobalRegistry).NewCounterVec(prometheus.CounterOpts{
		Name: "searchbp_pool_health_transitions_total",
		Help: "Total connection status changes made by the pool policy, by new status",
	}, []string{poolLabel, statusLabel})
)

// openPools reports the open requests gauges of the connections of every
// open pool.
//
// Connections come and go with topology updates, so their gauges are
// collected on scrape instead of being registered one by one.
var openPools = &poolsCollector{pools: make(map[*Pool]struct{})}

func init() {
	prometheusbpint.GlobalRegistry.MustRegister(openPools)
}

type poolsCollector struct {
	mu    sync.Mutex
	pools map[*Pool]struct{}
}

func (pc *poolsCollector) add(p *Pool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.pools[p] = struct{}{}
}

func (pc *poolsCollector) remove(p *Pool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.pools, p)
}

// Describe implements prometheus.Collector.
//
// It describes nothing, making it an unchecked collector.
func (pc *poolsCollector) Describe(ch chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (pc *poolsCollector) Collect(ch chan<- prometheus.Metric) {
	pc.mu.Lock()
	pools := make([]*Pool, 0, len(pc.pools))
	for p := range pc.pools {
		pools = append(pools, p)
	}
	pc.mu.Unlock()

	for _, p := range pools {
		for _, conn := range p.Connections() {
			conn.Collector().Collect(ch)
		}
	}
}

var _ prometheus.Collector = (*poolsCollector)(nil)
