package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reddit/searchbp.go/internal/prometheusbpint"
)

const (
	clientLabel     = "client"
	connectionLabel = "connection"
	outcomeLabel    = "outcome"
)

var (
	requestLabels = []string{
		clientLabel,
		outcomeLabel,
	}

	requestsTotal = promauto.With(prometheusbpint.GlobalRegistry).NewCounterVec(prometheus.CounterOpts{
		Name: "searchbp_connection_requests_total",
		Help: "Total requests sent through connections, by terminal outcome",
	}, requestLabels)

	requestLatency = promauto.With(prometheusbpint.GlobalRegistry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "searchbp_connection_request_latency_seconds",
		Help:    "Latency of requests sent through connections, by terminal outcome",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2.5, 14), // 100us ~ 14.9s
	}, requestLabels)

	openRequestsDesc = prometheus.NewDesc(
		"searchbp_connection_open_requests",
		"Number of in-flight requests on a connection",
		[]string{clientLabel, connectionLabel},
		nil,
	)

	openRequestsMaxDesc = prometheus.NewDesc(
		"searchbp_connection_open_requests_max",
		"High watermark of in-flight requests on a connection",
		[]string{clientLabel, connectionLabel},
		nil,
	)
)

// Collector returns a prometheus.Collector reporting the open requests gauge
// and its high watermark for this connection.
//
// Pools register one collector covering all their connections, it's rarely
// needed to register this one directly.
func (c *Connection) Collector() prometheus.Collector {
	labels := []string{c.name, c.ID()}
	return prometheusbpint.HighWatermarkGauge{
		HighWatermarkValue:   &c.openRequests,
		CurrGauge:            openRequestsDesc,
		CurrGaugeLabelValues: labels,
		MaxGauge:             openRequestsMaxDesc,
		MaxGaugeLabelValues:  labels,
	}
}
