// Package promtest provides helpers to assert on prometheus metrics in tests.
package promtest

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// PrometheusMetricTest stores information about a metric to use for testing.
type PrometheusMetricTest struct {
	tb          testing.TB
	metric      prometheus.Collector
	name        string
	initValue   float64
	labelValues []string
}

// NewPrometheusMetricTest creates a new test object for a Prometheus metric.
// It stores the current value of the metric along with the metric name.
func NewPrometheusMetricTest(tb testing.TB, name string, metric prometheus.Collector, labelValues ...string) *PrometheusMetricTest {
	p := &PrometheusMetricTest{
		tb:          tb,
		metric:      metric,
		name:        name,
		labelValues: labelValues,
	}
	p.initValue = p.getValue()
	return p
}

// CheckDelta checks that the metric value changes exactly delta from when
// NewPrometheusMetricTest was called.
func (p *PrometheusMetricTest) CheckDelta(delta float64) {
	p.tb.Helper()
	got := p.getValue() - p.initValue
	if got != delta {
		p.tb.Errorf("%s metric delta: wanted %v, got %v", p.name, delta, got)
	}
}

func (p *PrometheusMetricTest) getValue() float64 {
	p.tb.Helper()
	switch m := p.metric.(type) {
	case *prometheus.GaugeVec:
		gauge, err := m.GetMetricWithLabelValues(p.labelValues...)
		if err != nil {
			p.tb.Fatalf("get %s metric err %v", p.name, err)
		}
		return testutil.ToFloat64(gauge)
	case *prometheus.CounterVec:
		counter, err := m.GetMetricWithLabelValues(p.labelValues...)
		if err != nil {
			p.tb.Fatalf("get %s metric err %v", p.name, err)
		}
		return testutil.ToFloat64(counter)
	case prometheus.Collector:
		return testutil.ToFloat64(m)
	}
	return 0
}
