package prometheusbpint

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// HighWatermarkValue implements an int64 gauge with high watermark value.
//
// The value never goes below zero, a Dec at zero is reported back to the
// caller instead of being applied.
type HighWatermarkValue struct {
	lock sync.RWMutex
	curr int64
	max  int64
}

// Inc increases the gauge value by 1 and returns the new value.
func (hwv *HighWatermarkValue) Inc() int64 {
	hwv.lock.Lock()
	defer hwv.lock.Unlock()

	hwv.curr++
	if hwv.curr > hwv.max {
		hwv.max = hwv.curr
	}
	return hwv.curr
}

// Dec decreases the gauge value by 1.
//
// It returns false and leaves the value untouched when it's already 0.
func (hwv *HighWatermarkValue) Dec() bool {
	hwv.lock.Lock()
	defer hwv.lock.Unlock()

	if hwv.curr <= 0 {
		return false
	}
	hwv.curr--
	return true
}

// Get gets the current gauge value.
func (hwv *HighWatermarkValue) Get() int64 {
	hwv.lock.RLock()
	defer hwv.lock.RUnlock()

	return hwv.curr
}

// Max returns the max gauge value (the high watermark).
func (hwv *HighWatermarkValue) Max() int64 {
	hwv.lock.RLock()
	defer hwv.lock.RUnlock()

	return hwv.max
}

func (hwv *HighWatermarkValue) getBoth() (curr, max int64) {
	hwv.lock.RLock()
	defer hwv.lock.RUnlock()

	return hwv.curr, hwv.max
}

// HighWatermarkGauge is a prometheus.Collector reporting up to 2 gauges
// backed by a HighWatermarkValue.
type HighWatermarkGauge struct {
	*HighWatermarkValue

	// Optional gauge reporting the current value.
	CurrGauge            *prometheus.Desc
	CurrGaugeLabelValues []string

	// Optional gauge reporting the high watermark.
	MaxGauge            *prometheus.Desc
	MaxGaugeLabelValues []string
}

// Describe implements prometheus.Collector.
func (hwg HighWatermarkGauge) Describe(ch chan<- *prometheus.Desc) {
	// All metrics are described dynamically.
}

// Collect implements prometheus.Collector.
func (hwg HighWatermarkGauge) Collect(ch chan<- prometheus.Metric) {
	curr, max := hwg.HighWatermarkValue.getBoth()

	if hwg.CurrGauge != nil {
		ch <- prometheus.MustNewConstMetric(
			hwg.CurrGauge,
			prometheus.GaugeValue,
			float64(curr),
			hwg.CurrGaugeLabelValues...,
		)
	}
	if hwg.MaxGauge != nil {
		ch <- prometheus.MustNewConstMetric(
			hwg.MaxGauge,
			prometheus.GaugeValue,
			float64(max),
			hwg.MaxGaugeLabelValues...,
		)
	}
}

var _ prometheus.Collector = HighWatermarkGauge{}
