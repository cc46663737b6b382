package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus metrics for the lifesign service
type Metrics struct {
	SignalsIngested *prometheus.CounterVec
	LivenessQueries *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	ScanDuration    *prometheus.HistogramVec
	BucketsByStatus *prometheus.GaugeVec
	FeedPolls       *prometheus.CounterVec
	FeedSignals     *prometheus.CounterVec
}
