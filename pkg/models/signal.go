package models

import "time"

// Signal is a single anonymous "life signal" event attributed to a bucket.
//
// This is the only record the service ever persists, and it deliberately has
// no room for identity: a coarse bucket name, a server-assigned timestamp and
// a numeric weight. Adding any further field to the persisted shape breaks
// the aggregate-only guarantee and is rejected in review, not just by
// convention.
type Signal struct {
	// Bucket is a coarse grouping key such as "region:north" or
	// "cluster:web-01", defined by the operator, never by an end user.
	Bucket string `json:"bucket"`

	// Timestamp is assigned server-side (UTC) when the signal is recorded.
	// Client-provided times are never accepted.
	Timestamp time.Time `json:"timestamp"`

	// Weight is a non-negative intensity, default 1. It lets producers batch
	// several signals into one event without changing the aggregate.
	Weight int64 `json:"weight"`
}

// SignalRequest is the ingestion request body. Weight is optional; absent
// means 1. No other field is accepted.
type SignalRequest struct {
	Bucket string `json:"bucket"`
	Weight *int64 `json:"weight,omitempty"`
}

// EffectiveWeight resolves the optional weight to its default.
func (r SignalRequest) EffectiveWeight() int64 {
	if r.Weight == nil {
		return 1
	}
	return *r.Weight
}

// LivenessReport is the per-bucket query result: the current window total,
// the rolling baseline and the derived status.
type LivenessReport struct {
	Bucket             string  `json:"bucket"`
	WindowMinutes      int     `json:"window_minutes"`
	CurrentWindowTotal int64   `json:"current_window_total"`
	RecentAverage      float64 `json:"recent_average"`
	Status             Status  `json:"status"`
}

// Alert flags a bucket in distress. Alerts are derived on every scan and
// never persisted.
type Alert struct {
	Bucket            string     `json:"bucket"`
	Status            Status     `json:"status"`
	LastSeenTimestamp *time.Time `json:"last_seen_timestamp,omitempty"`
	RecentAverage     float64    `json:"recent_average"`
	Message           string     `json:"message"`
}

// AlertsResponse is the alert feed payload.
type AlertsResponse struct {
	Alerts          []Alert `json:"alerts"`
	LookbackMinutes int     `json:"lookback_minutes"`
}

// BucketsResponse lists buckets with activity inside a lookback window.
type BucketsResponse struct {
	Buckets         []string `json:"buckets"`
	LookbackMinutes int      `json:"lookback_minutes"`
}

// ErrorResponse is the uniform error body for the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
}
