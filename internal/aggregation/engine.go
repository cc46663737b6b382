package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lifesign/internal/store"
	"lifesign/pkg/logging"
	"lifesign/pkg/models"
)

// Defaults, shared with the HTTP layer and the background sweep.
const (
	// DefaultWindowMinutes is the current-window size when a caller does
	// not pick one.
	DefaultWindowMinutes = 10

	// DefaultBaselineWindows is how many historical windows feed the
	// recent average.
	DefaultBaselineWindows = 6

	// DefaultLookbackMinutes is the alert feed lookback.
	DefaultLookbackMinutes = 60

	// MaxMinutes bounds every window and lookback argument. Anything
	// past a year is a caller mistake, and values far beyond that would
	// overflow the duration arithmetic and silently invert the interval.
	MaxMinutes = 366 * 24 * 60
)

// ErrInvalidInput marks caller contract violations (non-positive or
// oversized windows, zero baseline count). These are never retried
// internally.
var ErrInvalidInput = errors.New("invalid input")

func validMinutes(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidInput, name, v)
	}
	if v > MaxMinutes {
		return fmt.Errorf("%w: %s must be at most %d, got %d", ErrInvalidInput, name, MaxMinutes, v)
	}
	return nil
}

// Engine computes window totals, baselines and liveness classifications
// over the event store. Every method is a bounded, read-only aggregation;
// the engine keeps no state between calls.
type Engine struct {
	store           *store.Store
	logger          logging.Logger
	baselineWindows int
}

// NewEngine creates an engine. baselineWindows <= 0 selects the default.
func NewEngine(st *store.Store, logger logging.Logger, baselineWindows int) *Engine {
	if baselineWindows <= 0 {
		baselineWindows = DefaultBaselineWindows
	}
	return &Engine{
		store:           st,
		logger:          logger,
		baselineWindows: baselineWindows,
	}
}

// WindowTotal sums signal weights for the half-open window of windowMinutes
// ending at windowEnd.
func (e *Engine) WindowTotal(ctx context.Context, bucket string, windowEnd time.Time, windowMinutes int) (int64, error) {
	if err := validMinutes("window_minutes", windowMinutes); err != nil {
		return 0, err
	}
	start := windowEnd.Add(-time.Duration(windowMinutes) * time.Minute)
	return e.store.WindowTotal(ctx, bucket, start, windowEnd)
}

// Baseline returns the arithmetic mean of the nWindows contiguous windows
// immediately preceding the current one, walking backward from windowEnd.
//
// Windows with no signals contribute 0 and the denominator stays nWindows;
// a nearly-new bucket therefore gets a low baseline rather than a shrunken
// sample, which keeps it from being flagged dead while its history fills in.
func (e *Engine) Baseline(ctx context.Context, bucket string, windowEnd time.Time, windowMinutes, nWindows int) (float64, error) {
	if err := validMinutes("window_minutes", windowMinutes); err != nil {
		return 0, err
	}
	if nWindows <= 0 {
		return 0, fmt.Errorf("%w: n_windows must be positive, got %d", ErrInvalidInput, nWindows)
	}

	window := time.Duration(windowMinutes) * time.Minute
	var sum int64
	for i := 1; i <= nWindows; i++ {
		end := windowEnd.Add(-time.Duration(i) * window)
		start := end.Add(-window)
		total, err := e.store.WindowTotal(ctx, bucket, start, end)
		if err != nil {
			return 0, err
		}
		sum += total
	}

	return float64(sum) / float64(nWindows), nil
}

// Report computes the full per-bucket result: current window total, recent
// average and classified status, for the sliding window ending at now.
//
// A bucket with no history at all yields the zero-valued alive report; the
// caller cannot tell an unknown bucket from a quiet one, which is the point.
func (e *Engine) Report(ctx context.Context, bucket string, windowMinutes int, now time.Time) (models.LivenessReport, error) {
	total, err := e.WindowTotal(ctx, bucket, now, windowMinutes)
	if err != nil {
		return models.LivenessReport{}, err
	}

	average, err := e.Baseline(ctx, bucket, now, windowMinutes, e.baselineWindows)
	if err != nil {
		return models.LivenessReport{}, err
	}

	return models.LivenessReport{
		Bucket:             bucket,
		WindowMinutes:      windowMinutes,
		CurrentWindowTotal: total,
		RecentAverage:      average,
		Status:             models.Classify(total, average),
	}, nil
}

// Scan classifies every known bucket and returns alerts for the ones in
// collapsing or dead state, ordered lexicographically by bucket.
//
// The candidate set is every bucket with any history at all: a bucket whose
// last signal predates the lookback window must still surface as dead. The
// lookback bounds how the feed is framed for the caller; the current-window
// size stays at the default so alert classification does not change with
// the lookback argument.
//
// A failure to classify one bucket is logged and skipped; it never aborts
// the rest of the scan.
func (e *Engine) Scan(ctx context.Context, lookbackMinutes int, now time.Time) ([]models.Alert, error) {
	if err := validMinutes("minutes", lookbackMinutes); err != nil {
		return nil, err
	}

	buckets, err := e.store.KnownBuckets(ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]models.Alert, 0)
	for _, bucket := range buckets {
		report, err := e.Report(ctx, bucket, DefaultWindowMinutes, now)
		if err != nil {
			e.logger.WithError(err).WithField("bucket", bucket).Warn("Skipping bucket in alert scan")
			continue
		}

		if !report.Status.Distressed() {
			continue
		}

		alert := models.Alert{
			Bucket:        bucket,
			Status:        report.Status,
			RecentAverage: report.RecentAverage,
			Message:       alertMessage(bucket, report.Status, report.RecentAverage),
		}

		lastSeen, ok, err := e.store.LastSeen(ctx, bucket)
		if err != nil {
			e.logger.WithError(err).WithField("bucket", bucket).Warn("Skipping bucket in alert scan")
			continue
		}
		if ok {
			alert.LastSeenTimestamp = &lastSeen
		}

		alerts = append(alerts, alert)
	}

	return alerts, nil
}

// alertMessage renders the deterministic human-readable text for an alert.
// It carries nothing beyond bucket, status and recent average.
func alertMessage(bucket string, status models.Status, recentAverage float64) string {
	switch status {
	case models.StatusDead:
		return fmt.Sprintf(
			"CRITICAL: bucket %q has gone silent. No signals in the current window; recent average was %.1f per window.",
			bucket, recentAverage)
	case models.StatusCollapsing:
		return fmt.Sprintf(
			"WARNING: bucket %q is declining, running far below its recent average (%.1f per window).",
			bucket, recentAverage)
	default:
		return fmt.Sprintf("bucket %q status: %s", bucket, status)
	}
}
