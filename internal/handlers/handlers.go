package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lifesign/internal/aggregation"
	"lifesign/internal/metrics"
	"lifesign/internal/store"
	"lifesign/pkg/cache"
	"lifesign/pkg/logging"
	"lifesign/pkg/models"

	"github.com/gin-gonic/gin"
)

// Dependencies holds all external dependencies for handlers
type Dependencies struct {
	Logger  logging.Logger
	Store   *store.Store
	Engine  *aggregation.Engine
	Metrics *metrics.Metrics
	Cache   *cache.ReportCache
}

var deps Dependencies

// Init initializes the handlers with dependencies
func Init(d Dependencies) {
	deps = d
	deps.Logger.Info("Handlers initialized")
}

// PostSignal records one life signal for a bucket. The stored record
// carries only the bucket name, a server-assigned timestamp, and the
// weight; nothing about the caller is kept.
func PostSignal(c *gin.Context) {
	var req models.SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		incIngest("bad_request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.Bucket == "" {
		incIngest("bad_request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "bucket is required"})
		return
	}
	if req.Weight != nil && *req.Weight < 0 {
		incIngest("bad_request")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "weight must not be negative"})
		return
	}

	signal := models.Signal{
		Bucket:    req.Bucket,
		Timestamp: time.Now().UTC(),
		Weight:    req.EffectiveWeight(),
	}

	if err := deps.Store.Insert(c.Request.Context(), signal); err != nil {
		incIngest("store_error")
		deps.Logger.WithError(err).WithField("bucket", signal.Bucket).Error("Failed to record signal")
		respondError(c, err)
		return
	}

	incIngest("accepted")
	deps.Logger.WithFields(logging.Fields{
		"bucket": signal.Bucket,
		"weight": signal.Weight,
	}).Debug("Signal recorded")

	c.Status(http.StatusAccepted)
}

// GetLiveness reports the current window total, recent average, and
// status for one bucket. Unknown buckets report as alive with zero
// activity rather than erroring.
func GetLiveness(c *gin.Context) {
	bucket := c.Query("bucket")
	if bucket == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "bucket is required"})
		return
	}

	windowMinutes, err := positiveIntQuery(c, "window_minutes", aggregation.DefaultWindowMinutes)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	started := time.Now()
	report, err := livenessReport(c, bucket, windowMinutes)
	if err != nil {
		incQuery("liveness", "error")
		deps.Logger.WithError(err).WithField("bucket", bucket).Error("Liveness query failed")
		respondError(c, err)
		return
	}

	incQuery("liveness", "ok")
	if deps.Metrics != nil {
		deps.Metrics.QueryDuration.WithLabelValues("liveness").Observe(time.Since(started).Seconds())
	}

	c.JSON(http.StatusOK, report)
}

// livenessReport answers from the short-lived cache when one is
// configured. The cache TTL is kept well under the window length so a
// stale entry can never flip a status across a window boundary.
func livenessReport(c *gin.Context, bucket string, windowMinutes int) (models.LivenessReport, error) {
	load := func(ctx context.Context) (models.LivenessReport, error) {
		return deps.Engine.Report(ctx, bucket, windowMinutes, time.Now().UTC())
	}

	if deps.Cache == nil {
		return load(c.Request.Context())
	}

	key := fmt.Sprintf("%s:%d", bucket, windowMinutes)
	return deps.Cache.Get(c.Request.Context(), key, load)
}

// GetRecentAlerts scans every known bucket and returns the ones in
// distress, ordered by bucket name.
func GetRecentAlerts(c *gin.Context) {
	lookback, err := positiveIntQuery(c, "minutes", aggregation.DefaultLookbackMinutes)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	started := time.Now()
	alerts, err := deps.Engine.Scan(c.Request.Context(), lookback, time.Now().UTC())
	if err != nil {
		incQuery("alerts", "error")
		deps.Logger.WithError(err).Error("Alert scan failed")
		respondError(c, err)
		return
	}

	incQuery("alerts", "ok")
	if deps.Metrics != nil {
		deps.Metrics.ScanDuration.WithLabelValues("http").Observe(time.Since(started).Seconds())
	}

	c.JSON(http.StatusOK, models.AlertsResponse{
		Alerts:          alerts,
		LookbackMinutes: lookback,
	})
}

// GetActiveBuckets lists buckets that produced at least one signal
// inside the lookback period.
func GetActiveBuckets(c *gin.Context) {
	lookback, err := positiveIntQuery(c, "minutes", aggregation.DefaultLookbackMinutes)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	since := time.Now().UTC().Add(-time.Duration(lookback) * time.Minute)
	buckets, err := deps.Store.ActiveBuckets(c.Request.Context(), since)
	if err != nil {
		incQuery("buckets", "error")
		deps.Logger.WithError(err).Error("Bucket listing failed")
		respondError(c, err)
		return
	}

	incQuery("buckets", "ok")
	if buckets == nil {
		buckets = []string{}
	}
	c.JSON(http.StatusOK, models.BucketsResponse{
		Buckets:         buckets,
		LookbackMinutes: lookback,
	})
}

func positiveIntQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > aggregation.MaxMinutes {
		return 0, fmt.Errorf("%s must be a positive integer no greater than %d", name, aggregation.MaxMinutes)
	}
	return v, nil
}

// respondError maps the error taxonomy onto HTTP statuses: bad input
// is the caller's fault, an unreachable store is a 503, anything else
// is a plain 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, aggregation.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "event store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
	}
}

func incIngest(outcome string) {
	if deps.Metrics != nil {
		deps.Metrics.SignalsIngested.WithLabelValues(outcome).Inc()
	}
}

func incQuery(query, status string) {
	if deps.Metrics != nil {
		deps.Metrics.LivenessQueries.WithLabelValues(query, status).Inc()
	}
}
