package scheduler

import (
	"context"
	"time"

	"lifesign/internal/aggregation"
	"lifesign/internal/metrics"
	"lifesign/pkg/logging"
	"lifesign/pkg/models"
)

// Scheduler handles the periodic distress sweep over all known buckets
type Scheduler struct {
	logger          logging.Logger
	engine          *aggregation.Engine
	serviceMetrics  *metrics.Metrics
	lookbackMinutes int
	interval        time.Duration
	initialDelay    time.Duration
	sweepTicker     *time.Ticker
	stopChan        chan bool
}

// NewScheduler creates a new scheduler instance. serviceMetrics may be nil.
func NewScheduler(engine *aggregation.Engine, serviceMetrics *metrics.Metrics, logger logging.Logger, interval time.Duration, lookbackMinutes int) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if lookbackMinutes <= 0 {
		lookbackMinutes = aggregation.DefaultLookbackMinutes
	}

	return &Scheduler{
		logger:          logger,
		engine:          engine,
		serviceMetrics:  serviceMetrics,
		lookbackMinutes: lookbackMinutes,
		interval:        interval,
		initialDelay:    10 * time.Second,
		stopChan:        make(chan bool),
	}
}

// Start begins the scheduled sweep
func (s *Scheduler) Start() {
	s.logger.WithFields(logging.Fields{
		"interval":         s.interval,
		"lookback_minutes": s.lookbackMinutes,
	}).Info("Starting distress sweep scheduler")

	s.sweepTicker = time.NewTicker(s.interval)
	go s.runSweeps()

	// Run an initial sweep shortly after startup so the status gauge is
	// populated before the first full interval elapses. Stop cancels it.
	go func() {
		select {
		case <-time.After(s.initialDelay):
			s.sweep()
		case <-s.stopChan:
		}
	}()
}

// Stop stops the scheduled sweep
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping distress sweep scheduler")

	if s.sweepTicker != nil {
		s.sweepTicker.Stop()
	}

	close(s.stopChan)
}

func (s *Scheduler) runSweeps() {
	for {
		select {
		case <-s.sweepTicker.C:
			s.sweep()
		case <-s.stopChan:
			s.logger.Info("Stopping sweep runner")
			return
		}
	}
}

// sweep runs one scan and publishes the results to logs and metrics
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	started := time.Now()
	alerts, err := s.engine.Scan(ctx, s.lookbackMinutes, time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).Error("Distress sweep failed")
		return
	}

	counts := map[models.Status]int{
		models.StatusCollapsing: 0,
		models.StatusDead:       0,
	}
	for _, alert := range alerts {
		counts[alert.Status]++
		s.logger.WithFields(logging.Fields{
			"bucket": alert.Bucket,
			"status": alert.Status,
		}).Warn(alert.Message)
	}

	if s.serviceMetrics != nil {
		s.serviceMetrics.ScanDuration.WithLabelValues("sweep").Observe(time.Since(started).Seconds())
		for status, n := range counts {
			s.serviceMetrics.BucketsByStatus.WithLabelValues(string(status)).Set(float64(n))
		}
	}

	s.logger.WithFields(logging.Fields{
		"alerts":     len(alerts),
		"collapsing": counts[models.StatusCollapsing],
		"dead":       counts[models.StatusDead],
	}).Info("Distress sweep complete")
}

// TriggerSweep manually runs one sweep, for debugging
func (s *Scheduler) TriggerSweep() {
	s.sweep()
}
