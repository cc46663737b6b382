package feeds

import (
	"context"
	"time"

	"lifesign/internal/metrics"
	"lifesign/internal/store"
	"lifesign/pkg/logging"
	"lifesign/pkg/models"
)

// Source is one external feed translated into plain signals.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Signal, error)
}

// Poller periodically pulls every configured source and writes the
// resulting signals through the same store path the HTTP ingest uses.
// Sources fail independently; one unreachable feed never blocks the
// others.
type Poller struct {
	logger         logging.Logger
	store          *store.Store
	sources        []Source
	serviceMetrics *metrics.Metrics
	interval       time.Duration
	ticker         *time.Ticker
	stopChan       chan bool
}

// NewPoller builds a poller from a validated config. serviceMetrics may
// be nil. Returns nil when the config names no sources.
func NewPoller(cfg Config, st *store.Store, serviceMetrics *metrics.Metrics, logger logging.Logger) *Poller {
	var sources []Source
	if cfg.Outage != nil {
		sources = append(sources, NewOutageClient(*cfg.Outage))
	}
	if cfg.Reports != nil {
		sources = append(sources, NewReportsClient(*cfg.Reports))
	}
	if len(sources) == 0 {
		return nil
	}

	interval := time.Duration(cfg.PollMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &Poller{
		logger:         logger,
		store:          st,
		sources:        sources,
		serviceMetrics: serviceMetrics,
		interval:       interval,
		stopChan:       make(chan bool),
	}
}

// Start begins polling on the configured interval
func (p *Poller) Start() {
	names := make([]string, 0, len(p.sources))
	for _, src := range p.sources {
		names = append(names, src.Name())
	}
	p.logger.WithFields(logging.Fields{
		"sources":  names,
		"interval": p.interval,
	}).Info("Starting feed poller")

	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

// Stop stops the poller
func (p *Poller) Stop() {
	p.logger.Info("Stopping feed poller")

	if p.ticker != nil {
		p.ticker.Stop()
	}

	close(p.stopChan)
}

func (p *Poller) run() {
	for {
		select {
		case <-p.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.interval)
			p.Poll(ctx)
			cancel()
		case <-p.stopChan:
			p.logger.Info("Stopping feed poll runner")
			return
		}
	}
}

// Poll runs one round over all sources.
func (p *Poller) Poll(ctx context.Context) {
	for _, src := range p.sources {
		signals, err := src.Fetch(ctx)
		if err != nil {
			p.countPoll(src.Name(), "error")
			p.logger.WithError(err).WithField("source", src.Name()).Error("Feed fetch failed")
			continue
		}

		inserted := 0
		for _, signal := range signals {
			if err := p.store.Insert(ctx, signal); err != nil {
				p.logger.WithError(err).WithFields(logging.Fields{
					"source": src.Name(),
					"bucket": signal.Bucket,
				}).Error("Failed to record feed signal")
				continue
			}
			inserted++
		}

		p.countPoll(src.Name(), "ok")
		if p.serviceMetrics != nil {
			p.serviceMetrics.FeedSignals.WithLabelValues(src.Name()).Add(float64(inserted))
		}
		p.logger.WithFields(logging.Fields{
			"source":  src.Name(),
			"signals": inserted,
		}).Debug("Feed poll complete")
	}
}

func (p *Poller) countPoll(source, status string) {
	if p.serviceMetrics != nil {
		p.serviceMetrics.FeedPolls.WithLabelValues(source, status).Inc()
	}
}
