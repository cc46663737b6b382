package main

import (
	"context"
	"net/http"
	"time"

	"lifesign/internal/aggregation"
	"lifesign/internal/feeds"
	"lifesign/internal/handlers"
	"lifesign/internal/metrics"
	"lifesign/internal/scheduler"
	"lifesign/internal/store"
	"lifesign/pkg/cache"
	"lifesign/pkg/config"
	"lifesign/pkg/database"
	"lifesign/pkg/logging"
	"lifesign/pkg/middleware"
	"lifesign/pkg/monitoring"
	"lifesign/pkg/server"
	"lifesign/pkg/version"

	"github.com/gin-gonic/gin"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("lifesign")

	// Load environment variables
	config.LoadEnv(logger)

	logger.WithField("version", version.Version).
		WithField("commit", version.GetShortCommit()).
		Info("Starting Lifesign (Liveness Aggregation API)")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.GetEnv("DATABASE_URL", "")
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	eventStore := store.New(db, logger)
	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	if err := eventStore.EnsureSchema(schemaCtx); err != nil {
		logger.WithError(err).Fatal("Schema setup failed")
	}
	cancelSchema()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("lifesign", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("lifesign", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": config.GetEnv("DATABASE_URL", ""),
	}))

	// Create service metrics
	serviceMetrics := &metrics.Metrics{
		SignalsIngested: metricsCollector.NewCounter("signals_ingested_total", "Life signals received", []string{"outcome"}),
		LivenessQueries: metricsCollector.NewCounter("liveness_queries_total", "Liveness queries executed", []string{"query", "status"}),
		QueryDuration:   metricsCollector.NewHistogram("liveness_query_duration_seconds", "Liveness query duration", []string{"query"}, nil),
		ScanDuration:    metricsCollector.NewHistogram("distress_scan_duration_seconds", "Distress scan duration", []string{"trigger"}, nil),
		BucketsByStatus: metricsCollector.NewGauge("buckets_in_distress", "Buckets per distress status from the last sweep", []string{"status"}),
		FeedPolls:       metricsCollector.NewCounter("feed_polls_total", "External feed polls", []string{"source", "status"}),
		FeedSignals:     metricsCollector.NewCounter("feed_signals_total", "Signals recorded from external feeds", []string{"source"}),
	}

	// Read-through cache for liveness reports. TTL stays far below the
	// smallest window so a cached report cannot straddle a boundary.
	cacheRequests, cacheEntries := metricsCollector.CreateCacheMetrics()
	reportCache := cache.New(cache.Options{
		TTL:                  15 * time.Second,
		StaleWhileRevalidate: 15 * time.Second,
		MaxEntries:           4096,
	}, cache.Hooks{
		OnHit:   func() { cacheRequests.WithLabelValues("liveness", "hit").Inc() },
		OnMiss:  func() { cacheRequests.WithLabelValues("liveness", "miss").Inc() },
		OnStale: func() { cacheRequests.WithLabelValues("liveness", "stale").Inc() },
	})
	cacheGaugeStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cacheEntries.WithLabelValues("liveness").Set(float64(reportCache.Len()))
			case <-cacheGaugeStop:
				return
			}
		}
	}()
	defer close(cacheGaugeStop)

	engine := aggregation.NewEngine(eventStore, logger, config.GetEnvInt("BASELINE_WINDOWS", aggregation.DefaultBaselineWindows))

	// Initialize handlers
	handlers.Init(handlers.Dependencies{
		Logger:  logger,
		Store:   eventStore,
		Engine:  engine,
		Metrics: serviceMetrics,
		Cache:   reportCache,
	})

	// Background distress sweep
	sweeper := scheduler.NewScheduler(engine, serviceMetrics, logger,
		config.GetEnvMinutes("SWEEP_INTERVAL_MINUTES", 5),
		config.GetEnvInt("SWEEP_LOOKBACK_MINUTES", aggregation.DefaultLookbackMinutes))
	sweeper.Start()
	defer sweeper.Stop()

	// Optional external feed poller
	if feedConfigPath := config.GetEnv("FEEDS_CONFIG", ""); feedConfigPath != "" {
		feedConfig, err := feeds.LoadConfig(feedConfigPath)
		if err != nil {
			logger.WithError(err).Fatal("Feed config invalid")
		}
		if poller := feeds.NewPoller(feedConfig, eventStore, serviceMetrics, logger); poller != nil {
			poller.Start()
			defer poller.Stop()
		}
	}

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "lifesign", healthChecker, metricsCollector)

	// Query routes
	router.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, version.GetInfo()) })
	router.GET("/liveness", handlers.GetLiveness)
	router.GET("/alerts/recent", handlers.GetRecentAlerts)
	router.GET("/buckets", handlers.GetActiveBuckets)

	// Ingestion, optionally behind a shared service token
	if token := config.GetEnv("SERVICE_TOKEN", ""); token != "" {
		ingest := router.Group("/")
		ingest.Use(middleware.ServiceAuthMiddleware(token))
		ingest.POST("/signal", handlers.PostSignal)
	} else {
		router.POST("/signal", handlers.PostSignal)
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("lifesign", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
