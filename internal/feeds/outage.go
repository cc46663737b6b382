package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lifesign/pkg/clients"
	"lifesign/pkg/models"

	"github.com/failsafe-go/failsafe-go"
)

// OutageClient reads a connectivity-summary feed and emits one signal
// per entity that still looks reachable. An entity in outage simply
// produces nothing, which is exactly the silence the aggregator is
// built to notice.
type OutageClient struct {
	cfg          OutageConfig
	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
}

type outageSummary struct {
	Data []outageEntry `json:"data"`
}

type outageEntry struct {
	Entity struct {
		Code string `json:"code"`
	} `json:"entity"`
	Score float64 `json:"score"`
}

func NewOutageClient(cfg OutageConfig) *OutageClient {
	execCfg := clients.DefaultHTTPExecutorConfig()
	execCfg.CircuitBreaker = true

	return &OutageClient{
		cfg:          cfg,
		client:       &http.Client{Timeout: 15 * time.Second},
		httpExecutor: clients.NewHTTPExecutor(execCfg),
	}
}

func (c *OutageClient) Name() string { return "outage" }

// Fetch queries the summary endpoint for all configured entities and
// returns a weight-1 signal for each entity at or above the score
// threshold.
func (c *OutageClient) Fetch(ctx context.Context) ([]models.Signal, error) {
	codes := make([]string, 0, len(c.cfg.Entities))
	for code := range c.cfg.Entities {
		codes = append(codes, code)
	}

	endpoint := fmt.Sprintf("%s/summary?entities=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.QueryEscape(strings.Join(codes, ",")))

	resp, err := clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("outage feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("outage feed returned status %d", resp.StatusCode)
	}

	var summary outageSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("outage feed: decode response: %w", err)
	}

	now := time.Now().UTC()
	signals := make([]models.Signal, 0, len(summary.Data))
	for _, entry := range summary.Data {
		bucket, ok := c.cfg.Entities[entry.Entity.Code]
		if !ok {
			continue
		}
		if entry.Score < c.cfg.MinScore {
			continue
		}
		signals = append(signals, models.Signal{
			Bucket:    bucket,
			Timestamp: now,
			Weight:    1,
		})
	}
	return signals, nil
}
