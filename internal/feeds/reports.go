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

// ReportsClient counts fresh entries in a report feed per configured
// query and emits the count as the weight of one signal per bucket.
type ReportsClient struct {
	cfg          ReportsConfig
	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
}

type reportCount struct {
	TotalCount int64 `json:"totalCount"`
}

func NewReportsClient(cfg ReportsConfig) *ReportsClient {
	execCfg := clients.DefaultHTTPExecutorConfig()
	execCfg.CircuitBreaker = true

	return &ReportsClient{
		cfg:          cfg,
		client:       &http.Client{Timeout: 15 * time.Second},
		httpExecutor: clients.NewHTTPExecutor(execCfg),
	}
}

func (c *ReportsClient) Name() string { return "reports" }

// Fetch runs every configured query. Queries that yield zero entries
// produce no signal; a failing query fails the whole fetch so the
// poller can log one error per source.
func (c *ReportsClient) Fetch(ctx context.Context) ([]models.Signal, error) {
	now := time.Now().UTC()
	signals := make([]models.Signal, 0, len(c.cfg.Queries))

	for _, q := range c.cfg.Queries {
		count, err := c.count(ctx, q.Query)
		if err != nil {
			return nil, fmt.Errorf("reports feed: query for bucket %q: %w", q.Bucket, err)
		}
		if count <= 0 {
			continue
		}
		signals = append(signals, models.Signal{
			Bucket:    q.Bucket,
			Timestamp: now,
			Weight:    count,
		})
	}
	return signals, nil
}

func (c *ReportsClient) count(ctx context.Context, query string) (int64, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", "0")
	if c.cfg.AppName != "" {
		params.Set("appname", c.cfg.AppName)
	}
	endpoint := fmt.Sprintf("%s/reports?%s", strings.TrimRight(c.cfg.BaseURL, "/"), params.Encode())

	resp, err := clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.client.Do(req)
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	var body reportCount
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return body.TotalCount, nil
}
