package feeds

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes which external feeds to poll and how their entries
// map onto buckets. Feeds are optional; a zero config disables polling.
type Config struct {
	PollMinutes int            `yaml:"poll_minutes"`
	Outage      *OutageConfig  `yaml:"outage,omitempty"`
	Reports     *ReportsConfig `yaml:"reports,omitempty"`
}

// OutageConfig maps connectivity-feed entities onto buckets. Entities
// whose connectivity score stays at or above MinScore count as reachable
// and produce a signal for their bucket.
type OutageConfig struct {
	BaseURL  string            `yaml:"base_url"`
	MinScore float64           `yaml:"min_score"`
	Entities map[string]string `yaml:"entities"`
}

// ReportsConfig maps report-feed queries onto buckets. Each query's
// result count becomes the weight of one signal for its bucket.
type ReportsConfig struct {
	BaseURL string        `yaml:"base_url"`
	AppName string        `yaml:"app_name"`
	Queries []ReportQuery `yaml:"queries"`
}

type ReportQuery struct {
	Bucket string `yaml:"bucket"`
	Query  string `yaml:"query"`
}

// LoadConfig reads and validates a feed configuration file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read feed config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse feed config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the parts of the config that would otherwise fail
// quietly at poll time.
func (c Config) Validate() error {
	if c.PollMinutes < 0 {
		return fmt.Errorf("poll_minutes must not be negative")
	}
	if c.Outage != nil {
		if c.Outage.BaseURL == "" {
			return fmt.Errorf("outage feed requires base_url")
		}
		if len(c.Outage.Entities) == 0 {
			return fmt.Errorf("outage feed requires at least one entity mapping")
		}
		for entity, bucket := range c.Outage.Entities {
			if bucket == "" {
				return fmt.Errorf("outage entity %q maps to an empty bucket", entity)
			}
		}
	}
	if c.Reports != nil {
		if c.Reports.BaseURL == "" {
			return fmt.Errorf("reports feed requires base_url")
		}
		for i, q := range c.Reports.Queries {
			if q.Bucket == "" {
				return fmt.Errorf("reports query %d has no bucket", i)
			}
			if q.Query == "" {
				return fmt.Errorf("reports query for bucket %q is empty", q.Bucket)
			}
		}
	}
	return nil
}
