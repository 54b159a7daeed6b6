package knowledge

import "time"

const (
	defaultTopK          = 5
	defaultSearchTimeout = 10 * time.Second
)

type searchConfig struct {
	topK    int32
	filter  map[string]string
	timeout time.Duration
}

// SearchOption configures a search.
type SearchOption func(*searchConfig)

// WithTopK sets the maximum number of results.
func WithTopK(k int32) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithTicker restricts results to documents for one ticker.
func WithTicker(ticker string) SearchOption {
	return func(c *searchConfig) {
		if ticker != "" {
			if c.filter == nil {
				c.filter = make(map[string]string)
			}
			c.filter[MetaTicker] = ticker
		}
	}
}

// WithTimeout overrides the per-search timeout.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{
		topK:    defaultTopK,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
