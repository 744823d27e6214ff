package config

import "time"

const (
	// MaxPriceBatchSize is the hard ceiling on type ids per Fuzzwork aggregates request.
	MaxPriceBatchSize = 2500

	DefaultStaticDataURL = "https://www.fuzzwork.co.uk/dump/latest/invTypes.csv"
	DefaultAggregatesURL = "https://market.fuzzwork.co.uk/aggregates/"
)

// Config holds application settings (in-memory representation).
// Persistence is handled by internal/db package.
type Config struct {
	MarketRegionID   int32  `json:"market_region_id"`   // region priced against (The Forge by default)
	PriceBatchSize   int    `json:"price_batch_size"`   // type ids per aggregates request, <= MaxPriceBatchSize
	TopK             int    `json:"top_k"`              // offers per corp in the profitable trades list
	StaleAfterMin    int    `json:"stale_after_min"`    // minutes before characters and prices are refreshed
	BaseLPCorp       string `json:"base_lp_corp"`       // the universal LP the player holds
	StaticDataURL    string `json:"static_data_url"`    // invTypes.csv dump
	AggregatesURL    string `json:"aggregates_url"`     // market aggregates endpoint
	IncludeZeroLP    bool   `json:"include_zero_lp"`    // keep zero-LP offers in aggregate lists
	RankingCacheSecs int    `json:"ranking_cache_secs"` // TTL of cached rankings in the API
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		MarketRegionID:   10000002,
		PriceBatchSize:   MaxPriceBatchSize,
		TopK:             10,
		StaleAfterMin:    60,
		BaseLPCorp:       "CONCORD",
		StaticDataURL:    DefaultStaticDataURL,
		AggregatesURL:    DefaultAggregatesURL,
		IncludeZeroLP:    true,
		RankingCacheSecs: 300,
	}
}

// Normalize clamps out-of-range values back into their valid ranges.
func (c *Config) Normalize() {
	d := Default()
	if c.MarketRegionID <= 0 {
		c.MarketRegionID = d.MarketRegionID
	}
	if c.PriceBatchSize <= 0 || c.PriceBatchSize > MaxPriceBatchSize {
		c.PriceBatchSize = MaxPriceBatchSize
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	} else if c.TopK > 500 {
		c.TopK = 500
	}
	if c.StaleAfterMin <= 0 {
		c.StaleAfterMin = d.StaleAfterMin
	}
	if c.BaseLPCorp == "" {
		c.BaseLPCorp = d.BaseLPCorp
	}
	if c.StaticDataURL == "" {
		c.StaticDataURL = d.StaticDataURL
	}
	if c.AggregatesURL == "" {
		c.AggregatesURL = d.AggregatesURL
	}
	if c.RankingCacheSecs < 0 {
		c.RankingCacheSecs = 0
	}
}

// StaleAfter returns the staleness window as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMin) * time.Minute
}

// RankingCacheTTL returns the ranking cache lifetime.
func (c *Config) RankingCacheTTL() time.Duration {
	return time.Duration(c.RankingCacheSecs) * time.Second
}
