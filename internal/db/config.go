package db

import (
	"strconv"

	"lp-trader/internal/config"
)

// LoadConfig reads config from SQLite. Missing keys keep their defaults.
func (d *DB) LoadConfig() *config.Config {
	cfg := config.Default()

	rows, err := d.sql.Query("SELECT key, value FROM config")
	if err != nil {
		return cfg
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var k, v string
		rows.Scan(&k, &v)
		m[k] = v
	}
	if len(m) == 0 {
		return cfg
	}

	if v, ok := m["market_region_id"]; ok {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.MarketRegionID = int32(n)
		}
	}
	if v, ok := m["price_batch_size"]; ok {
		cfg.PriceBatchSize, _ = strconv.Atoi(v)
	}
	if v, ok := m["top_k"]; ok {
		cfg.TopK, _ = strconv.Atoi(v)
	}
	if v, ok := m["stale_after_min"]; ok {
		cfg.StaleAfterMin, _ = strconv.Atoi(v)
	}
	if v, ok := m["base_lp_corp"]; ok {
		cfg.BaseLPCorp = v
	}
	if v, ok := m["static_data_url"]; ok {
		cfg.StaticDataURL = v
	}
	if v, ok := m["aggregates_url"]; ok {
		cfg.AggregatesURL = v
	}
	if v, ok := m["include_zero_lp"]; ok {
		cfg.IncludeZeroLP, _ = strconv.ParseBool(v)
	}
	if v, ok := m["ranking_cache_secs"]; ok {
		cfg.RankingCacheSecs, _ = strconv.Atoi(v)
	}

	cfg.Normalize()
	return cfg
}

// SaveConfig writes every config field to SQLite.
func (d *DB) SaveConfig(cfg *config.Config) error {
	pairs := map[string]string{
		"market_region_id":   strconv.FormatInt(int64(cfg.MarketRegionID), 10),
		"price_batch_size":   strconv.Itoa(cfg.PriceBatchSize),
		"top_k":              strconv.Itoa(cfg.TopK),
		"stale_after_min":    strconv.Itoa(cfg.StaleAfterMin),
		"base_lp_corp":       cfg.BaseLPCorp,
		"static_data_url":    cfg.StaticDataURL,
		"aggregates_url":     cfg.AggregatesURL,
		"include_zero_lp":    strconv.FormatBool(cfg.IncludeZeroLP),
		"ranking_cache_secs": strconv.Itoa(cfg.RankingCacheSecs),
	}

	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for k, v := range pairs {
		if _, err := stmt.Exec(k, v); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
