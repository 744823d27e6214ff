package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lp-trader/internal/config"
	"lp-trader/internal/engine"
	"lp-trader/internal/logger"
	"lp-trader/internal/sde"

	"golang.org/x/sync/errgroup"
)

// priceFetchers bounds concurrent aggregates requests.
const priceFetchers = 2

// UpdateStaticData replaces the item catalogue with the published types of
// the latest static dump and then re-prices everything.
func (s *Service) UpdateStaticData(ctx context.Context) error {
	cfg := s.config()
	items, err := sde.Load(ctx, s.dataDir, cfg.StaticDataURL, s.market)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return errors.New("static data: no published types")
	}
	if err := s.catalog.ReplaceItems(items); err != nil {
		return fmt.Errorf("replace items: %w", err)
	}
	logger.Success("SDE", fmt.Sprintf("Stored %d items", len(items)))
	return s.UpdatePrices(ctx)
}

// UpdatePrices re-prices every catalogue item, at most PriceBatchSize ids per
// request. Batches that succeed are stored even if another batch fails.
func (s *Service) UpdatePrices(ctx context.Context) error {
	cfg := s.config()
	ids, err := s.catalog.ListItemIDs()
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	batches := splitBatches(ids, cfg.PriceBatchSize)
	start := time.Now()
	logger.Info("PRICES", fmt.Sprintf("Pricing %d items in %d batches (region %d)", len(ids), len(batches), cfg.MarketRegionID))

	var (
		mu     sync.Mutex
		merged = make(map[int32]engine.MarketPrice, len(ids))
		g      errgroup.Group
	)
	g.SetLimit(priceFetchers)
	for i, batch := range batches {
		g.Go(func() error {
			prices, err := s.market.Aggregates(ctx, cfg.AggregatesURL, cfg.MarketRegionID, batch)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			mu.Lock()
			for id, p := range prices {
				merged[id] = p
			}
			mu.Unlock()
			return nil
		})
	}
	fetchErr := g.Wait()

	if err := s.catalog.SetItemPrices(merged); err != nil {
		return fmt.Errorf("store prices: %w", err)
	}
	if fetchErr != nil {
		logger.Warn("PRICES", fmt.Sprintf("Stored %d/%d prices, fetch failed: %v", len(merged), len(ids), fetchErr))
		return fetchErr
	}
	logger.Success("PRICES", fmt.Sprintf("Stored %d prices in %s", len(merged), time.Since(start).Round(time.Millisecond)))
	return nil
}

func splitBatches(ids []int32, size int) [][]int32 {
	if size <= 0 || size > config.MaxPriceBatchSize {
		size = config.MaxPriceBatchSize
	}
	var out [][]int32
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// PricesStale reports whether the least recently priced item is older than
// the staleness window. An empty catalogue is never stale.
func (s *Service) PricesStale(now time.Time) (bool, error) {
	oldest, err := s.catalog.OldestPriceUpdate()
	if err != nil {
		return false, err
	}
	if oldest == nil {
		return false, nil
	}
	return oldest.UpdatedAt.IsZero() || oldest.UpdatedAt.Before(now.Add(-s.config().StaleAfter())), nil
}

// EnsureFreshPrices re-prices the catalogue if prices are stale. Concurrent
// callers share one refresh.
func (s *Service) EnsureFreshPrices(ctx context.Context) error {
	stale, err := s.PricesStale(s.now())
	if err != nil || !stale {
		return err
	}
	_, err, _ = s.group.Do("prices", func() (interface{}, error) {
		return nil, s.UpdatePrices(ctx)
	})
	return err
}
