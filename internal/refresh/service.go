// Package refresh pulls LP stores, the static item list, prices and character
// balances from upstream services into the catalogue.
package refresh

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"lp-trader/internal/config"
	"lp-trader/internal/engine"
	"lp-trader/internal/esi"
	"lp-trader/internal/logger"

	"golang.org/x/sync/singleflight"
)

// ESI is the subset of *esi.Client the refresh jobs need.
type ESI interface {
	GetLoyaltyStoreOffers(ctx context.Context, corpID int32) ([]esi.LoyaltyOffer, error)
	GetCorporationInfo(ctx context.Context, corpID int32) (*esi.CorporationInfo, error)
	GetLoyaltyPoints(ctx context.Context, characterID int64, accessToken string) ([]esi.LoyaltyPoints, error)
	GetWalletBalance(ctx context.Context, characterID int64, accessToken string) (float64, error)
	PostUniverseIDs(ctx context.Context, names []string) (map[string][]esi.Entity, error)
	PostUniverseNames(ctx context.Context, ids []int64) ([]esi.UniverseName, error)
}

// Market is the subset of *fuzzwork.Client the refresh jobs need.
type Market interface {
	Aggregates(ctx context.Context, aggregatesURL string, regionID int32, typeIDs []int32) (map[int32]engine.MarketPrice, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Service runs refresh jobs against a catalogue.
type Service struct {
	catalog engine.Catalog
	esi     ESI
	market  Market
	dataDir string

	mu  sync.RWMutex
	cfg *config.Config

	group singleflight.Group
	now   func() time.Time
}

// NewService wires a refresh service. dataDir caches the static data dump.
func NewService(catalog engine.Catalog, esiClient ESI, market Market, cfg *config.Config, dataDir string) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Service{
		catalog: catalog,
		esi:     esiClient,
		market:  market,
		dataDir: dataDir,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetConfig swaps the config used by later jobs.
func (s *Service) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateCorpStore re-pulls a corporation's LP store and overwrites the stored
// offers. A corp seen for the first time is named via ESI and given the
// exchange rate of its faction tier. Failures are logged and reported as false.
func (s *Service) UpdateCorpStore(ctx context.Context, corpID int32) bool {
	offers, err := s.esi.GetLoyaltyStoreOffers(ctx, corpID)
	if err != nil {
		logger.Error("LP", fmt.Sprintf("corp %d: fetch offers: %v", corpID, err))
		return false
	}

	corp, err := s.catalog.GetCorp(corpID)
	if err != nil {
		logger.Error("LP", fmt.Sprintf("corp %d: load: %v", corpID, err))
		return false
	}
	if corp == nil {
		info, err := s.esi.GetCorporationInfo(ctx, corpID)
		if err != nil {
			logger.Error("LP", fmt.Sprintf("corp %d: resolve name: %v", corpID, err))
			return false
		}
		tier := engine.TierFor(corpID, info.FactionID)
		corp = &engine.Corp{
			CorpID:       corpID,
			Name:         info.Name,
			IsNPC:        esi.IsNPC(corpID),
			Tier:         tier,
			ExchangeRate: tier.ExchangeRate(),
		}
		log.Printf("[LP] new corp %d %q tier=%s rate=%.1f", corpID, corp.Name, tier, corp.ExchangeRate)
	}

	corp.Offers = convertOffers(offers)
	corp.UpdatedAt = s.now()
	if err := s.catalog.UpsertCorp(corp); err != nil {
		logger.Error("LP", fmt.Sprintf("corp %d: save: %v", corpID, err))
		return false
	}
	logger.Success("LP", fmt.Sprintf("%s: %d offers", corp.Name, len(corp.Offers)))
	return true
}

func convertOffers(in []esi.LoyaltyOffer) []engine.Offer {
	out := make([]engine.Offer, 0, len(in))
	for _, o := range in {
		req := make([]engine.ItemQuantity, 0, len(o.RequiredItems))
		for _, r := range o.RequiredItems {
			req = append(req, engine.ItemQuantity{Quantity: r.Quantity, TypeID: r.TypeID})
		}
		out = append(out, engine.Offer{
			OfferID:       o.OfferID,
			ISKCost:       o.ISKCost,
			LPCost:        o.LPCost,
			RequiredItems: req,
			Output:        engine.ItemQuantity{Quantity: o.Quantity, TypeID: o.TypeID},
		})
	}
	return out
}

// SyncStoresFromCharacters refreshes the LP store of every corporation any
// stored character holds LP with. Returns how many stores were refreshed.
func (s *Service) SyncStoresFromCharacters(ctx context.Context) (int, error) {
	chars, err := s.catalog.ListCharacters()
	if err != nil {
		return 0, fmt.Errorf("list characters: %w", err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, ch := range chars {
		for name := range ch.LoyaltyPoints {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return 0, nil
	}

	resolved, err := s.esi.PostUniverseIDs(ctx, names)
	if err != nil {
		return 0, fmt.Errorf("resolve corp names: %w", err)
	}
	ok := 0
	for _, corp := range resolved["corporations"] {
		if s.UpdateCorpStore(ctx, int32(corp.ID)) {
			ok++
		}
	}
	logger.Info("LP", fmt.Sprintf("Synced %d/%d stores from character balances", ok, len(names)))
	return ok, nil
}
