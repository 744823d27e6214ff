package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"lp-trader/internal/engine"
	"lp-trader/internal/logger"
)

// corpSummary is a stored LP store without its offer list.
type corpSummary struct {
	CorpID       int32       `json:"corp_id"`
	Name         string      `json:"corp_name"`
	IsNPC        bool        `json:"is_npc_corp"`
	Tier         engine.Tier `json:"tier"`
	ExchangeRate float64     `json:"lp_exchange_rate"`
	OfferCount   int         `json:"offer_count"`
	UpdatedAt    string      `json:"last_updated,omitempty"`
}

func (s *Server) handleListCorps(w http.ResponseWriter, r *http.Request) {
	corps, err := s.catalog.ListCorps()
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	out := make([]corpSummary, 0, len(corps))
	for _, c := range corps {
		row := corpSummary{
			CorpID:       c.CorpID,
			Name:         c.Name,
			IsNPC:        c.IsNPC,
			Tier:         c.Tier,
			ExchangeRate: c.ExchangeRate,
			OfferCount:   len(c.Offers),
		}
		if !c.UpdatedAt.IsZero() {
			row.UpdatedAt = c.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		out = append(out, row)
	}
	writeJSON(w, out)
}

func (s *Server) handleRefreshCorp(w http.ResponseWriter, r *http.Request) {
	corpID, err := pathInt32(r, "corpID")
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	if s.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	s.dropCachedOffers(r)
	ok := s.refresh.UpdateCorpStore(r.Context(), corpID)
	s.rankings.Flush()
	if !ok {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("refresh of corp %d failed", corpID))
		return
	}
	corp, err := s.catalog.GetCorp(corpID)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, corp)
}

func (s *Server) handleSyncCorps(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	s.dropCachedOffers(r)
	n, err := s.refresh.SyncStoresFromCharacters(r.Context())
	s.rankings.Flush()
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, map[string]int{"refreshed": n})
}

// dropCachedOffers empties the ESI offer cache when the request has force=1.
func (s *Server) dropCachedOffers(r *http.Request) {
	if r.URL.Query().Get("force") != "1" {
		return
	}
	if n := s.esi.ClearOfferCache(); n > 0 {
		log.Printf("[LP] dropped %d cached stores", n)
	}
}

// ensurePrices refreshes stale prices before ranking. A failed refresh is
// logged and ranking continues on the stored prices.
func (s *Server) ensurePrices(r *http.Request) {
	if s.refresh == nil {
		return
	}
	if stale, err := s.refresh.PricesStale(time.Now()); err == nil && !stale {
		return
	}
	if err := s.refresh.EnsureFreshPrices(r.Context()); err != nil {
		logger.Warn("PRICES", fmt.Sprintf("Refresh before ranking failed: %v", err))
	}
	s.rankings.Flush()
}

func (s *Server) handleCorpRanking(w http.ResponseWriter, r *http.Request) {
	corpID, err := pathInt32(r, "corpID")
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	s.ensurePrices(r)

	corp, err := s.catalog.GetCorp(corpID)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if corp == nil {
		writeError(w, 404, fmt.Sprintf("corp %d not found", corpID))
		return
	}

	key := fmt.Sprintf("corp:%d", corpID)
	rows, ok := s.cachedRanking(key)
	if !ok {
		rows, err = engine.NewConverter(engine.NewCatalogPrices(s.catalog)).RankCorp(corp)
		if errors.Is(err, engine.ErrNotConvertible) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err != nil {
			writeError(w, 500, err.Error())
			return
		}
		s.storeRanking(key, rows)
	}

	budget := s.budgetLP(r)
	if budget > 0 {
		rows = withBudget(rows, budget)
	}
	writeJSON(w, map[string]interface{}{
		"corp":      corp.Name,
		"tier":      corp.Tier,
		"budget_lp": budget,
		"offers":    rows,
	})
}

// budgetLP is the base-corp LP to spend: the lp query parameter if given,
// otherwise the budget character's balance with the configured base corp.
func (s *Server) budgetLP(r *http.Request) int64 {
	if lp := queryInt(r, "lp", 0); lp > 0 {
		return int64(lp)
	}
	ch := s.budgetCharacter()
	if ch == nil {
		return 0
	}
	return ch.LoyaltyPoints[s.config().BaseLPCorp]
}

// budgetCharacter returns the active session's character, or the first
// stored character when nobody is logged in.
func (s *Server) budgetCharacter() *engine.Character {
	if s.sessions != nil {
		if sess := s.sessions.Get(); sess != nil {
			ch, err := s.catalog.GetCharacter(sess.CharacterID)
			if err == nil && ch != nil {
				return ch
			}
		}
	}
	chars, err := s.catalog.ListCharacters()
	if err != nil || len(chars) == 0 {
		return nil
	}
	return chars[0]
}

// withBudget returns a copy of rows with Redemptions filled in; cached rows are left alone.
func withBudget(rows []engine.RankedOffer, lp int64) []engine.RankedOffer {
	out := append([]engine.RankedOffer(nil), rows...)
	engine.ApplyBudget(out, lp)
	return out
}

func (s *Server) handleProfitableTrades(w http.ResponseWriter, r *http.Request) {
	s.handleTrades(w, r, "profitable", (*engine.Converter).ProfitableTrades)
}

func (s *Server) handleTopTrades(w http.ResponseWriter, r *http.Request) {
	s.handleTrades(w, r, "top", (*engine.Converter).GlobalTopTrades)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request, name string,
	aggregate func(*engine.Converter, []*engine.Corp, int) []engine.RankedOffer) {
	cfg := s.config()
	k := engine.EffectiveTopK(queryInt(r, "k", cfg.TopK))
	s.ensurePrices(r)

	key := fmt.Sprintf("%s:%d:%t", name, k, cfg.IncludeZeroLP)
	rows, ok := s.cachedRanking(key)
	if !ok {
		corps, err := s.catalog.ListCorps()
		if err != nil {
			writeError(w, 500, err.Error())
			return
		}
		rows = aggregate(engine.NewConverter(engine.NewCatalogPrices(s.catalog)), corps, k)
		if !cfg.IncludeZeroLP {
			rows = withoutZeroLP(rows)
		}
		if rows == nil {
			rows = []engine.RankedOffer{}
		}
		s.storeRanking(key, rows)
		log.Printf("[LP] %s trades: %d rows over %d corps (k=%d)", name, len(rows), len(corps), k)
	}
	writeJSON(w, rows)
}

func withoutZeroLP(rows []engine.RankedOffer) []engine.RankedOffer {
	out := rows[:0:0]
	for _, row := range rows {
		if row.LPCost > 0 {
			out = append(out, row)
		}
	}
	return out
}

func (s *Server) cachedRanking(key string) ([]engine.RankedOffer, bool) {
	v, ok := s.rankings.Get(key)
	if !ok {
		return nil, false
	}
	rows, ok := v.([]engine.RankedOffer)
	return rows, ok
}

// storeRanking caches rows for the configured TTL. A zero TTL disables caching.
func (s *Server) storeRanking(key string, rows []engine.RankedOffer) {
	ttl := s.config().RankingCacheTTL()
	if ttl <= 0 {
		return
	}
	s.rankings.Set(key, rows, ttl)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	typeID, err := pathInt32(r, "typeID")
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	item, err := s.catalog.GetItem(typeID)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if item == nil {
		writeError(w, 404, fmt.Sprintf("type %d not found", typeID))
		return
	}
	writeJSON(w, item)
}

func (s *Server) handleRefreshStatic(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	err := s.refresh.UpdateStaticData(r.Context())
	s.rankings.Flush()
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	n, _ := s.catalog.CountItems()
	writeJSON(w, map[string]int{"items": n})
}

func (s *Server) handleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	err := s.refresh.UpdatePrices(r.Context())
	s.rankings.Flush()
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	n, _ := s.catalog.CountItems()
	writeJSON(w, map[string]int{"items": n})
}
