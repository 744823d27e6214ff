package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"lp-trader/internal/auth"
	"lp-trader/internal/config"
	"lp-trader/internal/engine"
	"lp-trader/internal/esi"
	"lp-trader/internal/refresh"

	"github.com/patrickmn/go-cache"
)

// ConfigStore persists settings. *db.DB implements it.
type ConfigStore interface {
	LoadConfig() *config.Config
	SaveConfig(cfg *config.Config) error
}

// Server is the HTTP API over the catalogue, the refresh jobs and SSO.
type Server struct {
	mu       sync.RWMutex
	cfg      *config.Config
	settings ConfigStore

	catalog  engine.Catalog
	esi      *esi.Client
	refresh  *refresh.Service
	sso      *auth.SSOConfig
	sessions *auth.SessionStore

	// rankings caches computed rankings until the next refresh or TTL.
	rankings *cache.Cache

	// SSO state: map of CSRF state tokens -> expiry.
	ssoStatesMu sync.Mutex
	ssoStates   map[string]time.Time
}

// NewServer wires the API. settings, sso and sessions may be nil.
func NewServer(cfg *config.Config, settings ConfigStore, catalog engine.Catalog, esiClient *esi.Client,
	refresher *refresh.Service, ssoConfig *auth.SSOConfig, sessions *auth.SessionStore) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	ttl := cfg.RankingCacheTTL()
	return &Server{
		cfg:       cfg,
		settings:  settings,
		catalog:   catalog,
		esi:       esiClient,
		refresh:   refresher,
		sso:       ssoConfig,
		sessions:  sessions,
		rankings:  cache.New(ttl, 2*ttl+time.Minute),
		ssoStates: make(map[string]time.Time),
	}
}

// Handler returns the HTTP handler with all routes and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/config", s.handleSetConfig)
	// Auth
	mux.HandleFunc("GET /api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("GET /api/auth/callback", s.handleAuthCallback)
	mux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)
	mux.HandleFunc("POST /api/auth/logout", s.handleAuthLogout)
	// Characters
	mux.HandleFunc("GET /api/characters", s.handleListCharacters)
	mux.HandleFunc("POST /api/characters/refresh", s.handleRefreshCharacters)
	mux.HandleFunc("POST /api/characters/{characterID}/pull", s.handleSetPullData)
	mux.HandleFunc("POST /api/characters/{characterID}/activate", s.handleActivateCharacter)
	mux.HandleFunc("DELETE /api/characters/{characterID}", s.handleDeleteCharacter)
	mux.HandleFunc("GET /api/corp/wallets", s.handleCorpWallets)
	// LP stores
	mux.HandleFunc("GET /api/corps", s.handleListCorps)
	mux.HandleFunc("POST /api/corps/sync", s.handleSyncCorps) // ?force=1 bypasses the offer cache
	mux.HandleFunc("POST /api/corps/{corpID}/refresh", s.handleRefreshCorp)
	mux.HandleFunc("GET /api/corps/{corpID}/ranking", s.handleCorpRanking)
	mux.HandleFunc("GET /api/trades/profitable", s.handleProfitableTrades)
	mux.HandleFunc("GET /api/trades/top", s.handleTopTrades)
	// Items and prices
	mux.HandleFunc("GET /api/items/{typeID}", s.handleGetItem)
	mux.HandleFunc("POST /api/static/refresh", s.handleRefreshStatic)
	mux.HandleFunc("POST /api/prices/refresh", s.handleRefreshPrices)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeUpstreamError maps auth faults to 401 and everything else to 502.
func writeUpstreamError(w http.ResponseWriter, err error) {
	if auth.IsAuthError(err) || errors.Is(err, esi.ErrUnauthorized) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := *s.cfg
	return &c
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.CountItems()
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	corps, err := s.catalog.ListCorps()
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}

	esiOK := s.esi.HealthCheck(r.Context())
	lastOK := s.esi.HealthStatus()

	out := map[string]interface{}{
		"esi_ok":     esiOK,
		"item_count": items,
		"corp_count": len(corps),
	}
	if !lastOK.IsZero() {
		out["esi_last_ok"] = lastOK.UTC().Format(time.RFC3339)
	}
	if s.refresh != nil {
		if stale, err := s.refresh.PricesStale(time.Now()); err == nil {
			out["prices_stale"] = stale
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.config())
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, 400, "invalid json")
		return
	}

	s.mu.Lock()
	cfg := *s.cfg
	fields := map[string]interface{}{
		"market_region_id":   &cfg.MarketRegionID,
		"price_batch_size":   &cfg.PriceBatchSize,
		"top_k":              &cfg.TopK,
		"stale_after_min":    &cfg.StaleAfterMin,
		"base_lp_corp":       &cfg.BaseLPCorp,
		"static_data_url":    &cfg.StaticDataURL,
		"aggregates_url":     &cfg.AggregatesURL,
		"include_zero_lp":    &cfg.IncludeZeroLP,
		"ranking_cache_secs": &cfg.RankingCacheSecs,
	}
	for key, raw := range patch {
		dst, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			s.mu.Unlock()
			writeError(w, 400, fmt.Sprintf("invalid %s", key))
			return
		}
	}
	cfg.Normalize()
	s.cfg = &cfg
	s.mu.Unlock()

	if s.refresh != nil {
		s.refresh.SetConfig(&cfg)
	}
	s.rankings.Flush()
	if s.settings != nil {
		if err := s.settings.SaveConfig(&cfg); err != nil {
			writeError(w, 500, "save config: "+err.Error())
			return
		}
	}
	writeJSON(w, &cfg)
}

func pathInt32(r *http.Request, name string) (int32, error) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 32)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return int32(v), nil
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
