package api

import (
	"embed"
	"html/template"
	"net/http"

	"lp-trader/internal/engine"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexPage struct {
	LoggedIn   bool
	Active     string
	Characters []*engine.Character
	BaseCorp   string
	BudgetLP   int64
	Trades     []engine.RankedOffer
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var page indexPage
	if s.sessions != nil {
		if sess := s.sessions.Get(); sess != nil {
			page.LoggedIn = true
			page.Active = sess.CharacterName
		}
	}

	chars, err := s.catalog.ListCharacters()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	page.Characters = chars

	cfg := s.config()
	k := engine.EffectiveTopK(cfg.TopK)
	key := "index:top"
	trades, ok := s.cachedRanking(key)
	if !ok {
		corps, err := s.catalog.ListCorps()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		trades = engine.NewConverter(engine.NewCatalogPrices(s.catalog)).GlobalTopTrades(corps, k)
		if !cfg.IncludeZeroLP {
			trades = withoutZeroLP(trades)
		}
		s.storeRanking(key, trades)
	}
	page.BaseCorp = cfg.BaseLPCorp
	page.BudgetLP = s.budgetLP(r)
	if page.BudgetLP > 0 {
		trades = withBudget(trades, page.BudgetLP)
	}
	page.Trades = trades

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, page); err != nil {
		http.Error(w, err.Error(), 500)
	}
}
