package engine

import (
	"errors"
	"math"
	"testing"
	"time"
)

func priceMap(prices map[int32]float64) PriceMap {
	m := make(PriceMap, len(prices))
	for id, sell := range prices {
		m[id] = Item{TypeID: id, Price: MarketPrice{Sell: sell}}
	}
	return m
}

func TestRankCorp_ExampleYield(t *testing.T) {
	corp := &Corp{
		CorpID: 1, Name: "Test Navy", ExchangeRate: 0.8,
		Offers: []Offer{{
			OfferID:       10,
			LPCost:        1000,
			ISKCost:       0,
			RequiredItems: []ItemQuantity{{Quantity: 1, TypeID: 100}},
			Output:        ItemQuantity{Quantity: 2, TypeID: 200},
		}},
	}
	conv := NewConverter(priceMap(map[int32]float64{100: 100, 200: 600}))

	ranked, err := conv.RankCorp(corp)
	if err != nil {
		t.Fatalf("RankCorp: %v", err)
	}
	if len(ranked) != 1 {
		t.Fatalf("len = %d, want 1", len(ranked))
	}
	r := ranked[0]
	// (1200 - 100) / (1000 / 0.8) = 1100 / 1250 = 0.88
	if math.Abs(r.ISKPerLP-0.88) > 1e-9 {
		t.Errorf("ISKPerLP = %v, want 0.88", r.ISKPerLP)
	}
	if r.InputCost != 100 || r.OutputValue != 1200 || r.Profit != 1100 {
		t.Errorf("InputCost/OutputValue/Profit = %v/%v/%v, want 100/1200/1100", r.InputCost, r.OutputValue, r.Profit)
	}
	if r.ConcordLPCost != 1250 {
		t.Errorf("ConcordLPCost = %v, want 1250", r.ConcordLPCost)
	}
}

func TestRankCorp_ISKCostCounted(t *testing.T) {
	corp := &Corp{
		CorpID: 1, ExchangeRate: 0.4,
		Offers: []Offer{{OfferID: 1, LPCost: 400, ISKCost: 500, Output: ItemQuantity{Quantity: 1, TypeID: 200}}},
	}
	ranked, err := NewConverter(priceMap(map[int32]float64{200: 1500})).RankCorp(corp)
	if err != nil {
		t.Fatalf("RankCorp: %v", err)
	}
	// (1500 - 500) / (400 / 0.4) = 1
	if math.Abs(ranked[0].ISKPerLP-1) > 1e-9 {
		t.Errorf("ISKPerLP = %v, want 1", ranked[0].ISKPerLP)
	}
}

func TestRankCorp_ZeroLPCostSortsLastWithSentinel(t *testing.T) {
	corp := &Corp{
		CorpID: 1, ExchangeRate: 0.8,
		Offers: []Offer{
			{OfferID: 1, LPCost: 0, Output: ItemQuantity{Quantity: 1, TypeID: 200}}, // hugely valuable but free of LP
			{OfferID: 2, LPCost: 1000, ISKCost: 5_000_000, Output: ItemQuantity{Quantity: 1, TypeID: 100}},
			{OfferID: 3, LPCost: 1000, Output: ItemQuantity{Quantity: 1, TypeID: 100}},
		},
	}
	conv := NewConverter(priceMap(map[int32]float64{100: 1000, 200: 1e12}))
	ranked, err := conv.RankCorp(corp)
	if err != nil {
		t.Fatalf("RankCorp: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("len = %d, want 3", len(ranked))
	}
	last := ranked[len(ranked)-1]
	if last.OfferID != 1 {
		t.Errorf("last offer = %d, want 1 (zero LP cost)", last.OfferID)
	}
	if last.ISKPerLP != NonConvertibleRate {
		t.Errorf("sentinel = %v, want %v", last.ISKPerLP, NonConvertibleRate)
	}
	// Offer 2 has a yield far below -1 and must still rank ahead of the sentinel.
	if ranked[1].OfferID != 2 || ranked[1].ISKPerLP >= NonConvertibleRate {
		t.Errorf("ranked[1] = offer %d rate %v, want offer 2 with rate < -1", ranked[1].OfferID, ranked[1].ISKPerLP)
	}
}

func TestRankCorp_DescendingAndStable(t *testing.T) {
	corp := &Corp{CorpID: 1, ExchangeRate: 0.8}
	prices := map[int32]float64{}
	for i := int32(1); i <= 20; i++ {
		prices[i] = float64((i % 5) * 1000) // many ties
		corp.Offers = append(corp.Offers, Offer{OfferID: i, LPCost: 100, Output: ItemQuantity{Quantity: 1, TypeID: i}})
	}
	ranked, err := NewConverter(priceMap(prices)).RankCorp(corp)
	if err != nil {
		t.Fatalf("RankCorp: %v", err)
	}
	for i := 0; i+1 < len(ranked); i++ {
		a, b := ranked[i], ranked[i+1]
		if a.ISKPerLP < b.ISKPerLP {
			t.Fatalf("not descending at %d: %v < %v", i, a.ISKPerLP, b.ISKPerLP)
		}
		if a.ISKPerLP == b.ISKPerLP && a.OfferID > b.OfferID {
			t.Fatalf("tie at %d not in offer order: %d before %d", i, a.OfferID, b.OfferID)
		}
	}
}

func TestRankCorp_MissingPriceCountsZero(t *testing.T) {
	corp := &Corp{
		CorpID: 1, ExchangeRate: 0.8,
		Offers: []Offer{{
			OfferID:       1,
			LPCost:        800,
			RequiredItems: []ItemQuantity{{Quantity: 3, TypeID: 999}, {Quantity: 1, TypeID: 100}},
			Output:        ItemQuantity{Quantity: 1, TypeID: 200},
		}},
	}
	ranked, err := NewConverter(priceMap(map[int32]float64{100: 50, 200: 1050})).RankCorp(corp)
	if err != nil {
		t.Fatalf("RankCorp: %v", err)
	}
	r := ranked[0]
	if r.InputCost != 50 {
		t.Errorf("InputCost = %v, want 50 (missing line counted as 0)", r.InputCost)
	}
	if len(r.MissingPrices) != 1 || r.MissingPrices[0] != 999 {
		t.Errorf("MissingPrices = %v, want [999]", r.MissingPrices)
	}
	// (1050 - 50) / (800 / 0.8) = 1
	if math.Abs(r.ISKPerLP-1) > 1e-9 {
		t.Errorf("ISKPerLP = %v, want 1", r.ISKPerLP)
	}
}

type failingLookup struct{ err error }

func (f failingLookup) SellPrice(int32) (float64, error) { return 0, f.err }

func TestRankCorp_LookupFaultAborts(t *testing.T) {
	boom := errors.New("db is gone")
	corp := &Corp{
		CorpID: 1, ExchangeRate: 0.8,
		Offers: []Offer{{OfferID: 1, LPCost: 10, Output: ItemQuantity{Quantity: 1, TypeID: 1}}},
	}
	_, err := NewConverter(failingLookup{err: boom}).RankCorp(corp)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestRankCorp_NotConvertible(t *testing.T) {
	for _, rate := range []float64{0, -0.5, 1.5} {
		corp := &Corp{CorpID: 1, Name: "Pirates", ExchangeRate: rate}
		_, err := NewConverter(PriceMap{}).RankCorp(corp)
		if !errors.Is(err, ErrNotConvertible) {
			t.Errorf("rate %v: err = %v, want ErrNotConvertible", rate, err)
		}
	}
}

func testCorps() []*Corp {
	mk := func(id int32, rate float64, n int) *Corp {
		c := &Corp{CorpID: id, Name: "Corp", ExchangeRate: rate}
		for i := 0; i < n; i++ {
			c.Offers = append(c.Offers, Offer{
				OfferID: int32(i + 1),
				LPCost:  1000,
				Output:  ItemQuantity{Quantity: 1, TypeID: int32(id*100) + int32(i)},
			})
		}
		return c
	}
	return []*Corp{
		mk(1, 0.8, 15),
		mk(2, 0.4, 3),
		mk(3, 0, 5), // pirate, skipped
	}
}

func testPrices() PriceMap {
	m := PriceMap{}
	for i := int32(0); i < 15; i++ {
		m[100+i] = Item{Price: MarketPrice{Sell: float64(1000 + i*100)}}
	}
	for i := int32(0); i < 3; i++ {
		m[200+i] = Item{Price: MarketPrice{Sell: float64(100000 + i)}}
	}
	return m
}

func TestProfitableTrades_PerCorpUnion(t *testing.T) {
	got := NewConverter(testPrices()).ProfitableTrades(testCorps(), 10)
	if len(got) != 13 {
		t.Fatalf("len = %d, want 13 (10 from corp 1 + 3 from corp 2)", len(got))
	}
	for i := 0; i < 10; i++ {
		if got[i].CorpID != 1 {
			t.Fatalf("row %d corp = %d, want 1 (corp order preserved)", i, got[i].CorpID)
		}
	}
	for i := 10; i < 13; i++ {
		if got[i].CorpID != 2 {
			t.Fatalf("row %d corp = %d, want 2", i, got[i].CorpID)
		}
	}
	for _, r := range got {
		if r.CorpID == 3 {
			t.Fatal("non-convertible corp must be excluded")
		}
	}
}

func TestGlobalTopTrades(t *testing.T) {
	got := NewConverter(testPrices()).GlobalTopTrades(testCorps(), 5)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	// Corp 2's offers yield ~40 ISK/LP, far above corp 1's ~1-2.
	for i := 0; i < 3; i++ {
		if got[i].CorpID != 2 {
			t.Errorf("row %d corp = %d, want 2", i, got[i].CorpID)
		}
	}
	for i := 0; i+1 < len(got); i++ {
		if got[i].ISKPerLP < got[i+1].ISKPerLP {
			t.Fatalf("not descending at %d", i)
		}
	}
}

func TestEffectiveTopK(t *testing.T) {
	if EffectiveTopK(0) != DefaultTopK || EffectiveTopK(-3) != DefaultTopK {
		t.Error("non-positive k should use DefaultTopK")
	}
	if EffectiveTopK(3) != 3 {
		t.Error("EffectiveTopK(3) != 3")
	}
}

func TestApplyBudget(t *testing.T) {
	rows := []RankedOffer{{ConcordLPCost: 1250}, {ConcordLPCost: 0}}
	ApplyBudget(rows, 10_000)
	if rows[0].Redemptions != 8 {
		t.Errorf("Redemptions = %d, want 8", rows[0].Redemptions)
	}
	if rows[1].Redemptions != 0 {
		t.Errorf("zero-cost row Redemptions = %d, want 0", rows[1].Redemptions)
	}
}

func TestCharacterRecentlyUpdated(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		updated time.Time
		window  time.Duration
		want    bool
	}{
		{"59 minutes ago", now.Add(-59 * time.Minute), time.Hour, true},
		{"61 minutes ago", now.Add(-61 * time.Minute), time.Hour, false},
		{"exactly now", now, time.Hour, true},
		{"in the future", now.Add(time.Minute), time.Hour, false},
		{"zero window means one hour", now.Add(-59 * time.Minute), 0, true},
		{"10 minutes ago, 5 minute window", now.Add(-10 * time.Minute), 5 * time.Minute, false},
		{"4 minutes ago, 5 minute window", now.Add(-4 * time.Minute), 5 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Character{UpdatedAt: tt.updated}
			if got := c.RecentlyUpdated(now, tt.window); got != tt.want {
				t.Fatalf("RecentlyUpdated = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTierExchangeRate(t *testing.T) {
	if TierEmpire.ExchangeRate() != 0.8 || TierIndependent.ExchangeRate() != 0.4 || TierPirate.ExchangeRate() != 0 {
		t.Errorf("rates = %v/%v/%v", TierEmpire.ExchangeRate(), TierIndependent.ExchangeRate(), TierPirate.ExchangeRate())
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		name      string
		corpID    int32
		factionID int32
		want      Tier
	}{
		{"caldari navy", 1000035, FactionCaldariState, TierEmpire},
		{"khanid", 1000156, FactionKhanidKingdom, TierEmpire},
		{"sisters of eve", 1000130, 500016, TierIndependent},
		{"no faction", 1000001, 0, TierIndependent},
		{"guristas", 1000127, FactionGuristas, TierPirate},
		{"militia", 1000180, FactionCaldariState, TierPirate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TierFor(tt.corpID, tt.factionID); got != tt.want {
				t.Fatalf("TierFor(%d, %d) = %q, want %q", tt.corpID, tt.factionID, got, tt.want)
			}
		})
	}
}
