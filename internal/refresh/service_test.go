package refresh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"lp-trader/internal/config"
	"lp-trader/internal/engine"
	"lp-trader/internal/esi"
)

// memCatalog is an in-memory engine.Catalog.
type memCatalog struct {
	mu       sync.Mutex
	items    map[int32]*engine.Item
	corps    map[int32]*engine.Corp
	raw      map[int32][]byte
	chars    map[int64]*engine.Character
	getErr   error
	priceSet int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		items: map[int32]*engine.Item{},
		corps: map[int32]*engine.Corp{},
		raw:   map[int32][]byte{},
		chars: map[int64]*engine.Character{},
	}
}

func (m *memCatalog) GetItem(id int32) (*engine.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		c := *it
		return &c, nil
	}
	return nil, nil
}

func (m *memCatalog) ListItemIDs() ([]int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int32
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memCatalog) CountItems() (int, error) { return len(m.items), nil }

func (m *memCatalog) ReplaceItems(items []engine.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = map[int32]*engine.Item{}
	for _, it := range items {
		it := it
		m.items[it.TypeID] = &it
	}
	return nil
}

func (m *memCatalog) SetItemPrices(prices map[int32]engine.MarketPrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceSet++
	for id, p := range prices {
		if it, ok := m.items[id]; ok {
			it.Price = p
			it.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *memCatalog) OldestPriceUpdate() (*engine.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *engine.Item
	for _, it := range m.items {
		if oldest == nil || it.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = it
		}
	}
	return oldest, nil
}

func (m *memCatalog) GetCorp(id int32) (*engine.Corp, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if c, ok := m.corps[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memCatalog) ListCorps() ([]*engine.Corp, error) {
	var out []*engine.Corp
	for _, c := range m.corps {
		out = append(out, c)
	}
	return out, nil
}

func (m *memCatalog) UpsertCorp(c *engine.Corp) error {
	raw, err := engine.EncodeOffers(c.Offers)
	if err != nil {
		return err
	}
	cp := *c
	m.corps[c.CorpID] = &cp
	m.raw[c.CorpID] = raw
	return nil
}

func (m *memCatalog) DeleteCorp(id int32) error { delete(m.corps, id); return nil }

func (m *memCatalog) GetCharacter(id int64) (*engine.Character, error) {
	if c, ok := m.chars[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memCatalog) ListCharacters() ([]*engine.Character, error) {
	var out []*engine.Character
	for _, c := range m.chars {
		out = append(out, c)
	}
	return out, nil
}

func (m *memCatalog) UpsertCharacter(c *engine.Character) error {
	cp := *c
	m.chars[c.CharacterID] = &cp
	return nil
}

func (m *memCatalog) DeleteCharacter(id int64) error { delete(m.chars, id); return nil }

// fakeESI serves canned upstream data.
type fakeESI struct {
	offers     map[int32][]esi.LoyaltyOffer
	info       map[int32]*esi.CorporationInfo
	points     []esi.LoyaltyPoints
	wallet     float64
	walletErr  error
	names      map[int64]string
	walletHits int
	infoHits   int
}

func (f *fakeESI) GetLoyaltyStoreOffers(ctx context.Context, corpID int32) ([]esi.LoyaltyOffer, error) {
	o, ok := f.offers[corpID]
	if !ok {
		return nil, &esi.Error{StatusCode: 502, Body: "bad gateway"}
	}
	return o, nil
}

func (f *fakeESI) GetCorporationInfo(ctx context.Context, corpID int32) (*esi.CorporationInfo, error) {
	f.infoHits++
	if i, ok := f.info[corpID]; ok {
		return i, nil
	}
	return nil, &esi.Error{StatusCode: 404, Body: "not found"}
}

func (f *fakeESI) GetLoyaltyPoints(ctx context.Context, id int64, tok string) ([]esi.LoyaltyPoints, error) {
	return f.points, nil
}

func (f *fakeESI) GetWalletBalance(ctx context.Context, id int64, tok string) (float64, error) {
	f.walletHits++
	return f.wallet, f.walletErr
}

func (f *fakeESI) PostUniverseIDs(ctx context.Context, names []string) (map[string][]esi.Entity, error) {
	out := map[string][]esi.Entity{}
	for _, n := range names {
		for id, name := range f.names {
			if name == n {
				out["corporations"] = append(out["corporations"], esi.Entity{ID: id, Name: name})
			}
		}
	}
	return out, nil
}

func (f *fakeESI) PostUniverseNames(ctx context.Context, ids []int64) ([]esi.UniverseName, error) {
	var out []esi.UniverseName
	for _, id := range ids {
		if n, ok := f.names[id]; ok {
			out = append(out, esi.UniverseName{Category: "corporation", ID: id, Name: n})
		}
	}
	return out, nil
}

// fakeMarket prices every id at id/10 ISK and records batch sizes.
type fakeMarket struct {
	mu      sync.Mutex
	batches []int
	urls    []string
	failAt  int32
	csv     []byte
}

func (f *fakeMarket) Aggregates(ctx context.Context, url string, region int32, ids []int32) (map[int32]engine.MarketPrice, error) {
	f.mu.Lock()
	f.batches = append(f.batches, len(ids))
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	out := make(map[int32]engine.MarketPrice, len(ids))
	for _, id := range ids {
		if id == f.failAt {
			return nil, errors.New("upstream down")
		}
		v := float64(id) / 10
		out[id] = engine.MarketPrice{Buy: v, Split: v, Sell: v}
	}
	return out, nil
}

func (f *fakeMarket) Download(ctx context.Context, url string) ([]byte, error) {
	return f.csv, nil
}

func newTestService(cat *memCatalog, e *fakeESI, m *fakeMarket) *Service {
	return NewService(cat, e, m, config.Default(), "")
}

func storeOffers() []esi.LoyaltyOffer {
	return []esi.LoyaltyOffer{
		{OfferID: 5, TypeID: 100, Quantity: 1, LPCost: 1000, ISKCost: 500},
		{OfferID: 2, TypeID: 200, Quantity: 10, LPCost: 250, RequiredItems: []esi.RequiredItem{{TypeID: 34, Quantity: 3}}},
	}
}

func TestUpdateCorpStore_CreatesAndIsIdempotent(t *testing.T) {
	cat := newMemCatalog()
	e := &fakeESI{
		offers: map[int32][]esi.LoyaltyOffer{1000180: storeOffers()},
		info:   map[int32]*esi.CorporationInfo{1000180: {Name: "State Protectorate", FactionID: 500001}},
	}
	s := newTestService(cat, e, &fakeMarket{})

	if !s.UpdateCorpStore(context.Background(), 1000180) {
		t.Fatal("first refresh failed")
	}
	corp := cat.corps[1000180]
	if corp.Name != "State Protectorate" || !corp.IsNPC {
		t.Errorf("corp = %+v", corp)
	}
	// militia corp: no conversion even though the faction is empire
	if corp.Tier != engine.TierPirate || corp.ExchangeRate != 0 {
		t.Errorf("tier = %s rate = %v, want pirate/0", corp.Tier, corp.ExchangeRate)
	}
	if len(corp.Offers) != 2 || corp.Offers[1].RequiredItems[0].Quantity != 3 || corp.Offers[1].Output.Quantity != 10 {
		t.Errorf("offers = %+v", corp.Offers)
	}
	first := cat.raw[1000180]

	if !s.UpdateCorpStore(context.Background(), 1000180) {
		t.Fatal("second refresh failed")
	}
	if !bytes.Equal(first, cat.raw[1000180]) {
		t.Errorf("stored offers changed on identical refresh")
	}
	if e.infoHits != 1 {
		t.Errorf("corp info fetched %d times, want once", e.infoHits)
	}
}

func TestUpdateCorpStore_FaultsReturnFalse(t *testing.T) {
	cat := newMemCatalog()
	s := newTestService(cat, &fakeESI{}, &fakeMarket{})
	if s.UpdateCorpStore(context.Background(), 1000125) {
		t.Error("upstream fault should return false")
	}

	e := &fakeESI{offers: map[int32][]esi.LoyaltyOffer{1000125: nil}}
	s = newTestService(cat, e, &fakeMarket{})
	if s.UpdateCorpStore(context.Background(), 1000125) {
		t.Error("unresolvable corp should return false")
	}
	if len(cat.corps) != 0 {
		t.Error("nothing should be stored on failure")
	}
}

func TestUpdatePrices_BatchesAtLimit(t *testing.T) {
	cat := newMemCatalog()
	var items []engine.Item
	for i := 1; i <= 6001; i++ {
		items = append(items, engine.Item{TypeID: int32(i), Name: fmt.Sprintf("T%d", i)})
	}
	cat.ReplaceItems(items)
	m := &fakeMarket{}
	s := newTestService(cat, &fakeESI{}, m)

	if err := s.UpdatePrices(context.Background()); err != nil {
		t.Fatalf("UpdatePrices: %v", err)
	}
	sort.Ints(m.batches)
	if len(m.batches) != 3 || m.batches[0] != 1001 || m.batches[2] != 2500 {
		t.Errorf("batches = %v, want [1001 2500 2500]", m.batches)
	}
	it, _ := cat.GetItem(6000)
	if it.Price.Sell != 600 {
		t.Errorf("price = %v, want 600", it.Price.Sell)
	}
}

func TestUpdatePrices_FollowsConfiguredAggregatesURL(t *testing.T) {
	cat := newMemCatalog()
	cat.ReplaceItems([]engine.Item{{TypeID: 34, Name: "Tritanium"}})
	m := &fakeMarket{}
	s := newTestService(cat, &fakeESI{}, m)

	cfg := config.Default()
	cfg.AggregatesURL = "http://mirror.example/aggregates/"
	s.SetConfig(cfg)
	if err := s.UpdatePrices(context.Background()); err != nil {
		t.Fatalf("UpdatePrices: %v", err)
	}
	if len(m.urls) != 1 || m.urls[0] != cfg.AggregatesURL {
		t.Errorf("urls = %v, want [%s]", m.urls, cfg.AggregatesURL)
	}
}

func TestUpdatePrices_PartialFailureStillStores(t *testing.T) {
	cat := newMemCatalog()
	var items []engine.Item
	for i := 1; i <= 3000; i++ {
		items = append(items, engine.Item{TypeID: int32(i), Name: "x"})
	}
	cat.ReplaceItems(items)
	s := newTestService(cat, &fakeESI{}, &fakeMarket{failAt: 2999})

	if err := s.UpdatePrices(context.Background()); err == nil {
		t.Fatal("expected error from failing batch")
	}
	if it, _ := cat.GetItem(10); it.UpdatedAt.IsZero() {
		t.Error("successful batch was not stored")
	}
	if it, _ := cat.GetItem(2999); !it.UpdatedAt.IsZero() {
		t.Error("failed batch should stay unpriced")
	}
}

func TestPricesStaleAndEnsureFresh(t *testing.T) {
	cat := newMemCatalog()
	s := newTestService(cat, &fakeESI{}, &fakeMarket{})

	if stale, _ := s.PricesStale(time.Now()); stale {
		t.Error("empty catalogue reported stale")
	}
	cat.ReplaceItems([]engine.Item{{TypeID: 34, Name: "Tritanium"}})
	if stale, _ := s.PricesStale(time.Now()); !stale {
		t.Error("never-priced catalogue should be stale")
	}
	if err := s.EnsureFreshPrices(context.Background()); err != nil {
		t.Fatal(err)
	}
	if stale, _ := s.PricesStale(time.Now()); stale {
		t.Error("still stale after refresh")
	}
	if stale, _ := s.PricesStale(time.Now().Add(61 * time.Minute)); !stale {
		t.Error("prices older than an hour should be stale")
	}
	before := cat.priceSet
	s.EnsureFreshPrices(context.Background())
	if cat.priceSet != before {
		t.Error("fresh prices were refreshed again")
	}
}

const staticCSV = "typeID,groupID,typeName,published\n34,18,Tritanium,1\n35,18,Pyerite,1\n99,1,Hidden,0\n"

func TestUpdateStaticData_ReplacesAndPrices(t *testing.T) {
	cat := newMemCatalog()
	cat.ReplaceItems([]engine.Item{{TypeID: 1, Name: "Old"}})
	s := newTestService(cat, &fakeESI{}, &fakeMarket{csv: []byte(staticCSV)})

	if err := s.UpdateStaticData(context.Background()); err != nil {
		t.Fatalf("UpdateStaticData: %v", err)
	}
	ids, _ := cat.ListItemIDs()
	if len(ids) != 2 || ids[0] != 34 || ids[1] != 35 {
		t.Fatalf("ids = %v, want [34 35]", ids)
	}
	if it, _ := cat.GetItem(34); it.Price.Sell != 3.4 {
		t.Errorf("Tritanium sell = %v, want 3.4", it.Price.Sell)
	}
}

func TestUpdateCharacter_StalenessGate(t *testing.T) {
	cat := newMemCatalog()
	e := &fakeESI{
		wallet: 1e6,
		points: []esi.LoyaltyPoints{{CorporationID: 1000125, LoyaltyPoints: 15000}, {CorporationID: 1000130, LoyaltyPoints: 42}},
		names:  map[int64]string{1000125: "CONCORD", 1000130: "Sisters of EVE"},
	}
	s := newTestService(cat, e, &fakeMarket{})
	now := time.Now()
	s.now = func() time.Time { return now }
	tok := Token{CharacterID: 90000001, CharacterName: "Pilot One", AccessToken: "at"}

	if !s.UpdateCharacter(context.Background(), tok, false) {
		t.Fatal("first update failed")
	}
	ch := cat.chars[90000001]
	if ch == nil || ch.Wallet != 1e6 || ch.LoyaltyPoints["CONCORD"] != 15000 || ch.LoyaltyPoints["Sisters of EVE"] != 42 || !ch.PullData {
		t.Fatalf("character = %+v", ch)
	}

	e.wallet = 2e6
	s.now = func() time.Time { return now.Add(59 * time.Minute) }
	s.UpdateCharacter(context.Background(), tok, false)
	if cat.chars[90000001].Wallet != 1e6 || e.walletHits != 1 {
		t.Error("recent record should not be refreshed")
	}

	s.UpdateCharacter(context.Background(), tok, true)
	if cat.chars[90000001].Wallet != 2e6 {
		t.Error("forced refresh ignored")
	}

	e.wallet = 3e6
	s.now = func() time.Time { return now.Add(59*time.Minute + 61*time.Minute) }
	s.UpdateCharacter(context.Background(), tok, false)
	if cat.chars[90000001].Wallet != 3e6 {
		t.Error("stale record should be refreshed")
	}
}

func TestUpdateCharacter_UsesConfiguredStaleness(t *testing.T) {
	cat := newMemCatalog()
	e := &fakeESI{wallet: 1}
	s := newTestService(cat, e, &fakeMarket{})
	cfg := config.Default()
	cfg.StaleAfterMin = 5
	s.SetConfig(cfg)
	now := time.Now()
	s.now = func() time.Time { return now }
	tok := Token{CharacterID: 7, CharacterName: "Seven", AccessToken: "at"}

	s.UpdateCharacter(context.Background(), tok, false)
	e.wallet = 2
	s.now = func() time.Time { return now.Add(4 * time.Minute) }
	s.UpdateCharacter(context.Background(), tok, false)
	if e.walletHits != 1 {
		t.Fatalf("walletHits = %d after 4m, want 1", e.walletHits)
	}

	s.now = func() time.Time { return now.Add(10 * time.Minute) }
	s.UpdateCharacter(context.Background(), tok, false)
	if e.walletHits != 2 || cat.chars[7].Wallet != 2 {
		t.Errorf("wallet = %v walletHits = %d after 10m, want refreshed", cat.chars[7].Wallet, e.walletHits)
	}
}

func TestUpdateCharacter_FaultReturnsFalse(t *testing.T) {
	cat := newMemCatalog()
	e := &fakeESI{walletErr: &esi.Error{StatusCode: 403, Body: "forbidden"}}
	s := newTestService(cat, e, &fakeMarket{})
	if s.UpdateCharacter(context.Background(), Token{CharacterID: 1, AccessToken: "x"}, true) {
		t.Error("wallet fault should return false")
	}
	if len(cat.chars) != 0 {
		t.Error("nothing should be stored on failure")
	}
}

func TestRefreshStaleCharacters_SkipsPullDataOff(t *testing.T) {
	cat := newMemCatalog()
	cat.chars[2] = &engine.Character{CharacterID: 2, Name: "Muted", PullData: false}
	e := &fakeESI{wallet: 5}
	s := newTestService(cat, e, &fakeMarket{})

	n := s.RefreshStaleCharacters(context.Background(), []Token{{CharacterID: 1, CharacterName: "A"}, {CharacterID: 2, CharacterName: "Muted"}}, false)
	if n != 1 || e.walletHits != 1 {
		t.Errorf("refreshed %d (wallet hits %d), want 1", n, e.walletHits)
	}
}

func TestSyncStoresFromCharacters(t *testing.T) {
	cat := newMemCatalog()
	cat.chars[1] = &engine.Character{CharacterID: 1, LoyaltyPoints: map[string]int64{"CONCORD": 10, "Unknown Corp": 5}}
	cat.chars[2] = &engine.Character{CharacterID: 2, LoyaltyPoints: map[string]int64{"CONCORD": 3}}
	e := &fakeESI{
		names:  map[int64]string{1000125: "CONCORD"},
		offers: map[int32][]esi.LoyaltyOffer{1000125: storeOffers()},
		info:   map[int32]*esi.CorporationInfo{1000125: {Name: "CONCORD"}},
	}
	s := newTestService(cat, e, &fakeMarket{})

	n, err := s.SyncStoresFromCharacters(context.Background())
	if err != nil {
		t.Fatalf("SyncStoresFromCharacters: %v", err)
	}
	if n != 1 || cat.corps[1000125] == nil {
		t.Errorf("synced %d, corps = %v", n, cat.corps)
	}
}
