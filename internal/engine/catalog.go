package engine

import (
	"fmt"
	"sync"
)

// Catalog is the persistent record store for items, LP stores and characters.
// Get methods return (nil, nil) when the record does not exist.
type Catalog interface {
	GetItem(typeID int32) (*Item, error)
	ListItemIDs() ([]int32, error)
	CountItems() (int, error)
	ReplaceItems(items []Item) error
	SetItemPrices(prices map[int32]MarketPrice) error
	OldestPriceUpdate() (*Item, error)

	GetCorp(corpID int32) (*Corp, error)
	ListCorps() ([]*Corp, error)
	UpsertCorp(corp *Corp) error
	DeleteCorp(corpID int32) error

	GetCharacter(characterID int64) (*Character, error)
	ListCharacters() ([]*Character, error)
	UpsertCharacter(ch *Character) error
	DeleteCharacter(characterID int64) error
}

// CatalogPrices adapts a Catalog to PriceLookup, memoising lookups for the
// lifetime of the value (one ranking pass).
type CatalogPrices struct {
	catalog Catalog
	mu      sync.Mutex
	items   map[int32]*Item
}

// NewCatalogPrices wraps a Catalog for a single ranking pass.
func NewCatalogPrices(c Catalog) *CatalogPrices {
	return &CatalogPrices{catalog: c, items: make(map[int32]*Item)}
}

// SellPrice implements PriceLookup.
func (p *CatalogPrices) SellPrice(typeID int32) (float64, error) {
	it, err := p.item(typeID)
	if err != nil {
		return 0, err
	}
	if it == nil || it.UpdatedAt.IsZero() {
		// unknown, or in the catalogue but never priced
		return 0, fmt.Errorf("type %d: %w", typeID, ErrPriceNotFound)
	}
	return it.Price.Sell, nil
}

// TypeName implements TypeNamer. Unknown types return "".
func (p *CatalogPrices) TypeName(typeID int32) string {
	it, err := p.item(typeID)
	if err != nil || it == nil {
		return ""
	}
	return it.Name
}

func (p *CatalogPrices) item(typeID int32) (*Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if it, ok := p.items[typeID]; ok {
		return it, nil
	}
	it, err := p.catalog.GetItem(typeID)
	if err != nil {
		return nil, fmt.Errorf("lookup type %d: %w", typeID, err)
	}
	p.items[typeID] = it
	return it, nil
}

// PriceMap is an in-memory PriceLookup keyed by type id.
type PriceMap map[int32]Item

// SellPrice implements PriceLookup.
func (m PriceMap) SellPrice(typeID int32) (float64, error) {
	it, ok := m[typeID]
	if !ok {
		return 0, ErrPriceNotFound
	}
	return it.Price.Sell, nil
}

// TypeName implements TypeNamer.
func (m PriceMap) TypeName(typeID int32) string {
	return m[typeID].Name
}
