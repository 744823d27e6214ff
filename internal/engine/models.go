package engine

import (
	"time"
)

// StalenessWindow is the default time a character or price snapshot counts as fresh.
const StalenessWindow = time.Hour

// MarketPrice is a Jita-style price snapshot for one item.
type MarketPrice struct {
	Buy   float64 `json:"buy"`
	Split float64 `json:"split"`
	Sell  float64 `json:"sell"`
}

// Item is a published type from the static item list with its latest price.
type Item struct {
	TypeID    int32       `json:"type_id"`
	Name      string      `json:"type_name"`
	Price     MarketPrice `json:"market_price"`
	UpdatedAt time.Time   `json:"last_updated"`
}

// ItemQuantity is a (quantity, type) pair used for offer inputs and outputs.
type ItemQuantity struct {
	Quantity int64 `json:"quantity"`
	TypeID   int32 `json:"type_id"`
}

// Offer is a single LP store entry: LP + ISK + items in, one stack out.
type Offer struct {
	OfferID       int32          `json:"offer_id"`
	ISKCost       int64          `json:"isk_cost"`
	LPCost        int64          `json:"lp_cost"`
	RequiredItems []ItemQuantity `json:"required_items"`
	Output        ItemQuantity   `json:"received_items"`
}

// Tier is a faction's CONCORD LP conversion class.
type Tier string

const (
	TierEmpire      Tier = "empire"      // empire factions incl. Ammatar and Khanid
	TierIndependent Tier = "independent" // non-empire, non-pirate corporations
	TierPirate      Tier = "pirate"      // pirate, factional warfare, Triglavian: no conversion
)

// ExchangeRate returns the CONCORD -> faction LP multiplier for a tier.
// Zero means the tier cannot be converted into.
func (t Tier) ExchangeRate() float64 {
	switch t {
	case TierEmpire:
		return 0.8
	case TierIndependent:
		return 0.4
	default:
		return 0
	}
}

// Corp is an LP-issuing corporation and its store catalog.
type Corp struct {
	CorpID       int32     `json:"corp_id"`
	Name         string    `json:"corp_name"`
	IsNPC        bool      `json:"is_npc_corp"`
	Tier         Tier      `json:"tier"`
	ExchangeRate float64   `json:"lp_exchange_rate"`
	Offers       []Offer   `json:"offers"`
	UpdatedAt    time.Time `json:"last_updated"`
}

// Convertible reports whether CONCORD LP can be exchanged into this corp's LP.
func (c *Corp) Convertible() bool {
	return c.ExchangeRate > 0 && c.ExchangeRate <= 1
}

// Character is a logged-in pilot's wallet and LP balances.
type Character struct {
	CharacterID   int64            `json:"char_id"`
	Name          string           `json:"char_name"`
	Wallet        float64          `json:"wallet"`
	LoyaltyPoints map[string]int64 `json:"loyalty_points"` // corp name -> LP
	PullData      bool             `json:"pull_data"`
	UpdatedAt     time.Time        `json:"last_updated"`
}

// RecentlyUpdated reports whether the record was refreshed within window of now.
// A non-positive window means StalenessWindow.
func (c *Character) RecentlyUpdated(now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = StalenessWindow
	}
	return !c.UpdatedAt.Before(now.Add(-window)) && !c.UpdatedAt.After(now)
}

// RankedOffer is one row of a ranking: an offer and its ISK/LP yield.
type RankedOffer struct {
	CorpID        int32   `json:"corp_id"`
	CorpName      string  `json:"corp_name"`
	OfferID       int32   `json:"offer_id"`
	OutputTypeID  int32   `json:"type_id"`
	OutputName    string  `json:"type_name,omitempty"`
	LPCost        int64   `json:"lp_cost"`
	ConcordLPCost float64 `json:"concord_lp_cost"`
	ISKCost       int64   `json:"isk_cost"`
	InputCost     float64 `json:"input_cost"`
	OutputValue   float64 `json:"output_value"`
	Profit        float64 `json:"profit"`
	ISKPerLP      float64 `json:"isk_per_lp"`
	MissingPrices []int32 `json:"missing_prices,omitempty"`
	Redemptions   int64   `json:"redemptions,omitempty"`
}
