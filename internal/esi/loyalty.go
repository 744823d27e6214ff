package esi

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// offerTTL is used when ESI omits the Expires header. LP store offers change
// only with game patches.
const offerTTL = time.Hour

// RequiredItem is one input line of a loyalty store offer.
type RequiredItem struct {
	TypeID   int32 `json:"type_id"`
	Quantity int64 `json:"quantity"`
}

// LoyaltyOffer is one row of /loyalty/stores/{corporation_id}/offers/.
type LoyaltyOffer struct {
	OfferID       int32          `json:"offer_id"`
	TypeID        int32          `json:"type_id"`
	Quantity      int64          `json:"quantity"`
	LPCost        int64          `json:"lp_cost"`
	ISKCost       int64          `json:"isk_cost"`
	AKCost        int64          `json:"ak_cost,omitempty"`
	RequiredItems []RequiredItem `json:"required_items"`
}

// LoyaltyPoints is one row of /characters/{character_id}/loyalty/points/.
type LoyaltyPoints struct {
	CorporationID int32 `json:"corporation_id"`
	LoyaltyPoints int64 `json:"loyalty_points"`
}

type offerCacheEntry struct {
	offers  []LoyaltyOffer
	expires time.Time
}

// OfferCache holds loyalty store offers per corporation until ESI's Expires.
// A singleflight.Group coalesces concurrent fetches of the same store.
type OfferCache struct {
	mu      sync.RWMutex
	entries map[int32]*offerCacheEntry
	group   singleflight.Group
}

// NewOfferCache creates an empty offer cache.
func NewOfferCache() *OfferCache {
	return &OfferCache{entries: make(map[int32]*offerCacheEntry)}
}

// Get returns cached offers if present and not expired.
func (oc *OfferCache) Get(corpID int32) ([]LoyaltyOffer, bool) {
	oc.mu.RLock()
	defer oc.mu.RUnlock()
	e, ok := oc.entries[corpID]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.offers, true
}

// Put stores offers until expires.
func (oc *OfferCache) Put(corpID int32, offers []LoyaltyOffer, expires time.Time) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.entries[corpID] = &offerCacheEntry{offers: offers, expires: expires}
}

// Clear drops every entry and returns how many were removed.
func (oc *OfferCache) Clear() int {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	n := len(oc.entries)
	oc.entries = make(map[int32]*offerCacheEntry)
	return n
}

// ClearOfferCache drops every cached LP store and returns how many were dropped.
func (c *Client) ClearOfferCache() int {
	if c.offers == nil {
		return 0
	}
	return c.offers.Clear()
}

// GetLoyaltyStoreOffers returns a corporation's LP store, sorted by offer id.
// A corporation without a store yields an empty slice and no error.
func (c *Client) GetLoyaltyStoreOffers(ctx context.Context, corpID int32) ([]LoyaltyOffer, error) {
	if c.offers == nil {
		c.offers = NewOfferCache()
	}
	if offers, ok := c.offers.Get(corpID); ok {
		return offers, nil
	}

	// The shared fetch ignores caller cancellation; each caller still returns on its own ctx.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.offers.group.DoChan(strconv.Itoa(int(corpID)), func() (interface{}, error) {
		if offers, ok := c.offers.Get(corpID); ok {
			return offers, nil
		}
		var offers []LoyaltyOffer
		h, err := c.do(fetchCtx, "GET", c.url(fmt.Sprintf("/loyalty/stores/%d/offers/", corpID)), "", nil, &offers)
		if err != nil {
			if IsNotFound(err) {
				log.Printf("[ESI] corp %d has no loyalty store", corpID)
				return []LoyaltyOffer{}, nil
			}
			return nil, err
		}
		sort.Slice(offers, func(i, j int) bool { return offers[i].OfferID < offers[j].OfferID })
		c.offers.Put(corpID, offers, parseExpires(h, offerTTL))
		return offers, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]LoyaltyOffer), nil
	}
}

// GetLoyaltyPoints returns a character's LP balances per corporation.
// Requires scope esi-characters.read_loyalty.v1.
func (c *Client) GetLoyaltyPoints(ctx context.Context, characterID int64, accessToken string) ([]LoyaltyPoints, error) {
	var points []LoyaltyPoints
	url := c.url(fmt.Sprintf("/characters/%d/loyalty/points/", characterID))
	if err := c.AuthGetJSON(ctx, url, accessToken, &points); err != nil {
		return nil, err
	}
	return points, nil
}
