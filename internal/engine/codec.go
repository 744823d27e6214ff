package engine

import (
	"encoding/json"
	"sort"
)

// EncodeOffers returns the stored form of an offer list: sorted by offer id,
// then JSON. Equal catalogs always encode to identical bytes.
func EncodeOffers(offers []Offer) ([]byte, error) {
	sorted := make([]Offer, len(offers))
	copy(sorted, offers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OfferID < sorted[j].OfferID })
	for i := range sorted {
		if sorted[i].RequiredItems == nil {
			sorted[i].RequiredItems = []ItemQuantity{}
		}
	}
	return json.Marshal(sorted)
}

// DecodeOffers parses the stored form written by EncodeOffers.
func DecodeOffers(data []byte) ([]Offer, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var offers []Offer
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// EncodeLoyaltyPoints stores LP balances; map keys marshal in sorted order.
func EncodeLoyaltyPoints(lp map[string]int64) ([]byte, error) {
	if lp == nil {
		lp = map[string]int64{}
	}
	return json.Marshal(lp)
}

// DecodeLoyaltyPoints parses the stored form written by EncodeLoyaltyPoints.
func DecodeLoyaltyPoints(data []byte) (map[string]int64, error) {
	lp := map[string]int64{}
	if len(data) == 0 {
		return lp, nil
	}
	if err := json.Unmarshal(data, &lp); err != nil {
		return nil, err
	}
	return lp, nil
}
