package engine

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"lp-trader/internal/logger"
)

const (
	// NonConvertibleRate is the rank value given to offers with no LP cost.
	// Such offers always sort after every computed offer.
	NonConvertibleRate = -1.0
	// DefaultTopK is how many offers per corp ProfitableTrades keeps.
	DefaultTopK = 10
)

var (
	// ErrPriceNotFound is returned by a PriceLookup when the type has no price
	// (usually because the static item list filters it out, e.g. blueprints).
	ErrPriceNotFound = errors.New("price not found")
	// ErrNotConvertible is returned when CONCORD LP cannot be exchanged into the corp's LP.
	ErrNotConvertible = errors.New("corp LP is not convertible")
)

// PriceLookup resolves the current sell price of a type.
// A miss must be reported as ErrPriceNotFound; any other error aborts ranking.
type PriceLookup interface {
	SellPrice(typeID int32) (float64, error)
}

// TypeNamer is optionally implemented by a PriceLookup to label ranked rows.
type TypeNamer interface {
	TypeName(typeID int32) string
}

// Converter ranks LP store offers by ISK earned per CONCORD LP spent.
//
// Missing prices contribute zero ISK for that line and the offer is still
// valued; the affected type ids are listed in RankedOffer.MissingPrices.
type Converter struct {
	Prices PriceLookup
}

// NewConverter creates a Converter reading prices from the given lookup.
func NewConverter(prices PriceLookup) *Converter {
	return &Converter{Prices: prices}
}

// RankCorp values every offer in the corp's store and returns them sorted by
// ISK/LP descending. Offers with zero LP cost come last with NonConvertibleRate.
func (c *Converter) RankCorp(corp *Corp) ([]RankedOffer, error) {
	if corp == nil {
		return nil, fmt.Errorf("nil corp")
	}
	if !corp.Convertible() {
		return nil, fmt.Errorf("%s (%d): %w", corp.Name, corp.CorpID, ErrNotConvertible)
	}

	ranked := make([]RankedOffer, 0, len(corp.Offers))
	for _, o := range corp.Offers {
		r, err := c.valueOffer(corp, o)
		if err != nil {
			return nil, fmt.Errorf("rank %s: %w", corp.Name, err)
		}
		ranked = append(ranked, r)
	}
	sortRanked(ranked)
	return ranked, nil
}

// ProfitableTrades takes each corp's local top-k offers and concatenates them
// in corp order. This is a per-corp union, not a global top-k: a weak store
// still contributes its k best rows. Use GlobalTopTrades for a true top-k.
// Non-convertible corps are skipped; a corp whose ranking fails is logged and skipped.
func (c *Converter) ProfitableTrades(corps []*Corp, k int) []RankedOffer {
	k = EffectiveTopK(k)
	var out []RankedOffer
	for _, corp := range corps {
		ranked, ok := c.rankForAggregate(corp)
		if !ok {
			continue
		}
		if len(ranked) > k {
			ranked = ranked[:k]
		}
		out = append(out, ranked...)
	}
	return out
}

// GlobalTopTrades returns the k best offers across all convertible corps.
func (c *Converter) GlobalTopTrades(corps []*Corp, k int) []RankedOffer {
	k = EffectiveTopK(k)
	var all []RankedOffer
	for _, corp := range corps {
		ranked, ok := c.rankForAggregate(corp)
		if !ok {
			continue
		}
		all = append(all, ranked...)
	}
	sortRanked(all)
	if len(all) > k {
		all = all[:k]
	}
	return all
}

func (c *Converter) rankForAggregate(corp *Corp) ([]RankedOffer, bool) {
	if corp == nil || !corp.Convertible() {
		return nil, false
	}
	ranked, err := c.RankCorp(corp)
	if err != nil {
		logger.Warn("LP", fmt.Sprintf("Skipping %s: %v", corp.Name, err))
		return nil, false
	}
	return ranked, true
}

// EffectiveTopK returns k, or DefaultTopK when k <= 0.
func EffectiveTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}

func (c *Converter) valueOffer(corp *Corp, o Offer) (RankedOffer, error) {
	r := RankedOffer{
		CorpID:       corp.CorpID,
		CorpName:     corp.Name,
		OfferID:      o.OfferID,
		OutputTypeID: o.Output.TypeID,
		LPCost:       o.LPCost,
		ISKCost:      o.ISKCost,
	}
	if namer, ok := c.Prices.(TypeNamer); ok {
		r.OutputName = namer.TypeName(o.Output.TypeID)
	}

	if o.LPCost == 0 {
		// Token-for-item exchanges (e.g. SoE ship tokens) cost no LP and cannot be bought with CONCORD LP.
		r.ISKPerLP = NonConvertibleRate
		return r, nil
	}

	inputCost := decimal.Zero
	for _, in := range o.RequiredItems {
		v, missing, err := c.lineValue(in)
		if err != nil {
			return r, fmt.Errorf("offer %d input %d: %w", o.OfferID, in.TypeID, err)
		}
		if missing {
			r.MissingPrices = append(r.MissingPrices, in.TypeID)
		}
		inputCost = inputCost.Add(v)
	}

	outputValue, missing, err := c.lineValue(o.Output)
	if err != nil {
		return r, fmt.Errorf("offer %d output %d: %w", o.OfferID, o.Output.TypeID, err)
	}
	if missing {
		r.MissingPrices = append(r.MissingPrices, o.Output.TypeID)
	}

	totalCost := inputCost.Add(decimal.NewFromInt(o.ISKCost))
	profit := outputValue.Sub(totalCost)
	concordLP := decimal.NewFromInt(o.LPCost).Div(decimal.NewFromFloat(corp.ExchangeRate))

	r.InputCost = sanitizeFloat(inputCost.InexactFloat64())
	r.OutputValue = sanitizeFloat(outputValue.InexactFloat64())
	r.Profit = sanitizeFloat(profit.InexactFloat64())
	r.ConcordLPCost = sanitizeFloat(concordLP.InexactFloat64())
	r.ISKPerLP = sanitizeFloat(profit.Div(concordLP).InexactFloat64())
	return r, nil
}

// lineValue returns quantity * sell price. A missing price yields zero and missing=true.
func (c *Converter) lineValue(q ItemQuantity) (decimal.Decimal, bool, error) {
	price, err := c.Prices.SellPrice(q.TypeID)
	if errors.Is(err, ErrPriceNotFound) {
		log.Printf("[LP] Type %d has no price, counted as 0", q.TypeID)
		return decimal.Zero, true, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(q.Quantity)), false, nil
}

// sortRanked orders by ISK/LP descending, zero-LP offers last, then offer id, then corp id.
func sortRanked(rows []RankedOffer) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		aSentinel, bSentinel := a.LPCost == 0, b.LPCost == 0
		if aSentinel != bSentinel {
			return bSentinel
		}
		if a.ISKPerLP != b.ISKPerLP {
			return a.ISKPerLP > b.ISKPerLP
		}
		if a.CorpID != b.CorpID {
			return a.CorpID < b.CorpID
		}
		return a.OfferID < b.OfferID
	})
}

// ApplyBudget fills Redemptions with how many times each offer can be bought
// with the given CONCORD LP balance.
func ApplyBudget(rows []RankedOffer, concordLP int64) {
	for i := range rows {
		if rows[i].ConcordLPCost <= 0 || concordLP <= 0 {
			rows[i].Redemptions = 0
			continue
		}
		rows[i].Redemptions = int64(math.Floor(float64(concordLP) / rows[i].ConcordLPCost))
	}
}

func sanitizeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
