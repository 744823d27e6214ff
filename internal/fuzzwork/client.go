// Package fuzzwork fetches market aggregates and static data dumps from
// market.fuzzwork.co.uk.
package fuzzwork

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"lp-trader/internal/engine"

	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
)

// MaxTypesPerRequest is the largest type list the aggregates endpoint accepts.
const MaxTypesPerRequest = 2500

const (
	defaultAggregatesURL = "https://market.fuzzwork.co.uk/aggregates/"
	userAgent            = "lp-trader/1.0 (github.com)"
	requestTimeout       = 60 * time.Second
)

// side is one half (buy or sell) of an aggregate row. Fuzzwork sends every
// number as a quoted string.
type side struct {
	WeightedAverage decimal.Decimal `json:"weightedAverage"`
	Max             decimal.Decimal `json:"max"`
	Min             decimal.Decimal `json:"min"`
	Median          decimal.Decimal `json:"median"`
	Volume          decimal.Decimal `json:"volume"`
	OrderCount      decimal.Decimal `json:"orderCount"`
	Percentile      decimal.Decimal `json:"percentile"`
}

type aggregate struct {
	Buy  side `json:"buy"`
	Sell side `json:"sell"`
}

// Client talks to the Fuzzwork market service.
type Client struct {
	AggregatesURL string
	http          *fasthttp.Client
}

// NewClient creates a client. An empty aggregatesURL uses the public endpoint.
func NewClient(aggregatesURL string) *Client {
	if aggregatesURL == "" {
		aggregatesURL = defaultAggregatesURL
	}
	return &Client{
		AggregatesURL: aggregatesURL,
		http: &fasthttp.Client{
			Name:                userAgent,
			ReadTimeout:         requestTimeout,
			WriteTimeout:        requestTimeout,
			MaxResponseBodySize: 256 << 20,
		},
	}
}

// Aggregates returns the price triple of every requested type in regionID:
// buy = highest buy order, sell = lowest sell order, split = their midpoint.
// An empty aggregatesURL means the client's AggregatesURL.
// At most MaxTypesPerRequest ids may be passed.
func (c *Client) Aggregates(ctx context.Context, aggregatesURL string, regionID int32, typeIDs []int32) (map[int32]engine.MarketPrice, error) {
	out := make(map[int32]engine.MarketPrice, len(typeIDs))
	if len(typeIDs) == 0 {
		return out, nil
	}
	if len(typeIDs) > MaxTypesPerRequest {
		return nil, fmt.Errorf("aggregates: %d types exceeds limit of %d", len(typeIDs), MaxTypesPerRequest)
	}

	ids := make([]string, len(typeIDs))
	for i, id := range typeIDs {
		ids[i] = strconv.Itoa(int(id))
	}
	if aggregatesURL == "" {
		aggregatesURL = c.AggregatesURL
	}
	uri := fmt.Sprintf("%s?region=%d&types=%s", aggregatesURL, regionID, strings.Join(ids, ","))

	body, err := c.get(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("aggregates region %d: %w", regionID, err)
	}

	var raw map[string]aggregate
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("aggregates: decode: %w", err)
	}
	for key, agg := range raw {
		id, err := strconv.ParseInt(key, 10, 32)
		if err != nil {
			log.Printf("[PRICES] skipping bad type key %q", key)
			continue
		}
		out[int32(id)] = priceOf(agg)
	}
	return out, nil
}

func priceOf(a aggregate) engine.MarketPrice {
	buy := a.Buy.Max
	sell := a.Sell.Min
	split := buy.Add(sell).Div(decimal.NewFromInt(2))
	return engine.MarketPrice{
		Buy:   buy.InexactFloat64(),
		Split: split.InexactFloat64(),
		Sell:  sell.InexactFloat64(),
	}
}

// Download fetches a static file (e.g. the invTypes.csv dump) into memory.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, uri string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(requestTimeout)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}

	body, err := resp.BodyUncompressed()
	if err != nil {
		return nil, err
	}
	// resp is released on return
	return append([]byte(nil), body...), nil
}
