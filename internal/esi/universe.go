package esi

import (
	"context"
	"fmt"
)

// namesBatch is the largest id list /universe/names/ accepts.
const namesBatch = 1000

// Entity is an id/name pair returned by /universe/ids/.
type Entity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UniverseName is one row of /universe/names/.
type UniverseName struct {
	Category string `json:"category"`
	ID       int64  `json:"id"`
	Name     string `json:"name"`
}

// PostUniverseIDs resolves exact names to ids, grouped by category
// ("characters", "corporations", "inventory_types", ...). Categories with no
// match are omitted.
func (c *Client) PostUniverseIDs(ctx context.Context, names []string) (map[string][]Entity, error) {
	out := make(map[string][]Entity)
	if len(names) == 0 {
		return out, nil
	}
	var raw map[string][]Entity
	if err := c.PostJSON(ctx, c.url("/universe/ids/"), names, &raw); err != nil {
		return nil, err
	}
	for category, entities := range raw {
		if len(entities) == 0 {
			continue
		}
		out[category] = entities
	}
	return out, nil
}

// PostUniverseNames resolves ids to names. Names seen before are answered
// from cache; every uncached id must exist or ESI rejects the whole request.
func (c *Client) PostUniverseNames(ctx context.Context, ids []int64) ([]UniverseName, error) {
	var out []UniverseName
	var missing []int64
	for _, id := range ids {
		if v, ok := c.nameCache.Load(id); ok {
			out = append(out, v.(UniverseName))
			continue
		}
		missing = append(missing, id)
	}

	for start := 0; start < len(missing); start += namesBatch {
		end := start + namesBatch
		if end > len(missing) {
			end = len(missing)
		}
		var batch []UniverseName
		if err := c.PostJSON(ctx, c.url("/universe/names/"), missing[start:end], &batch); err != nil {
			return nil, fmt.Errorf("universe names [%d:%d]: %w", start, end, err)
		}
		for _, n := range batch {
			c.nameCache.Store(n.ID, n)
		}
		out = append(out, batch...)
	}
	return out, nil
}
