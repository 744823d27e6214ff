package db

import (
	"database/sql"
	"fmt"

	"lp-trader/internal/engine"
)

const corpColumns = `corp_id, corp_name, is_npc, tier, exchange_rate, offers_json, updated_at`

func scanCorp(r interface{ Scan(...interface{}) error }) (*engine.Corp, error) {
	var c engine.Corp
	var npc int
	var tier, offers string
	var updated int64
	if err := r.Scan(&c.CorpID, &c.Name, &npc, &tier, &c.ExchangeRate, &offers, &updated); err != nil {
		return nil, err
	}
	c.IsNPC = npc == 1
	c.Tier = engine.Tier(tier)
	c.UpdatedAt = unixOrZero(updated)
	decoded, err := engine.DecodeOffers([]byte(offers))
	if err != nil {
		return nil, fmt.Errorf("corp %d offers: %w", c.CorpID, err)
	}
	c.Offers = decoded
	return &c, nil
}

// GetCorp returns one LP store, or nil if it has never been pulled.
func (d *DB) GetCorp(corpID int32) (*engine.Corp, error) {
	c, err := scanCorp(d.sql.QueryRow(`SELECT `+corpColumns+` FROM corps WHERE corp_id = ?`, corpID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListCorps returns every stored LP store ordered by corp id.
func (d *DB) ListCorps() ([]*engine.Corp, error) {
	rows, err := d.sql.Query(`SELECT ` + corpColumns + ` FROM corps ORDER BY corp_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Corp
	for rows.Next() {
		c, err := scanCorp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCorp writes a corp and replaces its offers wholesale.
func (d *DB) UpsertCorp(c *engine.Corp) error {
	if c == nil {
		return fmt.Errorf("nil corp")
	}
	offers, err := engine.EncodeOffers(c.Offers)
	if err != nil {
		return fmt.Errorf("encode offers: %w", err)
	}
	_, err = d.sql.Exec(`
		INSERT INTO corps (`+corpColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(corp_id) DO UPDATE SET
			corp_name = excluded.corp_name,
			is_npc = excluded.is_npc,
			tier = excluded.tier,
			exchange_rate = excluded.exchange_rate,
			offers_json = excluded.offers_json,
			updated_at = excluded.updated_at`,
		c.CorpID, c.Name, boolInt(c.IsNPC), string(c.Tier), c.ExchangeRate, string(offers), unixOf(c.UpdatedAt),
	)
	return err
}

// DeleteCorp removes a stored LP store.
func (d *DB) DeleteCorp(corpID int32) error {
	_, err := d.sql.Exec(`DELETE FROM corps WHERE corp_id = ?`, corpID)
	return err
}

// RawOffers returns the stored offer bytes of a corp (empty if absent).
func (d *DB) RawOffers(corpID int32) ([]byte, error) {
	var s string
	err := d.sql.QueryRow(`SELECT offers_json FROM corps WHERE corp_id = ?`, corpID).Scan(&s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return []byte(s), err
}
