package db

import (
	"database/sql"
	"fmt"
	"time"

	"lp-trader/internal/engine"
)

const itemColumns = `type_id, type_name, buy, split, sell, updated_at`

func scanItem(r interface{ Scan(...interface{}) error }) (*engine.Item, error) {
	var it engine.Item
	var updated int64
	if err := r.Scan(&it.TypeID, &it.Name, &it.Price.Buy, &it.Price.Split, &it.Price.Sell, &updated); err != nil {
		return nil, err
	}
	it.UpdatedAt = unixOrZero(updated)
	return &it, nil
}

// GetItem returns one item, or nil if it is not in the catalogue.
func (d *DB) GetItem(typeID int32) (*engine.Item, error) {
	it, err := scanItem(d.sql.QueryRow(`SELECT `+itemColumns+` FROM items WHERE type_id = ?`, typeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return it, err
}

// ListItemIDs returns every stored type id in ascending order.
func (d *DB) ListItemIDs() ([]int32, error) {
	rows, err := d.sql.Query(`SELECT type_id FROM items ORDER BY type_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountItems returns the catalogue size.
func (d *DB) CountItems() (int, error) {
	var n int
	err := d.sql.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}

// ReplaceItems clears the catalogue and inserts items with no price.
func (d *DB) ReplaceItems(items []engine.Item) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO items (type_id, type_name) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.Exec(it.TypeID, it.Name); err != nil {
			return fmt.Errorf("insert item %d: %w", it.TypeID, err)
		}
	}
	return tx.Commit()
}

// SetItemPrices stores a price snapshot. Ids not in the catalogue are ignored.
func (d *DB) SetItemPrices(prices map[int32]engine.MarketPrice) error {
	if len(prices) == 0 {
		return nil
	}
	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE items SET buy = ?, split = ?, sell = ?, updated_at = ? WHERE type_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for id, p := range prices {
		if _, err := stmt.Exec(p.Buy, p.Split, p.Sell, now, id); err != nil {
			return fmt.Errorf("price item %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// OldestPriceUpdate returns the item whose price is the most out of date,
// or nil for an empty catalogue.
func (d *DB) OldestPriceUpdate() (*engine.Item, error) {
	it, err := scanItem(d.sql.QueryRow(`SELECT ` + itemColumns + ` FROM items ORDER BY updated_at ASC, type_id ASC LIMIT 1`))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return it, err
}
