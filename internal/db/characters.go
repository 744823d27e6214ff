package db

import (
	"database/sql"
	"fmt"

	"lp-trader/internal/engine"
)

const characterColumns = `character_id, character_name, wallet, lp_json, pull_data, updated_at`

func scanCharacter(r interface{ Scan(...interface{}) error }) (*engine.Character, error) {
	var ch engine.Character
	var lp string
	var pull int
	var updated int64
	if err := r.Scan(&ch.CharacterID, &ch.Name, &ch.Wallet, &lp, &pull, &updated); err != nil {
		return nil, err
	}
	points, err := engine.DecodeLoyaltyPoints([]byte(lp))
	if err != nil {
		return nil, fmt.Errorf("character %d lp: %w", ch.CharacterID, err)
	}
	ch.LoyaltyPoints = points
	ch.PullData = pull == 1
	ch.UpdatedAt = unixOrZero(updated)
	return &ch, nil
}

// GetCharacter returns one character, or nil if unknown.
func (d *DB) GetCharacter(characterID int64) (*engine.Character, error) {
	ch, err := scanCharacter(d.sql.QueryRow(`SELECT `+characterColumns+` FROM characters WHERE character_id = ?`, characterID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

// ListCharacters returns all characters ordered by name.
func (d *DB) ListCharacters() ([]*engine.Character, error) {
	rows, err := d.sql.Query(`SELECT ` + characterColumns + ` FROM characters ORDER BY character_name, character_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Character
	for rows.Next() {
		ch, err := scanCharacter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// UpsertCharacter creates or overwrites a character record.
func (d *DB) UpsertCharacter(ch *engine.Character) error {
	if ch == nil {
		return fmt.Errorf("nil character")
	}
	lp, err := engine.EncodeLoyaltyPoints(ch.LoyaltyPoints)
	if err != nil {
		return fmt.Errorf("encode lp: %w", err)
	}
	_, err = d.sql.Exec(`
		INSERT INTO characters (`+characterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id) DO UPDATE SET
			character_name = excluded.character_name,
			wallet = excluded.wallet,
			lp_json = excluded.lp_json,
			pull_data = excluded.pull_data,
			updated_at = excluded.updated_at`,
		ch.CharacterID, ch.Name, ch.Wallet, string(lp), boolInt(ch.PullData), unixOf(ch.UpdatedAt),
	)
	return err
}

// DeleteCharacter removes a character record.
func (d *DB) DeleteCharacter(characterID int64) error {
	_, err := d.sql.Exec(`DELETE FROM characters WHERE character_id = ?`, characterID)
	return err
}
