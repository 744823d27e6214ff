// Package pgstore is a PostgreSQL implementation of engine.Catalog, used when
// DATABASE_URL is set.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lp-trader/internal/engine"
	"lp-trader/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 30 * time.Second

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to connString, pings it and creates missing tables.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Success("DB", "Connected to PostgreSQL")
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateTables creates the catalogue tables if they don't exist.
func (s *Store) CreateTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			type_id    INTEGER PRIMARY KEY,
			type_name  TEXT NOT NULL,
			buy        DOUBLE PRECISION NOT NULL DEFAULT 0,
			split      DOUBLE PRECISION NOT NULL DEFAULT 0,
			sell       DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_updated ON items(updated_at NULLS FIRST)`,
		`CREATE TABLE IF NOT EXISTS corps (
			corp_id       INTEGER PRIMARY KEY,
			corp_name     TEXT NOT NULL,
			is_npc        BOOLEAN NOT NULL DEFAULT true,
			tier          TEXT NOT NULL,
			exchange_rate DOUBLE PRECISION NOT NULL,
			offers_json   TEXT NOT NULL DEFAULT '[]',
			updated_at    TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS characters (
			character_id   BIGINT PRIMARY KEY,
			character_name TEXT NOT NULL,
			wallet         DOUBLE PRECISION NOT NULL DEFAULT 0,
			lp_json        TEXT NOT NULL DEFAULT '{}',
			pull_data      BOOLEAN NOT NULL DEFAULT true,
			updated_at     TIMESTAMPTZ
		)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("error creating tables: %w", err)
		}
	}
	return nil
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), queryTimeout)
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// GetItem returns one item, or nil if it is not in the catalogue.
func (s *Store) GetItem(typeID int32) (*engine.Item, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var it engine.Item
	var updated *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT type_id, type_name, buy, split, sell, updated_at
		FROM items WHERE type_id = $1`, typeID).
		Scan(&it.TypeID, &it.Name, &it.Price.Buy, &it.Price.Split, &it.Price.Sell, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it.UpdatedAt = timeOrZero(updated)
	return &it, nil
}

// ListItemIDs returns every stored type id in ascending order.
func (s *Store) ListItemIDs() ([]int32, error) {
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT type_id FROM items ORDER BY type_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int32])
}

// CountItems returns the catalogue size.
func (s *Store) CountItems() (int, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}

// ReplaceItems clears the catalogue and bulk-loads items with COPY.
func (s *Store) ReplaceItems(items []engine.Item) error {
	ctx, cancel := opCtx()
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	seen := make(map[int32]bool, len(items))
	rows := make([][]interface{}, 0, len(items))
	for _, it := range items {
		if seen[it.TypeID] {
			continue
		}
		seen[it.TypeID] = true
		rows = append(rows, []interface{}{it.TypeID, it.Name})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"items"}, []string{"type_id", "type_name"}, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy items: %w", err)
	}
	return tx.Commit(ctx)
}

// SetItemPrices stores a price snapshot in one batch round trip.
func (s *Store) SetItemPrices(prices map[int32]engine.MarketPrice) error {
	if len(prices) == 0 {
		return nil
	}
	ctx, cancel := opCtx()
	defer cancel()

	now := time.Now()
	batch := &pgx.Batch{}
	for id, p := range prices {
		batch.Queue(`UPDATE items SET buy = $1, split = $2, sell = $3, updated_at = $4 WHERE type_id = $5`,
			p.Buy, p.Split, p.Sell, now, id)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// OldestPriceUpdate returns the item whose price is the most out of date.
func (s *Store) OldestPriceUpdate() (*engine.Item, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var id int32
	err := s.pool.QueryRow(ctx, `SELECT type_id FROM items ORDER BY updated_at ASC NULLS FIRST, type_id ASC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetItem(id)
}

type corpRow struct {
	CorpID       int32
	Name         string
	IsNPC        bool
	Tier         string
	ExchangeRate float64
	OffersJSON   string
	UpdatedAt    *time.Time
}

func (r corpRow) toCorp() (*engine.Corp, error) {
	offers, err := engine.DecodeOffers([]byte(r.OffersJSON))
	if err != nil {
		return nil, fmt.Errorf("corp %d offers: %w", r.CorpID, err)
	}
	return &engine.Corp{
		CorpID: r.CorpID, Name: r.Name, IsNPC: r.IsNPC,
		Tier: engine.Tier(r.Tier), ExchangeRate: r.ExchangeRate,
		Offers: offers, UpdatedAt: timeOrZero(r.UpdatedAt),
	}, nil
}

const corpSelect = `SELECT corp_id, corp_name, is_npc, tier, exchange_rate, offers_json, updated_at FROM corps`

// GetCorp returns one LP store, or nil.
func (s *Store) GetCorp(corpID int32) (*engine.Corp, error) {
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := s.pool.Query(ctx, corpSelect+` WHERE corp_id = $1`, corpID)
	if err != nil {
		return nil, err
	}
	r, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[corpRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.toCorp()
}

// ListCorps returns every stored LP store ordered by corp id.
func (s *Store) ListCorps() ([]*engine.Corp, error) {
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := s.pool.Query(ctx, corpSelect+` ORDER BY corp_id`)
	if err != nil {
		return nil, err
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[corpRow])
	if err != nil {
		return nil, err
	}
	out := make([]*engine.Corp, 0, len(recs))
	for _, r := range recs {
		c, err := r.toCorp()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// UpsertCorp writes a corp and replaces its offers wholesale.
func (s *Store) UpsertCorp(c *engine.Corp) error {
	if c == nil {
		return fmt.Errorf("nil corp")
	}
	offers, err := engine.EncodeOffers(c.Offers)
	if err != nil {
		return fmt.Errorf("encode offers: %w", err)
	}
	ctx, cancel := opCtx()
	defer cancel()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO corps (corp_id, corp_name, is_npc, tier, exchange_rate, offers_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (corp_id) DO UPDATE SET
			corp_name = $2,
			is_npc = $3,
			tier = $4,
			exchange_rate = $5,
			offers_json = $6,
			updated_at = $7`,
		c.CorpID, c.Name, c.IsNPC, string(c.Tier), c.ExchangeRate, string(offers), nullTime(c.UpdatedAt))
	return err
}

// DeleteCorp removes a stored LP store.
func (s *Store) DeleteCorp(corpID int32) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM corps WHERE corp_id = $1`, corpID)
	return err
}

const characterSelect = `SELECT character_id, character_name, wallet, lp_json, pull_data, updated_at FROM characters`

func scanCharacter(row pgx.Row) (*engine.Character, error) {
	var ch engine.Character
	var lp string
	var updated *time.Time
	if err := row.Scan(&ch.CharacterID, &ch.Name, &ch.Wallet, &lp, &ch.PullData, &updated); err != nil {
		return nil, err
	}
	points, err := engine.DecodeLoyaltyPoints([]byte(lp))
	if err != nil {
		return nil, fmt.Errorf("character %d lp: %w", ch.CharacterID, err)
	}
	ch.LoyaltyPoints = points
	ch.UpdatedAt = timeOrZero(updated)
	return &ch, nil
}

// GetCharacter returns one character, or nil.
func (s *Store) GetCharacter(characterID int64) (*engine.Character, error) {
	ctx, cancel := opCtx()
	defer cancel()

	ch, err := scanCharacter(s.pool.QueryRow(ctx, characterSelect+` WHERE character_id = $1`, characterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ch, err
}

// ListCharacters returns all characters ordered by name.
func (s *Store) ListCharacters() ([]*engine.Character, error) {
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := s.pool.Query(ctx, characterSelect+` ORDER BY character_name, character_id`)
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
func (s *Store) UpsertCharacter(ch *engine.Character) error {
	if ch == nil {
		return fmt.Errorf("nil character")
	}
	lp, err := engine.EncodeLoyaltyPoints(ch.LoyaltyPoints)
	if err != nil {
		return fmt.Errorf("encode lp: %w", err)
	}
	ctx, cancel := opCtx()
	defer cancel()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO characters (character_id, character_name, wallet, lp_json, pull_data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (character_id) DO UPDATE SET
			character_name = $2,
			wallet = $3,
			lp_json = $4,
			pull_data = $5,
			updated_at = $6`,
		ch.CharacterID, ch.Name, ch.Wallet, string(lp), ch.PullData, nullTime(ch.UpdatedAt))
	return err
}

// DeleteCharacter removes a character record.
func (s *Store) DeleteCharacter(characterID int64) error {
	ctx, cancel := opCtx()
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM characters WHERE character_id = $1`, characterID)
	return err
}
