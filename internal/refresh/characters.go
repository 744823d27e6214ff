package refresh

import (
	"context"
	"fmt"

	"lp-trader/internal/engine"
	"lp-trader/internal/esi"
	"lp-trader/internal/logger"
)

// Token is a character's valid ESI access token.
type Token struct {
	CharacterID   int64
	CharacterName string
	AccessToken   string
}

// UpdateCharacter pulls wallet and LP balances for the token's character and
// upserts the record. A character refreshed within the staleness window is
// left alone unless force is set. Faults are logged and reported as false.
func (s *Service) UpdateCharacter(ctx context.Context, tok Token, force bool) bool {
	now := s.now()
	existing, err := s.catalog.GetCharacter(tok.CharacterID)
	if err != nil {
		logger.Error("CHAR", fmt.Sprintf("%d: load: %v", tok.CharacterID, err))
		return false
	}
	if existing != nil && !force && existing.RecentlyUpdated(now, s.config().StaleAfter()) {
		return true
	}

	wallet, err := s.esi.GetWalletBalance(ctx, tok.CharacterID, tok.AccessToken)
	if err != nil {
		logger.Error("CHAR", fmt.Sprintf("%s: wallet: %v", tok.CharacterName, err))
		return false
	}
	points, err := s.esi.GetLoyaltyPoints(ctx, tok.CharacterID, tok.AccessToken)
	if err != nil {
		logger.Error("CHAR", fmt.Sprintf("%s: loyalty points: %v", tok.CharacterName, err))
		return false
	}
	lp, err := s.lpByCorpName(ctx, points)
	if err != nil {
		logger.Error("CHAR", fmt.Sprintf("%s: resolve corp names: %v", tok.CharacterName, err))
		return false
	}

	ch := existing
	if ch == nil {
		ch = &engine.Character{CharacterID: tok.CharacterID, PullData: true}
		logger.Info("CHAR", fmt.Sprintf("New character %s", tok.CharacterName))
	}
	if tok.CharacterName != "" {
		ch.Name = tok.CharacterName
	}
	ch.Wallet = wallet
	ch.LoyaltyPoints = lp
	ch.UpdatedAt = now
	if err := s.catalog.UpsertCharacter(ch); err != nil {
		logger.Error("CHAR", fmt.Sprintf("%s: save: %v", tok.CharacterName, err))
		return false
	}
	return true
}

func (s *Service) lpByCorpName(ctx context.Context, points []esi.LoyaltyPoints) (map[string]int64, error) {
	out := make(map[string]int64, len(points))
	if len(points) == 0 {
		return out, nil
	}
	ids := make([]int64, len(points))
	for i, p := range points {
		ids[i] = int64(p.CorporationID)
	}
	names, err := s.esi.PostUniverseNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]string, len(names))
	for _, n := range names {
		byID[n.ID] = n.Name
	}
	for _, p := range points {
		name, ok := byID[int64(p.CorporationID)]
		if !ok {
			name = fmt.Sprintf("Corporation %d", p.CorporationID)
		}
		out[name] += p.LoyaltyPoints
	}
	return out, nil
}

// RefreshStaleCharacters updates every character in tokens whose stored record
// is stale or missing, skipping those with pull_data turned off. Returns the
// number of successful updates.
func (s *Service) RefreshStaleCharacters(ctx context.Context, tokens []Token, force bool) int {
	ok := 0
	for _, tok := range tokens {
		if existing, err := s.catalog.GetCharacter(tok.CharacterID); err == nil && existing != nil && !existing.PullData {
			continue
		}
		if s.UpdateCharacter(ctx, tok, force) {
			ok++
		}
	}
	return ok
}
