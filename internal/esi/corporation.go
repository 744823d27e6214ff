package esi

import (
	"context"
	"fmt"
)

// CorporationInfo is the public part of /corporations/{corporation_id}/.
type CorporationInfo struct {
	Name      string `json:"name"`
	Ticker    string `json:"ticker"`
	FactionID int32  `json:"faction_id,omitempty"`
	CEOID     int64  `json:"ceo_id"`
	Members   int32  `json:"member_count"`
}

// IsNPC reports whether the corporation is run by the game.
// NPC corporation ids live in 1000000..1999999.
func IsNPC(corpID int32) bool {
	return corpID >= 1000000 && corpID < 2000000
}

// CorpWallet is one division wallet of a corporation.
type CorpWallet struct {
	Division int32   `json:"division"`
	Balance  float64 `json:"balance"`
	Name     string  `json:"name,omitempty"`
}

// DivisionName labels a hangar or wallet division.
type DivisionName struct {
	Division int32  `json:"division"`
	Name     string `json:"name"`
}

// CorpDivisions are the configured division names of a corporation.
type CorpDivisions struct {
	Hangar []DivisionName `json:"hangar"`
	Wallet []DivisionName `json:"wallet"`
}

// GetCorporationInfo returns the public record of a corporation.
func (c *Client) GetCorporationInfo(ctx context.Context, corpID int32) (*CorporationInfo, error) {
	var info CorporationInfo
	if err := c.GetJSON(ctx, c.url(fmt.Sprintf("/corporations/%d/", corpID)), &info); err != nil {
		return nil, err
	}
	c.nameCache.Store(int64(corpID), info.Name)
	return &info, nil
}

// GetCorporationWallets returns the balances of every wallet division.
// Requires scope esi-wallet.read_corporation_wallets.v1 and a director/accountant role.
func (c *Client) GetCorporationWallets(ctx context.Context, corpID int32, accessToken string) ([]CorpWallet, error) {
	var wallets []CorpWallet
	url := c.url(fmt.Sprintf("/corporations/%d/wallets/", corpID))
	if err := c.AuthGetJSON(ctx, url, accessToken, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

// GetCorporationDivisions returns the division names of a corporation.
// Requires scope esi-corporations.read_divisions.v1.
func (c *Client) GetCorporationDivisions(ctx context.Context, corpID int32, accessToken string) (*CorpDivisions, error) {
	var div CorpDivisions
	url := c.url(fmt.Sprintf("/corporations/%d/divisions/", corpID))
	if err := c.AuthGetJSON(ctx, url, accessToken, &div); err != nil {
		return nil, err
	}
	return &div, nil
}

// GetNamedCorporationWallets merges wallet balances with their division names.
func (c *Client) GetNamedCorporationWallets(ctx context.Context, corpID int32, accessToken string) ([]CorpWallet, error) {
	wallets, err := c.GetCorporationWallets(ctx, corpID, accessToken)
	if err != nil {
		return nil, err
	}
	div, err := c.GetCorporationDivisions(ctx, corpID, accessToken)
	if err != nil {
		return nil, err
	}
	names := make(map[int32]string, len(div.Wallet))
	for _, d := range div.Wallet {
		names[d.Division] = d.Name
	}
	for i := range wallets {
		wallets[i].Name = names[wallets[i].Division]
		if wallets[i].Name == "" {
			wallets[i].Name = fmt.Sprintf("Division %d", wallets[i].Division)
		}
	}
	return wallets, nil
}
