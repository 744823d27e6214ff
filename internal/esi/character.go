package esi

import (
	"context"
	"fmt"
)

// GetWalletBalance returns the ISK balance of a character.
// Requires scope esi-wallet.read_character_wallet.v1.
func (c *Client) GetWalletBalance(ctx context.Context, characterID int64, accessToken string) (float64, error) {
	var balance float64
	url := c.url(fmt.Sprintf("/characters/%d/wallet/", characterID))
	if err := c.AuthGetJSON(ctx, url, accessToken, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// GetCharacterCorporationID returns the corporation a character belongs to.
func (c *Client) GetCharacterCorporationID(ctx context.Context, characterID int64) (int32, error) {
	var info struct {
		CorporationID int32  `json:"corporation_id"`
		Name          string `json:"name"`
	}
	if err := c.GetJSON(ctx, c.url(fmt.Sprintf("/characters/%d/", characterID)), &info); err != nil {
		return 0, err
	}
	if info.Name != "" {
		c.nameCache.Store(characterID, UniverseName{Category: "character", ID: characterID, Name: info.Name})
	}
	return info.CorporationID, nil
}
