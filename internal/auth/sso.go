package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	authorizeURL = "https://login.eveonline.com/v2/oauth/authorize"
	tokenURL     = "https://login.eveonline.com/v2/oauth/token"
	verifyURL    = "https://login.eveonline.com/oauth/verify"
)

// Scopes needed to read LP balances and wallets.
const DefaultScopes = "esi-characters.read_loyalty.v1 esi-wallet.read_character_wallet.v1 " +
	"esi-wallet.read_corporation_wallets.v1 esi-corporations.read_divisions.v1"

// SSOConfig holds EVE SSO application credentials.
type SSOConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       string

	// Endpoint overrides; empty means the EVE login server.
	TokenURL  string
	VerifyURL string

	HTTP *http.Client
}

// Token is the OAuth token response.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// CharacterInfo identifies the character a token belongs to.
type CharacterInfo struct {
	CharacterID   int64  `json:"CharacterID"`
	CharacterName string `json:"CharacterName"`
	Scopes        string `json:"Scopes"`
	ExpiresOn     string `json:"ExpiresOn"`
}

// Configured reports whether login is possible.
func (c *SSOConfig) Configured() bool {
	return c != nil && c.ClientID != "" && c.CallbackURL != ""
}

// BuildAuthURL returns the login redirect for the given anti-CSRF state.
func (c *SSOConfig) BuildAuthURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.CallbackURL)
	q.Set("client_id", c.ClientID)
	q.Set("scope", c.Scopes)
	q.Set("state", state)
	return authorizeURL + "?" + q.Encode()
}

// GenerateState returns a random OAuth state value.
func GenerateState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(b)
}

// ExchangeCode trades an authorization code for tokens.
func (c *SSOConfig) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	return c.postToken(ctx, form)
}

// RefreshToken trades a refresh token for a new access token.
func (c *SSOConfig) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.postToken(ctx, form)
}

func (c *SSOConfig) postToken(ctx context.Context, form url.Values) (*Token, error) {
	endpoint := c.TokenURL
	if endpoint == "" {
		endpoint = tokenURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok Token
	if err := c.doJSON(req, &tok); err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token request: empty access token")
	}
	return &tok, nil
}

// VerifyToken asks SSO which character owns accessToken.
func (c *SSOConfig) VerifyToken(ctx context.Context, accessToken string) (*CharacterInfo, error) {
	endpoint := c.VerifyURL
	if endpoint == "" {
		endpoint = verifyURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var info CharacterInfo
	if err := c.doJSON(req, &info); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if info.CharacterID == 0 {
		return nil, fmt.Errorf("verify token: no character")
	}
	return &info, nil
}

func (c *SSOConfig) doJSON(req *http.Request, dst interface{}) error {
	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sso %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
