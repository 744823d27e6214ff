package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"lp-trader/internal/auth"
	"lp-trader/internal/logger"
	"lp-trader/internal/refresh"
)

const ssoStateTTL = 10 * time.Minute

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if !s.sso.Configured() || s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "SSO not configured")
		return
	}
	state := auth.GenerateState()
	now := time.Now()

	s.ssoStatesMu.Lock()
	for k, exp := range s.ssoStates {
		if now.After(exp) {
			delete(s.ssoStates, k)
		}
	}
	s.ssoStates[state] = now.Add(ssoStateTTL)
	s.ssoStatesMu.Unlock()

	http.Redirect(w, r, s.sso.BuildAuthURL(state), http.StatusTemporaryRedirect)
}

// consumeState reports whether state was issued and unexpired, removing it either way.
func (s *Server) consumeState(state string) bool {
	s.ssoStatesMu.Lock()
	defer s.ssoStatesMu.Unlock()
	exp, ok := s.ssoStates[state]
	delete(s.ssoStates, state)
	return ok && time.Now().Before(exp)
}

func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !s.sso.Configured() || s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "SSO not configured")
		return
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || !s.consumeState(state) {
		writeError(w, 400, "invalid or expired state parameter")
		return
	}

	tok, err := s.sso.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Printf("[AUTH] Code exchange failed: %v", err)
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	info, err := s.sso.VerifyToken(r.Context(), tok.AccessToken)
	if err != nil {
		log.Printf("[AUTH] Verify failed: %v", err)
		writeError(w, http.StatusBadGateway, "token verification failed")
		return
	}

	sess := &auth.Session{
		CharacterID:   info.CharacterID,
		CharacterName: info.CharacterName,
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		ExpiresAt:     time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}
	if err := s.sessions.SaveAndActivate(sess); err != nil {
		writeError(w, 500, "save session: "+err.Error())
		return
	}
	logger.Success("AUTH", fmt.Sprintf("Logged in as %s (%d)", info.CharacterName, info.CharacterID))

	if s.refresh != nil {
		s.refresh.UpdateCharacter(r.Context(), refresh.Token{
			CharacterID:   info.CharacterID,
			CharacterName: info.CharacterName,
			AccessToken:   tok.AccessToken,
		}, true)
		s.rankings.Flush()
	}
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, map[string]interface{}{"logged_in": false})
		return
	}
	sess := s.sessions.Get()
	if sess == nil {
		writeJSON(w, map[string]interface{}{"logged_in": false})
		return
	}
	writeJSON(w, map[string]interface{}{
		"logged_in":      true,
		"character_id":   sess.CharacterID,
		"character_name": sess.CharacterName,
	})
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if s.sessions != nil {
		s.sessions.Delete()
	}
	writeJSON(w, map[string]string{"status": "logged_out"})
}
