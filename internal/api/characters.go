package api

import (
	"fmt"
	"net/http"
	"strconv"

	"lp-trader/internal/engine"
	"lp-trader/internal/logger"
	"lp-trader/internal/refresh"
)

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	chars, err := s.catalog.ListCharacters()
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if chars == nil {
		chars = []*engine.Character{}
	}
	writeJSON(w, chars)
}

// sessionTokens returns valid tokens for every logged-in character that has
// data pulling enabled. Characters whose token cannot be renewed are skipped.
func (s *Server) sessionTokens(r *http.Request) []refresh.Token {
	if s.sessions == nil {
		return nil
	}
	var out []refresh.Token
	for _, sess := range s.sessions.List() {
		if !sess.PullData {
			continue
		}
		access, err := s.sessions.EnsureValidTokenForCharacter(r.Context(), s.sso, sess.CharacterID)
		if err != nil {
			logger.Warn("AUTH", fmt.Sprintf("%s: %v", sess.CharacterName, err))
			continue
		}
		out = append(out, refresh.Token{
			CharacterID:   sess.CharacterID,
			CharacterName: sess.CharacterName,
			AccessToken:   access,
		})
	}
	return out
}

func (s *Server) handleRefreshCharacters(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	force := r.URL.Query().Get("force") == "1"
	tokens := s.sessionTokens(r)
	updated := s.refresh.RefreshStaleCharacters(r.Context(), tokens, force)
	s.rankings.Flush()
	writeJSON(w, map[string]int{"characters": len(tokens), "updated": updated})
}

func (s *Server) handleSetPullData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("characterID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, 400, "invalid characterID")
		return
	}
	pull := r.URL.Query().Get("enabled") != "0"
	if s.sessions != nil {
		if err := s.sessions.SetPullData(id, pull); err != nil {
			writeError(w, 404, err.Error())
			return
		}
	}
	ch, err := s.catalog.GetCharacter(id)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if ch != nil {
		ch.PullData = pull
		if err := s.catalog.UpsertCharacter(ch); err != nil {
			writeError(w, 500, err.Error())
			return
		}
	}
	writeJSON(w, map[string]interface{}{"character_id": id, "pull_data": pull})
}

func (s *Server) handleActivateCharacter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("characterID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, 400, "invalid characterID")
		return
	}
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "SSO not configured")
		return
	}
	if err := s.sessions.SetActive(id); err != nil {
		writeError(w, 404, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"character_id": id, "active": true})
}

func (s *Server) handleDeleteCharacter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("characterID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, 400, "invalid characterID")
		return
	}
	if s.sessions != nil {
		if err := s.sessions.DeleteByCharacterID(id); err != nil {
			writeError(w, 500, err.Error())
			return
		}
	}
	if err := s.catalog.DeleteCharacter(id); err != nil {
		writeError(w, 500, err.Error())
		return
	}
	s.rankings.Flush()
	writeJSON(w, map[string]interface{}{"character_id": id, "deleted": true})
}

func (s *Server) handleCorpWallets(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	access, err := s.sessions.EnsureValidToken(r.Context(), s.sso)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	sess := s.sessions.Get()
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	corpID, err := s.esi.GetCharacterCorporationID(r.Context(), sess.CharacterID)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	wallets, err := s.esi.GetNamedCorporationWallets(r.Context(), corpID, access)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"corporation_id": corpID,
		"wallets":        wallets,
	})
}
