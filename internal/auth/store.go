package auth

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// refreshBuffer renews tokens this long before they expire.
const refreshBuffer = 60 * time.Second

// Session is a logged-in character.
type Session struct {
	CharacterID   int64
	CharacterName string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	Active        bool
	PullData      bool // include this character in LP/wallet refreshes
}

// TokenRefresher renews an access token. *SSOConfig implements it.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
}

// SessionStore persists character sessions in the auth_session table.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a store backed by the given SQL database.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `character_id, character_name, access_token, refresh_token, expires_at, is_active, pull_data`

// Save stores or updates a session. Active and pull_data flags of an existing
// row are kept; the first session stored becomes active.
func (s *SessionStore) Save(sess *Session) error {
	if sess == nil {
		return fmt.Errorf("nil session")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO auth_session (character_id, character_name, access_token, refresh_token, expires_at, is_active, pull_data)
		VALUES (?, ?, ?, ?, ?, 0, 1)
		ON CONFLICT(character_id) DO UPDATE SET
			character_name = excluded.character_name,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at`,
		sess.CharacterID, sess.CharacterName, sess.AccessToken, sess.RefreshToken, sess.ExpiresAt.Unix(),
	)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		UPDATE auth_session SET is_active = 1
		 WHERE character_id = ?
		   AND NOT EXISTS (SELECT 1 FROM auth_session WHERE is_active = 1)`, sess.CharacterID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// SaveAndActivate stores a session and makes it the active character.
func (s *SessionStore) SaveAndActivate(sess *Session) error {
	if err := s.Save(sess); err != nil {
		return err
	}
	return s.SetActive(sess.CharacterID)
}

// Get returns the active session, or nil if none.
func (s *SessionStore) Get() *Session {
	if sess := s.queryOne(`SELECT `+sessionColumns+` FROM auth_session WHERE is_active = 1 LIMIT 1`); sess != nil {
		return sess
	}
	return s.queryOne(`SELECT ` + sessionColumns + ` FROM auth_session ORDER BY character_name, character_id LIMIT 1`)
}

// GetByCharacterID returns one character's session, or nil.
func (s *SessionStore) GetByCharacterID(characterID int64) *Session {
	return s.queryOne(`SELECT `+sessionColumns+` FROM auth_session WHERE character_id = ?`, characterID)
}

// List returns all sessions, active first.
func (s *SessionStore) List() []*Session {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM auth_session
		ORDER BY is_active DESC, character_name ASC, character_id ASC`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(r rowScanner) (*Session, error) {
	var sess Session
	var expiresUnix int64
	var active, pull int
	if err := r.Scan(&sess.CharacterID, &sess.CharacterName, &sess.AccessToken, &sess.RefreshToken, &expiresUnix, &active, &pull); err != nil {
		return nil, err
	}
	sess.ExpiresAt = time.Unix(expiresUnix, 0)
	sess.Active = active == 1
	sess.PullData = pull == 1
	return &sess, nil
}

func (s *SessionStore) queryOne(query string, args ...interface{}) *Session {
	sess, err := scanSession(s.db.QueryRow(query, args...))
	if err != nil {
		return nil
	}
	return sess
}

// SetActive marks a stored character as the active one.
func (s *SessionStore) SetActive(characterID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE auth_session SET is_active = 0`); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE auth_session SET is_active = 1 WHERE character_id = ?`, characterID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("character %d not found", characterID)
	}
	return tx.Commit()
}

// SetPullData toggles whether a character is refreshed.
func (s *SessionStore) SetPullData(characterID int64, pull bool) error {
	v := 0
	if pull {
		v = 1
	}
	res, err := s.db.Exec(`UPDATE auth_session SET pull_data = ? WHERE character_id = ?`, v, characterID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("character %d not found", characterID)
	}
	return nil
}

// Delete removes all sessions.
func (s *SessionStore) Delete() {
	s.db.Exec(`DELETE FROM auth_session`)
}

// DeleteByCharacterID removes one session. If it was active, the first
// remaining character by name takes over.
func (s *SessionStore) DeleteByCharacterID(characterID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var wasActive int
	err = tx.QueryRow(`SELECT is_active FROM auth_session WHERE character_id = ?`, characterID).Scan(&wasActive)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM auth_session WHERE character_id = ?`, characterID); err != nil {
		return err
	}
	if wasActive == 1 {
		if _, err := tx.Exec(`
			UPDATE auth_session SET is_active = 1
			 WHERE character_id = (
				SELECT character_id FROM auth_session
				 ORDER BY character_name ASC, character_id ASC LIMIT 1)`); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EnsureValidToken returns a usable access token for the active character.
func (s *SessionStore) EnsureValidToken(ctx context.Context, sso TokenRefresher) (string, error) {
	sess := s.Get()
	if sess == nil {
		return "", &Error{Reason: "not logged in"}
	}
	return s.ensureValid(ctx, sess, sso)
}

// EnsureValidTokenForCharacter returns a usable access token for characterID.
func (s *SessionStore) EnsureValidTokenForCharacter(ctx context.Context, sso TokenRefresher, characterID int64) (string, error) {
	sess := s.GetByCharacterID(characterID)
	if sess == nil {
		return "", &Error{CharacterID: characterID, Reason: "character not logged in"}
	}
	return s.ensureValid(ctx, sess, sso)
}

func (s *SessionStore) ensureValid(ctx context.Context, sess *Session, sso TokenRefresher) (string, error) {
	if time.Now().Before(sess.ExpiresAt.Add(-refreshBuffer)) {
		return sess.AccessToken, nil
	}
	if c, ok := sso.(*SSOConfig); sso == nil || (ok && c == nil) {
		return "", &Error{CharacterID: sess.CharacterID, Reason: "sso not configured"}
	}

	log.Printf("[AUTH] Refreshing token for %s", sess.CharacterName)
	tok, err := sso.RefreshToken(ctx, sess.RefreshToken)
	if err != nil {
		// a rejected refresh token never recovers; force a new login
		_ = s.DeleteByCharacterID(sess.CharacterID)
		return "", &Error{CharacterID: sess.CharacterID, Reason: "refresh failed", Err: err}
	}

	sess.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		sess.RefreshToken = tok.RefreshToken
	}
	sess.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if err := s.Save(sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return sess.AccessToken, nil
}
