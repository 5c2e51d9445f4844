package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	// StateCookieName is the name of the state cookie.
	StateCookieName = "hackathon_oidc_state"
	// StateCookieMaxAge is how long the state cookie is valid (5 minutes).
	StateCookieMaxAge = 5 * 60
)

// StateStore manages state and nonce for OIDC CSRF protection.
type StateStore struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// StateData holds the state and nonce for an OIDC request.
type StateData struct {
	State     string    `json:"state"`
	Nonce     string    `json:"nonce"`
	ReturnTo  string    `json:"return_to,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewStateStore creates a new state store with encryption.
func NewStateStore(key []byte, secure bool) (*StateStore, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("state store key must be 32 bytes, got %d", len(key))
	}

	blockKey := sha256.Sum256(append([]byte("hackathon-state-block:"), key...))
	codec := securecookie.New(key, blockKey[:])
	codec.MaxAge(StateCookieMaxAge)
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &StateStore{codec: codec, secure: secure}, nil
}

// Generate creates a new state/nonce pair and stores it in an encrypted cookie.
func (ss *StateStore) Generate(w http.ResponseWriter, returnTo string) (*StateData, error) {
	state, err := GenerateSecureString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	nonce, err := GenerateSecureString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := &StateData{
		State:     state,
		Nonce:     nonce,
		ReturnTo:  returnTo,
		ExpiresAt: time.Now().Add(StateCookieMaxAge * time.Second),
	}

	encoded, err := ss.codec.Encode(StateCookieName, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   StateCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   ss.secure,
	})

	return data, nil
}

// Validate retrieves and validates the state from the cookie.
func (ss *StateStore) Validate(r *http.Request, state string) (*StateData, error) {
	cookie, err := r.Cookie(StateCookieName)
	if err != nil {
		return nil, fmt.Errorf("state cookie not found: %w", err)
	}

	var data StateData
	if err := ss.codec.Decode(StateCookieName, cookie.Value, &data); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}

	if time.Now().After(data.ExpiresAt) {
		return nil, fmt.Errorf("state expired")
	}

	if subtle.ConstantTimeCompare([]byte(data.State), []byte(state)) != 1 {
		return nil, fmt.Errorf("state mismatch")
	}

	return &data, nil
}

// Clear clears the state cookie.
func (ss *StateStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   ss.secure,
	})
}
