package auth

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "hackathon_session"

	userKey      = "user"
	emailKey     = "email"
	nameKey      = "name"
	adminKey     = "admin"
	expiresAtKey = "expires_at"
)

// SessionManager stores the signed in principal and pending notices in an
// encrypted cookie.
type SessionManager struct {
	store    *sessions.CookieStore
	duration time.Duration
}

// NewSessionManager creates a new session manager with the given key.
// The key must be exactly 32 bytes.
func NewSessionManager(key []byte, duration time.Duration, secure bool) (*SessionManager, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("session key must be 32 bytes, got %d", len(key))
	}

	// separate keys for signing and encryption
	blockKey := sha256.Sum256(append([]byte("hackathon-session-block:"), key...))
	store := sessions.NewCookieStore(key, blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(duration.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &SessionManager{store: store, duration: duration}, nil
}

func (sm *SessionManager) session(r *http.Request) *sessions.Session {
	// a cookie that fails to decode yields a fresh session
	sess, _ := sm.store.Get(r, SessionCookieName)
	return sess
}

// Load returns the principal stored in the session, or nil.
func (sm *SessionManager) Load(r *http.Request) *Principal {
	sess := sm.session(r)
	user, _ := sess.Values[userKey].(string)
	if user == "" {
		return nil
	}
	if exp, _ := sess.Values[expiresAtKey].(int64); exp != 0 && time.Now().Unix() > exp {
		return nil
	}
	email, _ := sess.Values[emailKey].(string)
	name, _ := sess.Values[nameKey].(string)
	admin, _ := sess.Values[adminKey].(bool)
	return &Principal{
		User:  UserFromExternalID(user),
		Email: email,
		Name:  name,
		Admin: admin,
	}
}

// Login stores p in the session.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, p *Principal) error {
	sess := sm.session(r)
	sess.Values[userKey] = string(p.User)
	sess.Values[emailKey] = p.Email
	sess.Values[nameKey] = p.Name
	sess.Values[adminKey] = p.Admin
	sess.Values[expiresAtKey] = time.Now().Add(sm.duration).Unix()
	return sess.Save(r, w)
}

// Logout forgets the principal. Pending notices survive.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess := sm.session(r)
	for _, k := range []string{userKey, emailKey, nameKey, adminKey, expiresAtKey} {
		delete(sess.Values, k)
	}
	return sess.Save(r, w)
}

// AddNotices queues messages to be shown on the next page this browser loads.
func (sm *SessionManager) AddNotices(w http.ResponseWriter, r *http.Request, msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	sess := sm.session(r)
	for _, m := range msgs {
		sess.AddFlash(m)
	}
	return sess.Save(r, w)
}

// TakeNotices returns and clears the queued messages.
func (sm *SessionManager) TakeNotices(w http.ResponseWriter, r *http.Request) ([]string, error) {
	sess := sm.session(r)
	flashes := sess.Flashes()
	if len(flashes) == 0 {
		return nil, nil
	}
	msgs := make([]string, 0, len(flashes))
	for _, f := range flashes {
		if s, ok := f.(string); ok {
			msgs = append(msgs, s)
		}
	}
	return msgs, sess.Save(r, w)
}
