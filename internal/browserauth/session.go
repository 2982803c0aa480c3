package browserauth

import (
	"context"
	"net/url"
	"time"

	"github.com/tenup/docgate/internal/cookie"
	"github.com/tenup/docgate/internal/log"
)

// DefaultCookieName is the session cookie used when none is configured
const DefaultCookieName = "10up-sso-login"

// NonceCookieName returns the name of the session-scoped cookie holding the
// verification nonce for the session cookie called name.
func NonceCookieName(name string) string {
	return name + "-nonce"
}

// SessionToken represents the identity kept in the browser session cookie.
// The nonce never goes into the long-lived cookie.
type SessionToken struct {
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	Nonce    string `json:"-"`
}

// DisplayName returns the best human-readable identity in the token
func (t SessionToken) DisplayName() string {
	if t.FullName != "" {
		return t.FullName
	}
	return t.Email
}

// NavigationState is the query string the SSO proxy sends back to /login.
// It only lives for the duration of the redirect round-trip.
type NavigationState struct {
	Nonce    string
	Email    string
	FullName string
	ReturnTo string
}

// ParseNavigationState reads the login callback parameters
func ParseNavigationState(q url.Values) NavigationState {
	return NavigationState{
		Nonce:    q.Get("nonce"),
		Email:    q.Get("email"),
		FullName: q.Get("full_name"),
		ReturnTo: q.Get("return_to"),
	}
}

// Token builds the session token from the callback claims
func (n NavigationState) Token() SessionToken {
	return SessionToken{
		FullName: n.FullName,
		Email:    n.Email,
		Nonce:    n.Nonce,
	}
}

// Sessions reads and writes the session cookies through a cookie store
type Sessions struct {
	store *cookie.Store
	name  string
	ttl   time.Duration
}

// NewSessions creates a session accessor. A zero ttl keeps the session
// cookie scoped to the browser session.
func NewSessions(store *cookie.Store, name string, ttl time.Duration) *Sessions {
	if name == "" {
		name = DefaultCookieName
	}
	return &Sessions{store: store, name: name, ttl: ttl}
}

// Load returns the session token, with its nonce when the browser still holds
// the session-scoped nonce cookie. Unreadable cookies count as absent.
func (s *Sessions) Load() (SessionToken, bool) {
	var token SessionToken
	found, err := s.store.Read(s.name, &token)
	if err != nil {
		log.LogWarnWithFields("session", "Ignoring unreadable session cookie", map[string]any{
			"cookie": s.name,
			"error":  err.Error(),
		})
		return SessionToken{}, false
	}
	if !found {
		return SessionToken{}, false
	}

	var nonce string
	if _, err := s.store.Read(NonceCookieName(s.name), &nonce); err != nil {
		log.LogDebug("Ignoring unreadable nonce cookie: %v", err)
	}
	token.Nonce = nonce
	return token, true
}

// Save writes the session cookie and the session-scoped nonce cookie
func (s *Sessions) Save(token SessionToken) error {
	var expires time.Time
	if s.ttl > 0 {
		expires = time.Now().Add(s.ttl)
	}
	if err := s.store.Write(s.name, token, cookie.Options{Expires: expires}); err != nil {
		return err
	}
	if token.Nonce == "" {
		return nil
	}
	return s.store.Write(NonceCookieName(s.name), token.Nonce, cookie.Options{})
}

// Clear removes both session cookies
func (s *Sessions) Clear() {
	s.store.Delete(s.name)
	s.store.Delete(NonceCookieName(s.name))
}

type sessionKey struct{}

// WithSession attaches a verified session to the context
func WithSession(ctx context.Context, token SessionToken) context.Context {
	return context.WithValue(ctx, sessionKey{}, token)
}

// SessionFromContext returns the verified session set by the auth gate
func SessionFromContext(ctx context.Context) (SessionToken, bool) {
	token, ok := ctx.Value(sessionKey{}).(SessionToken)
	return token, ok
}
