package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tenup/docgate/internal/browser"
	"github.com/tenup/docgate/internal/browserauth"
	"github.com/tenup/docgate/internal/config"
	"github.com/tenup/docgate/internal/cookie"
	"github.com/tenup/docgate/internal/emailutil"
	"github.com/tenup/docgate/internal/gate"
	jsonwriter "github.com/tenup/docgate/internal/json"
	"github.com/tenup/docgate/internal/log"
	"github.com/tenup/docgate/internal/metrics"
	"github.com/tenup/docgate/internal/pages"
	"github.com/tenup/docgate/internal/storage"
	"github.com/tenup/docgate/internal/urlutil"
)

// SessionVerifier confirms sessions with the SSO proxy and can drop a
// confirmation it remembers
type SessionVerifier interface {
	gate.Verifier
	Forget(nonce, email string)
}

// AuthHandlers serves the login callback, logout and session endpoints
type AuthHandlers struct {
	verifier          SessionVerifier
	auth              gate.LoginURLBuilder
	storage           storage.Storage
	metrics           *metrics.Metrics
	siteURL           *url.URL
	siteName          string
	landingURL        string
	cookieName        string
	sessionTTL        time.Duration
	enforceSameOrigin bool
	allowedDomains    []string
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(
	cfg *config.Config,
	verifier SessionVerifier,
	auth gate.LoginURLBuilder,
	store storage.Storage,
	m *metrics.Metrics,
) (*AuthHandlers, error) {
	siteURL, err := url.Parse(cfg.Site.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing site URL: %w", err)
	}
	return &AuthHandlers{
		verifier:          verifier,
		auth:              auth,
		storage:           store,
		metrics:           m,
		siteURL:           siteURL,
		siteName:          cfg.Site.Name,
		landingURL:        cfg.LandingURL(),
		cookieName:        cfg.SSO.CookieName,
		sessionTTL:        cfg.SSO.SessionTTL,
		enforceSameOrigin: cfg.SSO.EnforceSameOrigin,
		allowedDomains:    cfg.SSO.AllowedDomains,
	}, nil
}

func (h *AuthHandlers) sessions(bc browser.Context) *browserauth.Sessions {
	return browserauth.NewSessions(cookie.NewStore(bc.Cookies()), h.cookieName, h.sessionTTL)
}

func (h *AuthHandlers) page(w http.ResponseWriter, status int, page pages.Page, data pages.Data) {
	data.SiteName = h.siteName
	pages.Write(w, status, page, data)
}

// LoginHandler completes a login. The SSO proxy sends the browser here with
// nonce, email, full_name and return_to once the identity provider has
// signed the visitor in.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	bc := browser.NewHTTPContext(w, r, h.siteURL)
	if !bc.InBrowser() {
		h.page(w, http.StatusOK, pages.Placeholder, pages.Data{})
		return
	}

	nav := browserauth.ParseNavigationState(r.URL.Query())
	if nav.Nonce == "" {
		h.metrics.Login(metrics.LoginDirect)
		h.page(w, http.StatusBadRequest, pages.LoginDirect, pages.Data{Title: "Sign in"})
		return
	}

	returnTo, ok := urlutil.ResolveReturnTo(h.siteURL, nav.ReturnTo, h.enforceSameOrigin)
	if !ok {
		log.LogWarnWithFields("auth", "Ignoring return_to outside the site", map[string]any{
			"return_to": nav.ReturnTo,
			"email":     nav.Email,
		})
	}

	if err := h.verifier.Verify(r.Context(), nav.Nonce, nav.Email); err != nil {
		log.LogErrorWithFields("auth", "Login verification failed", map[string]any{
			"email": nav.Email,
			"error": err.Error(),
		})
		h.metrics.Login(metrics.LoginFailed)
		h.page(w, http.StatusUnauthorized, pages.VerificationFailed, pages.Data{
			Title:    "Sign in failed",
			LinkURL:  h.auth.LoginURL(returnTo),
			LinkText: "Try again",
		})
		return
	}

	if msg, denied := h.denied(r.Context(), nav.Email); denied {
		h.verifier.Forget(nav.Nonce, nav.Email)
		h.metrics.Login(metrics.LoginDenied)
		h.page(w, http.StatusForbidden, pages.DomainNotAllowed, pages.Data{
			Title:   "Access restricted",
			Message: msg,
			LinkURL: h.auth.LoginURL(returnTo),
		})
		return
	}

	if err := h.sessions(bc).Save(nav.Token()); err != nil {
		log.LogErrorWithFields("auth", "Failed to write session cookie", map[string]any{
			"email": nav.Email,
			"error": err.Error(),
		})
		h.metrics.Login(metrics.LoginFailed)
		h.page(w, http.StatusInternalServerError, pages.VerificationFailed, pages.Data{
			Title:   "Sign in failed",
			LinkURL: h.auth.LoginURL(returnTo),
		})
		return
	}

	if err := h.storage.UpsertMember(r.Context(), nav.Email, nav.FullName); err != nil {
		log.LogWarnWithFields("auth", "Failed to record member", map[string]any{
			"email": nav.Email,
			"error": err.Error(),
		})
		h.metrics.MemberUpsertFailed()
	}

	log.LogInfoWithFields("auth", "Member signed in", map[string]any{
		"email":     nav.Email,
		"return_to": returnTo,
	})
	h.metrics.Login(metrics.LoginSuccess)
	bc.Replace(returnTo)
}

// denied checks the verified email against the allowed domains and the
// member's enabled flag. Storage errors do not block a login.
func (h *AuthHandlers) denied(ctx context.Context, email string) (string, bool) {
	if !emailutil.DomainAllowed(email, h.allowedDomains) {
		log.LogInfoWithFields("auth", "Login from domain outside the allowed list", map[string]any{
			"email": email,
		})
		return fmt.Sprintf("%s is not allowed to access %s. Sign in with your organization account.", email, h.siteName), true
	}

	member, err := h.storage.GetMember(ctx, email)
	switch {
	case errors.Is(err, storage.ErrMemberNotFound):
		return "", false
	case err != nil:
		log.LogWarnWithFields("auth", "Failed to look up member", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return "", false
	case !member.Enabled:
		log.LogInfoWithFields("auth", "Login from disabled member", map[string]any{
			"email": email,
		})
		return fmt.Sprintf("Access to %s has been disabled for %s.", h.siteName, email), true
	}
	return "", false
}

// LogoutHandler ends the session and sends the browser to the landing page
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	bc := browser.NewHTTPContext(w, r, h.siteURL)
	if !bc.InBrowser() {
		h.page(w, http.StatusOK, pages.Placeholder, pages.Data{})
		return
	}

	sessions := h.sessions(bc)
	if token, ok := sessions.Load(); ok {
		if token.Nonce != "" {
			h.verifier.Forget(token.Nonce, token.Email)
		}
		log.LogInfoWithFields("auth", "Member signed out", map[string]any{
			"email": token.Email,
		})
	}
	sessions.Clear()
	h.metrics.Logout()
	bc.Replace(h.landingURL)
}

// SessionResponse is the identity of the signed-in member
type SessionResponse struct {
	Email       string `json:"email"`
	FullName    string `json:"fullName,omitempty"`
	DisplayName string `json:"displayName"`
}

// SessionHandler reports who is signed in. It must run behind the gate.
func (h *AuthHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := browserauth.SessionFromContext(r.Context())
	if !ok {
		jsonwriter.WriteUnauthorized(w, "Sign in required")
		return
	}
	if err := jsonwriter.Write(w, SessionResponse{
		Email:       token.Email,
		FullName:    token.FullName,
		DisplayName: token.DisplayName(),
	}); err != nil {
		log.LogError("Failed to encode session response: %v", err)
	}
}
