// Package gate decides, for every page render, whether protected content
// may be shown, whether the visitor must be sent to log in, or whether only
// the inert placeholder can be rendered.
package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/tenup/docgate/internal/browser"
	"github.com/tenup/docgate/internal/browserauth"
	"github.com/tenup/docgate/internal/config"
	"github.com/tenup/docgate/internal/cookie"
	jsonwriter "github.com/tenup/docgate/internal/json"
	"github.com/tenup/docgate/internal/log"
	"github.com/tenup/docgate/internal/metrics"
	"github.com/tenup/docgate/internal/pages"
	"github.com/tenup/docgate/internal/pathmatch"
)

// Verifier confirms a session with the SSO proxy
type Verifier interface {
	Verify(ctx context.Context, nonce, email string) error
}

// LoginURLBuilder builds the identity provider URL for a login that ends on
// returnTo
type LoginURLBuilder interface {
	LoginURL(returnTo string) string
}

// exemptPaths never go through the gate
var exemptPaths = []string{"/login", "/logout", "/healthz", "/metrics"}

// Decision is the outcome of evaluating one render
type Decision struct {
	State State
	// Placeholder is set when no browser is present. Only the inert
	// placeholder may be rendered.
	Placeholder bool
	// Redirect is the login URL to navigate to, when one is required
	Redirect string
	// Session is the verified token when State is Authenticated
	Session browserauth.SessionToken
}

// Gate guards protected pages
type Gate struct {
	verifier   Verifier
	auth       LoginURLBuilder
	siteURL    *url.URL
	siteName   string
	cookieName string
	sessionTTL time.Duration
	public     *pathmatch.Matcher
	metrics    *metrics.Metrics
}

// New creates a gate for the configured site
func New(cfg *config.Config, verifier Verifier, auth LoginURLBuilder, m *metrics.Metrics) (*Gate, error) {
	siteURL, err := url.Parse(cfg.Site.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing site URL: %w", err)
	}
	return &Gate{
		verifier:   verifier,
		auth:       auth,
		siteURL:    siteURL,
		siteName:   cfg.Site.Name,
		cookieName: cfg.SSO.CookieName,
		sessionTTL: cfg.SSO.SessionTTL,
		public:     pathmatch.New(cfg.Site.PublicPaths),
		metrics:    m,
	}, nil
}

// Evaluate runs the gate for one render. Outside a browser nothing is
// touched. A session that fails verification is deleted and the decision
// is a fresh login, so the visitor never stays on the placeholder.
func (g *Gate) Evaluate(ctx context.Context, bc browser.Context) Decision {
	state := Unknown
	if !bc.InBrowser() {
		return Decision{State: state, Placeholder: true}
	}

	sessions := browserauth.NewSessions(cookie.NewStore(bc.Cookies()), g.cookieName, g.sessionTTL)
	token, hasToken := sessions.Load()
	state = g.step(state, BrowserConfirmed{HasToken: hasToken})

	if state == Unauthenticated {
		return g.loginDecision(bc)
	}

	err := g.verifier.Verify(ctx, token.Nonce, token.Email)
	if err == nil {
		state = g.step(state, VerifySucceeded{})
		return Decision{State: state, Session: token}
	}

	state = g.step(state, VerifyFailed{Err: err})
	log.LogInfoWithFields("gate", "Session verification failed, starting a new login", map[string]any{
		"email": token.Email,
		"path":  bc.Location().Path,
		"error": err.Error(),
	})
	sessions.Clear()
	g.step(state, SessionRevoked{})
	return g.loginDecision(bc)
}

func (g *Gate) loginDecision(bc browser.Context) Decision {
	return Decision{
		State:    Unauthenticated,
		Redirect: g.auth.LoginURL(bc.Location().String()),
	}
}

// step applies a transition that Evaluate knows to be valid
func (g *Gate) step(s State, e Event) State {
	next, err := Transition(s, e)
	if err != nil {
		log.LogErrorWithFields("gate", "Unexpected state transition", map[string]any{
			"state": s.String(),
			"error": err.Error(),
		})
		return s
	}
	log.LogTraceWithFields("gate", "State transition", map[string]any{
		"from": s.String(),
		"to":   next.String(),
	})
	return next
}

// Exempt reports whether path is served without authentication. The fixed
// routes match exactly; anything below them is gated like any other page.
func (g *Gate) Exempt(path string) bool {
	if slices.Contains(exemptPaths, path) {
		return true
	}
	return g.public.Match(path)
}

// Middleware renders next only for authenticated visitors. Everyone else
// gets the placeholder, a redirect to the identity provider, or, for
// script clients, a 401 carrying the login URL.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Exempt(r.URL.Path) {
			g.metrics.GateDecision(metrics.DecisionPublic)
			next.ServeHTTP(w, r)
			return
		}

		bc := browser.NewHTTPContext(w, r, g.siteURL)
		d := g.Evaluate(r.Context(), bc)

		switch {
		case d.Placeholder:
			g.metrics.GateDecision(metrics.DecisionPlaceholder)
			pages.Write(w, http.StatusOK, pages.Placeholder, pages.Data{SiteName: g.siteName})
		case d.Redirect != "":
			g.metrics.GateDecision(metrics.DecisionRedirect)
			if wantsJSON(r) {
				jsonwriter.WriteUnauthorizedWithLogin(w, "Sign in required", d.Redirect)
				return
			}
			bc.Replace(d.Redirect)
		default:
			g.metrics.GateDecision(metrics.DecisionRender)
			w.Header().Set("Cache-Control", "private, no-cache")
			w.Header().Add("Vary", "Cookie")
			next.ServeHTTP(w, r.WithContext(browserauth.WithSession(r.Context(), d.Session)))
		}
	})
}

// wantsJSON reports whether the client cannot follow a login redirect
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/_docgate/") {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
