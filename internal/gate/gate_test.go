package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenup/docgate/internal/browser"
	"github.com/tenup/docgate/internal/browserauth"
	"github.com/tenup/docgate/internal/config"
	"github.com/tenup/docgate/internal/cookie"
	"github.com/tenup/docgate/internal/pages"
	"github.com/tenup/docgate/internal/sso"
)

type fakeVerifier struct {
	err   error
	calls atomic.Int32
	last  [2]string
}

func (v *fakeVerifier) Verify(_ context.Context, nonce, email string) error {
	v.calls.Add(1)
	v.last = [2]string{nonce, email}
	return v.err
}

// fakeContext is a headless browser.Context
type fakeContext struct {
	inBrowser   bool
	location    *url.URL
	jar         *cookie.MemoryJar
	cookieCalls int
	replaced    []string
}

func (c *fakeContext) InBrowser() bool { return c.inBrowser }
func (c *fakeContext) Location() *url.URL {
	u := *c.location
	return &u
}
func (c *fakeContext) Cookies() cookie.Jar {
	c.cookieCalls++
	return c.jar
}
func (c *fakeContext) Replace(target string) { c.replaced = append(c.replaced, target) }

var _ browser.Context = (*fakeContext)(nil)

func testConfig() *config.Config {
	return &config.Config{
		Site: config.SiteConfig{
			URL:         "https://docs.example.com",
			Name:        "docs",
			PublicPaths: []string{"/img/"},
		},
		SSO: config.SSOConfig{
			GoogleClientID: "1234-abc",
			ProxyURL:       "https://sso.example.com/wp-admin/admin-ajax.php",
			AuthURL:        config.DefaultAuthURL,
			Scopes:         config.DefaultScopes,
			CookieName:     config.DefaultCookieName,
		},
	}
}

func newTestGate(t *testing.T, v Verifier) *Gate {
	t.Helper()
	cfg := testConfig()
	auth, err := sso.NewAuthURLBuilder(cfg.SSO, cfg.Site.URL)
	require.NoError(t, err)
	g, err := New(cfg, v, auth, nil)
	require.NoError(t, err)
	return g
}

func newFakeContext(t *testing.T, page string) *fakeContext {
	t.Helper()
	loc, err := url.Parse(page)
	require.NoError(t, err)
	return &fakeContext{inBrowser: true, location: loc, jar: cookie.NewMemoryJar()}
}

func saveSession(t *testing.T, jar cookie.Jar, token browserauth.SessionToken) {
	t.Helper()
	sessions := browserauth.NewSessions(cookie.NewStore(jar), config.DefaultCookieName, 0)
	require.NoError(t, sessions.Save(token))
}

func returnToOf(t *testing.T, loginURL string) string {
	t.Helper()
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	state, err := url.Parse(u.Query().Get("state"))
	require.NoError(t, err)
	return state.Query().Get("return_to")
}

func TestEvaluate_OutsideBrowser(t *testing.T) {
	v := &fakeVerifier{}
	g := newTestGate(t, v)
	bc := newFakeContext(t, "https://docs.example.com/guides")
	bc.inBrowser = false

	d := g.Evaluate(context.Background(), bc)

	assert.Equal(t, Decision{State: Unknown, Placeholder: true}, d)
	assert.Zero(t, bc.cookieCalls)
	assert.Empty(t, bc.replaced)
	assert.Zero(t, v.calls.Load())
}

func TestEvaluate_NoSessionRedirectsToLogin(t *testing.T) {
	v := &fakeVerifier{}
	g := newTestGate(t, v)
	bc := newFakeContext(t, "https://docs.example.com/guides/setup?tab=mac")

	d := g.Evaluate(context.Background(), bc)

	assert.Equal(t, Unauthenticated, d.State)
	assert.False(t, d.Placeholder)
	require.NotEmpty(t, d.Redirect)
	assert.True(t, strings.HasPrefix(d.Redirect, config.DefaultAuthURL+"?"))
	assert.Equal(t, "https://docs.example.com/guides/setup?tab=mac", returnToOf(t, d.Redirect))
	assert.Zero(t, v.calls.Load())
}

func TestEvaluate_VerifiedSessionRenders(t *testing.T) {
	v := &fakeVerifier{}
	g := newTestGate(t, v)
	bc := newFakeContext(t, "https://docs.example.com/")
	token := browserauth.SessionToken{FullName: "Dev Eloper", Email: "dev@example.com", Nonce: "n1"}
	saveSession(t, bc.jar, token)

	d := g.Evaluate(context.Background(), bc)

	assert.Equal(t, Authenticated, d.State)
	assert.Empty(t, d.Redirect)
	assert.Equal(t, token, d.Session)
	assert.Equal(t, [2]string{"n1", "dev@example.com"}, v.last)
	assert.Empty(t, bc.replaced)
}

func TestEvaluate_FailedVerificationDeletesSession(t *testing.T) {
	tests := []struct {
		name  string
		token browserauth.SessionToken
		err   error
	}{
		{
			name:  "proxy rejects",
			token: browserauth.SessionToken{Email: "dev@example.com", Nonce: "n1"},
			err:   sso.ErrVerificationFailed,
		},
		{
			name:  "nonce cookie gone with the browser session",
			token: browserauth.SessionToken{Email: "dev@example.com"},
			err:   errors.New("missing nonce"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{err: tt.err}
			g := newTestGate(t, v)
			bc := newFakeContext(t, "https://docs.example.com/faq")
			saveSession(t, bc.jar, tt.token)

			d := g.Evaluate(context.Background(), bc)

			assert.Equal(t, Unauthenticated, d.State)
			assert.Equal(t, "https://docs.example.com/faq", returnToOf(t, d.Redirect))
			assert.Zero(t, bc.jar.Len(), "session and nonce cookies are deleted")
		})
	}
}

func TestExempt(t *testing.T) {
	g := newTestGate(t, &fakeVerifier{})

	tests := []struct {
		path string
		want bool
	}{
		{"/login", true},
		{"/logout", true},
		{"/healthz", true},
		{"/metrics", true},
		{"/img/logo.svg", true},
		{"/img/../guides/secret.html", false},
		{"/login/", false},
		{"/login/../guides/index.html", false},
		{"/login/..%2Fguides/", false},
		{"/logout/../guides/", false},
		{"/healthz/../guides/index.html", false},
		{"/metrics/../index.html", false},
		{"/", false},
		{"/login-help", false},
		{"/guides/login", false},
		{"/_docgate/session", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Exempt(tt.path))
		})
	}
}

func sessionCookies(t *testing.T, token browserauth.SessionToken) []*http.Cookie {
	t.Helper()
	jar := cookie.NewMemoryJar()
	saveSession(t, jar, token)
	var out []*http.Cookie
	for _, name := range []string{config.DefaultCookieName, browserauth.NonceCookieName(config.DefaultCookieName)} {
		if c, ok := jar.Get(name); ok {
			out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	return out
}

func TestMiddleware(t *testing.T) {
	protected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := browserauth.SessionFromContext(r.Context())
		if ok {
			w.Header().Set("X-Member", token.Email)
		}
		_, _ = w.Write([]byte("protected docs"))
	})

	validToken := browserauth.SessionToken{FullName: "Dev", Email: "dev@example.com", Nonce: "n1"}

	tests := []struct {
		name          string
		path          string
		headers       map[string]string
		cookies       []*http.Cookie
		verifyErr     error
		wantStatus    int
		wantBody      string
		wantLocation  bool
		wantDeleted   bool
		wantMember    string
		wantNoContent bool
	}{
		{
			name:          "anonymous visitor redirected",
			path:          "/guides/setup",
			wantStatus:    http.StatusSeeOther,
			wantLocation:  true,
			wantNoContent: true,
		},
		{
			name:       "verified member sees content",
			path:       "/guides/setup",
			cookies:    sessionCookies(t, validToken),
			wantStatus: http.StatusOK,
			wantBody:   "protected docs",
			wantMember: "dev@example.com",
		},
		{
			name:          "failed verification clears cookie and redirects",
			path:          "/guides/setup",
			cookies:       sessionCookies(t, validToken),
			verifyErr:     sso.ErrVerificationFailed,
			wantStatus:    http.StatusSeeOther,
			wantLocation:  true,
			wantDeleted:   true,
			wantNoContent: true,
		},
		{
			name:          "prerender gets placeholder",
			path:          "/guides/setup",
			headers:       map[string]string{browser.PrerenderHeader: "1"},
			cookies:       sessionCookies(t, validToken),
			wantStatus:    http.StatusOK,
			wantBody:      pages.PlaceholderText,
			wantNoContent: true,
		},
		{
			name:          "script client gets 401",
			path:          "/_docgate/session",
			wantStatus:    http.StatusUnauthorized,
			wantBody:      `"error":"unauthorized"`,
			wantNoContent: true,
		},
		{
			name:       "public path served without session",
			path:       "/img/logo.svg",
			wantStatus: http.StatusOK,
			wantBody:   "protected docs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(t, &fakeVerifier{err: tt.verifyErr})
			handler := g.Middleware(protected)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
			if tt.wantNoContent {
				assert.NotContains(t, w.Body.String(), "protected docs")
			}
			if tt.wantLocation {
				loc := w.Header().Get("Location")
				assert.Equal(t, "https://docs.example.com"+tt.path, returnToOf(t, loc))
			}
			assert.Equal(t, tt.wantMember, w.Header().Get("X-Member"))

			if tt.wantDeleted {
				var deleted []string
				for _, c := range w.Result().Cookies() {
					if c.MaxAge < 0 {
						deleted = append(deleted, c.Name)
					}
				}
				assert.ElementsMatch(t, []string{
					config.DefaultCookieName,
					browserauth.NonceCookieName(config.DefaultCookieName),
				}, deleted)
			}
		})
	}
}
