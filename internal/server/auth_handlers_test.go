package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenup/docgate/internal/browser"
	"github.com/tenup/docgate/internal/browserauth"
	"github.com/tenup/docgate/internal/config"
	"github.com/tenup/docgate/internal/cookie"
	"github.com/tenup/docgate/internal/pages"
	"github.com/tenup/docgate/internal/sso"
	"github.com/tenup/docgate/internal/storage"
)

type fakeVerifier struct {
	mu      sync.Mutex
	err     error
	calls   int
	forgets [][2]string
}

func (v *fakeVerifier) Verify(_ context.Context, nonce, email string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.err
}

func (v *fakeVerifier) Forget(nonce, email string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.forgets = append(v.forgets, [2]string{nonce, email})
}

type failingStorage struct {
	storage.Storage
}

func (failingStorage) UpsertMember(context.Context, string, string) error {
	return errors.New("firestore unavailable")
}

func (failingStorage) GetMember(context.Context, string) (*storage.Member, error) {
	return nil, errors.New("firestore unavailable")
}

func testConfig() *config.Config {
	return &config.Config{
		Site: config.SiteConfig{
			URL:        "https://docs.example.com",
			Name:       "docs",
			LandingURL: "https://example.com/",
		},
		SSO: config.SSOConfig{
			GoogleClientID:    "1234-abc",
			ProxyURL:          "https://sso.example.com/wp-admin/admin-ajax.php",
			AuthURL:           config.DefaultAuthURL,
			Scopes:            config.DefaultScopes,
			CookieName:        config.DefaultCookieName,
			EnforceSameOrigin: true,
		},
	}
}

func newTestHandlers(t *testing.T, cfg *config.Config, v SessionVerifier, store storage.Storage) *AuthHandlers {
	t.Helper()
	auth, err := sso.NewAuthURLBuilder(cfg.SSO, cfg.Site.URL)
	require.NoError(t, err)
	h, err := NewAuthHandlers(cfg, v, auth, store, nil)
	require.NoError(t, err)
	return h
}

func loginRequest(params url.Values) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/login?"+params.Encode(), nil)
}

func responseCookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestLoginHandler(t *testing.T) {
	callback := url.Values{
		"nonce":     {"n-123"},
		"email":     {"jane@example.com"},
		"full_name": {"Jane Doe"},
		"return_to": {"https://docs.example.com/guides/setup?tab=2"},
	}

	tests := []struct {
		name           string
		params         url.Values
		prerender      bool
		verifyErr      error
		allowedDomains []string
		disabled       bool
		wantStatus     int
		wantLocation   string
		wantBody       string
		wantCookies    bool
		wantVerify     int
	}{
		{
			name:         "successful login",
			params:       callback,
			wantStatus:   http.StatusSeeOther,
			wantLocation: "https://docs.example.com/guides/setup?tab=2",
			wantCookies:  true,
			wantVerify:   1,
		},
		{
			name:       "prerender renders placeholder",
			params:     callback,
			prerender:  true,
			wantStatus: http.StatusOK,
			wantBody:   pages.PlaceholderText,
		},
		{
			name:       "missing nonce",
			params:     url.Values{"email": {"jane@example.com"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "You cannot access the login directly",
		},
		{
			name:       "verification failure",
			params:     callback,
			verifyErr:  sso.ErrVerificationFailed,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Try again",
			wantVerify: 1,
		},
		{
			name: "foreign return_to goes to site root",
			params: url.Values{
				"nonce":     {"n-123"},
				"email":     {"jane@example.com"},
				"return_to": {"https://evil.example.net/phish"},
			},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "https://docs.example.com",
			wantCookies:  true,
			wantVerify:   1,
		},
		{
			name: "missing return_to goes to site root",
			params: url.Values{
				"nonce": {"n-123"},
				"email": {"jane@example.com"},
			},
			wantStatus:   http.StatusSeeOther,
			wantLocation: "https://docs.example.com",
			wantCookies:  true,
			wantVerify:   1,
		},
		{
			name:           "domain not allowed",
			params:         callback,
			allowedDomains: []string{"corp.example.org"},
			wantStatus:     http.StatusForbidden,
			wantBody:       "jane@example.com is not allowed",
			wantVerify:     1,
		},
		{
			name:       "disabled member",
			params:     callback,
			disabled:   true,
			wantStatus: http.StatusForbidden,
			wantBody:   "has been disabled",
			wantVerify: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.SSO.AllowedDomains = tt.allowedDomains
			store := storage.NewMemoryStorage()
			if tt.disabled {
				require.NoError(t, store.UpsertMember(context.Background(), "jane@example.com", "Jane Doe"))
				require.NoError(t, store.SetMemberEnabled(context.Background(), "jane@example.com", false))
			}
			v := &fakeVerifier{err: tt.verifyErr}
			h := newTestHandlers(t, cfg, v, store)

			req := loginRequest(tt.params)
			if tt.prerender {
				req.Header.Set(browser.PrerenderHeader, "1")
			}
			w := httptest.NewRecorder()
			h.LoginHandler(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
			assert.Equal(t, tt.wantVerify, v.calls)

			cookies := responseCookies(w)
			if !tt.wantCookies {
				assert.Empty(t, cookies)
				return
			}
			require.Len(t, cookies, 2)
			session := cookies[config.DefaultCookieName]
			require.NotNil(t, session)
			assert.NotContains(t, session.Value, "n-123")
			nonce := cookies[browserauth.NonceCookieName(config.DefaultCookieName)]
			require.NotNil(t, nonce)
			assert.True(t, nonce.Expires.IsZero())
		})
	}
}

func TestLoginHandler_RecordsMember(t *testing.T) {
	store := storage.NewMemoryStorage()
	h := newTestHandlers(t, testConfig(), &fakeVerifier{}, store)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.LoginHandler(w, loginRequest(url.Values{
			"nonce":     {"n-1"},
			"email":     {"Jane@Example.com"},
			"full_name": {"Jane Doe"},
		}))
		require.Equal(t, http.StatusSeeOther, w.Code)
	}

	member, err := store.GetMember(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", member.FullName)
	assert.Equal(t, int64(2), member.LoginCount)
}

func TestLoginHandler_StorageFailureDoesNotBlock(t *testing.T) {
	h := newTestHandlers(t, testConfig(), &fakeVerifier{}, failingStorage{})

	w := httptest.NewRecorder()
	h.LoginHandler(w, loginRequest(url.Values{
		"nonce": {"n-1"},
		"email": {"jane@example.com"},
	}))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Len(t, responseCookies(w), 2)
}

func TestLoginHandler_DeniedForgetsVerification(t *testing.T) {
	cfg := testConfig()
	cfg.SSO.AllowedDomains = []string{"corp.example.org"}
	v := &fakeVerifier{}
	h := newTestHandlers(t, cfg, v, storage.NewMemoryStorage())

	w := httptest.NewRecorder()
	h.LoginHandler(w, loginRequest(url.Values{
		"nonce": {"n-1"},
		"email": {"jane@example.com"},
	}))
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, [][2]string{{"n-1", "jane@example.com"}}, v.forgets)
}

func sessionCookies(t *testing.T, token browserauth.SessionToken) []*http.Cookie {
	t.Helper()
	data, err := json.Marshal(token)
	require.NoError(t, err)
	nonce, err := json.Marshal(token.Nonce)
	require.NoError(t, err)
	return []*http.Cookie{
		{Name: config.DefaultCookieName, Value: cookie.EncodeURIComponent(string(data))},
		{Name: browserauth.NonceCookieName(config.DefaultCookieName), Value: cookie.EncodeURIComponent(string(nonce))},
	}
}

func TestLogoutHandler(t *testing.T) {
	v := &fakeVerifier{}
	h := newTestHandlers(t, testConfig(), v, storage.NewMemoryStorage())

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	for _, c := range sessionCookies(t, browserauth.SessionToken{Email: "jane@example.com", Nonce: "n-9"}) {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.LogoutHandler(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://example.com/", w.Header().Get("Location"))
	assert.Equal(t, [][2]string{{"n-9", "jane@example.com"}}, v.forgets)

	cookies := responseCookies(w)
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestLogoutHandler_WithoutSession(t *testing.T) {
	cfg := testConfig()
	cfg.Site.LandingURL = ""
	v := &fakeVerifier{}
	h := newTestHandlers(t, cfg, v, storage.NewMemoryStorage())

	w := httptest.NewRecorder()
	h.LogoutHandler(w, httptest.NewRequest(http.MethodGet, "/logout", nil))

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://docs.example.com", w.Header().Get("Location"))
	assert.Empty(t, v.forgets)
	assert.Len(t, responseCookies(w), 2)
}

func TestLogoutHandler_Prerender(t *testing.T) {
	h := newTestHandlers(t, testConfig(), &fakeVerifier{}, storage.NewMemoryStorage())

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.Header.Set(browser.PrerenderHeader, "1")
	w := httptest.NewRecorder()
	h.LogoutHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), pages.PlaceholderText)
	assert.Empty(t, responseCookies(w))
}

func TestSessionHandler(t *testing.T) {
	h := newTestHandlers(t, testConfig(), &fakeVerifier{}, storage.NewMemoryStorage())

	t.Run("with session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/_docgate/session", nil)
		req = req.WithContext(browserauth.WithSession(req.Context(), browserauth.SessionToken{
			Email:    "jane@example.com",
			FullName: "Jane Doe",
		}))
		w := httptest.NewRecorder()
		h.SessionHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp SessionResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, SessionResponse{Email: "jane@example.com", FullName: "Jane Doe", DisplayName: "Jane Doe"}, resp)
	})

	t.Run("without session", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.SessionHandler(w, httptest.NewRequest(http.MethodGet, "/_docgate/session", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
	})
}
