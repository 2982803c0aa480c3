// Package browser abstracts the execution environment a page renders in.
// Gate and handlers receive a Context instead of inspecting the request or
// any global state, so the same code runs headlessly in tests and inertly
// during build-time rendering.
package browser

import (
	"net/http"
	"net/url"

	"github.com/tenup/docgate/internal/cookie"
)

// PrerenderHeader marks requests issued by the site generator while it
// renders pages at build time.
const PrerenderHeader = "X-Docgate-Prerender"

// Context is the capability set a page render may use
type Context interface {
	// InBrowser reports whether a real browser is on the other end. When
	// false, no other method has any effect.
	InBrowser() bool
	// Location is the absolute URL of the page being rendered.
	Location() *url.URL
	// Cookies is the browser cookie jar.
	Cookies() cookie.Jar
	// Replace navigates away from the current page without leaving it in
	// history. Only the first call per render takes effect.
	Replace(target string)
}

// HTTPContext is the Context of a browser navigation served over HTTP
type HTTPContext struct {
	w        http.ResponseWriter
	r        *http.Request
	jar      *cookie.HTTPJar
	location *url.URL
	replaced string
}

var _ Context = (*HTTPContext)(nil)

// NewHTTPContext builds the context for one request. siteURL supplies the
// public scheme and host, which may differ from what the server sees behind
// a proxy.
func NewHTTPContext(w http.ResponseWriter, r *http.Request, siteURL *url.URL) *HTTPContext {
	loc := &url.URL{
		Scheme:   siteURL.Scheme,
		Host:     siteURL.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
	return &HTTPContext{
		w:        w,
		r:        r,
		jar:      cookie.NewHTTPJar(w, r),
		location: loc,
	}
}

// InBrowser implements Context
func (c *HTTPContext) InBrowser() bool {
	return c.r.Header.Get(PrerenderHeader) == ""
}

// Location implements Context
func (c *HTTPContext) Location() *url.URL {
	u := *c.location
	return &u
}

// Cookies implements Context
func (c *HTTPContext) Cookies() cookie.Jar {
	if !c.InBrowser() {
		return cookie.Discard
	}
	return c.jar
}

// Replace implements Context with a 303 redirect
func (c *HTTPContext) Replace(target string) {
	if !c.InBrowser() || c.replaced != "" {
		return
	}
	c.replaced = target
	c.w.Header().Set("Cache-Control", "no-store")
	http.Redirect(c.w, c.r, target, http.StatusSeeOther)
}

// Replaced returns the navigation target, if Replace was called. Only tests
// inspect it; handlers never need to.
func (c *HTTPContext) Replaced() (string, bool) {
	return c.replaced, c.replaced != ""
}

// Prerender is the Context of build-time rendering, where no browser exists
type Prerender struct {
	path string
}

var _ Context = Prerender{}

// NewPrerender creates a build-time context for the page at path
func NewPrerender(path string) Prerender {
	return Prerender{path: path}
}

// InBrowser implements Context
func (Prerender) InBrowser() bool { return false }

// Location implements Context
func (p Prerender) Location() *url.URL { return &url.URL{Path: p.path} }

// Cookies implements Context
func (Prerender) Cookies() cookie.Jar { return cookie.Discard }

// Replace implements Context
func (Prerender) Replace(string) {}
