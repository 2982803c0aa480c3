package cookie

import (
	"net/http"
	"sync"
	"time"
)

// Jar is the underlying cookie storage a Store reads and writes through.
type Jar interface {
	// Get returns the live cookie with the given name, if any.
	Get(name string) (*http.Cookie, bool)
	// Set stores or expires a cookie.
	Set(c *http.Cookie)
}

// expired reports whether c removes rather than stores a cookie.
func expired(c *http.Cookie, now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// HTTPJar is a Jar backed by one request/response exchange. Incoming cookies
// come from the request; writes go out as Set-Cookie headers and are visible
// to later reads on the same jar.
type HTTPJar struct {
	r       *http.Request
	w       http.ResponseWriter
	pending map[string]*http.Cookie
}

var _ Jar = (*HTTPJar)(nil)

// NewHTTPJar creates a jar for a single request
func NewHTTPJar(w http.ResponseWriter, r *http.Request) *HTTPJar {
	return &HTTPJar{
		r:       r,
		w:       w,
		pending: make(map[string]*http.Cookie),
	}
}

// Get implements Jar
func (j *HTTPJar) Get(name string) (*http.Cookie, bool) {
	if c, ok := j.pending[name]; ok {
		if expired(c, time.Now()) {
			return nil, false
		}
		return c, true
	}
	c, err := j.r.Cookie(name)
	if err != nil {
		return nil, false
	}
	return c, true
}

// Set implements Jar
func (j *HTTPJar) Set(c *http.Cookie) {
	http.SetCookie(j.w, c)
	j.pending[c.Name] = c
}

// MemoryJar is an in-process Jar used where no HTTP exchange exists.
type MemoryJar struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie
	now     func() time.Time
}

var _ Jar = (*MemoryJar)(nil)

// NewMemoryJar creates an empty in-memory jar
func NewMemoryJar() *MemoryJar {
	return &MemoryJar{
		cookies: make(map[string]*http.Cookie),
		now:     time.Now,
	}
}

// Get implements Jar
func (j *MemoryJar) Get(name string) (*http.Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	c, ok := j.cookies[name]
	if !ok {
		return nil, false
	}
	if expired(c, j.now()) {
		delete(j.cookies, name)
		return nil, false
	}
	return c, true
}

// Set implements Jar
func (j *MemoryJar) Set(c *http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if expired(c, j.now()) {
		delete(j.cookies, c.Name)
		return
	}
	cp := *c
	j.cookies[c.Name] = &cp
}

// Len returns the number of live cookies
func (j *MemoryJar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.cookies)
}

type discardJar struct{}

func (discardJar) Get(string) (*http.Cookie, bool) { return nil, false }
func (discardJar) Set(*http.Cookie)                {}

// Discard is a Jar that holds nothing. Used where no cookie storage exists,
// such as build-time rendering.
var Discard Jar = discardJar{}
