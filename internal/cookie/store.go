package cookie

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tenup/docgate/internal/log"
)

// ErrInvalidName is returned when a cookie name is empty or not a valid token
var ErrInvalidName = errors.New("the cookie name parameter is not valid")

// deletedAt is the already-expired timestamp used to remove a cookie
var deletedAt = time.Unix(1, 0).UTC()

// Options control how a value is stored
type Options struct {
	// Path defaults to "/".
	Path string
	// Expires is absolute. The zero value makes the cookie session-scoped.
	Expires time.Time
}

// Store provides typed access to JSON values kept in a Jar. Values are JSON
// encoded and then percent-encoded the way encodeURIComponent does it.
type Store struct {
	jar Jar
}

// NewStore wraps a jar
func NewStore(jar Jar) *Store {
	return &Store{jar: jar}
}

// Read decodes the value stored under name into v. It reports false when no
// such cookie exists or its value is empty. Other cookies are never parsed.
func (s *Store) Read(name string, v any) (bool, error) {
	if name == "" {
		return false, nil
	}
	c, ok := s.jar.Get(name)
	if !ok || strings.TrimSpace(c.Value) == "" {
		return false, nil
	}

	raw, err := url.PathUnescape(strings.TrimSpace(c.Value))
	if err != nil {
		return false, fmt.Errorf("decoding cookie %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("parsing cookie %s: %w", name, err)
	}
	return true, nil
}

// Write stores value under name. An invalid name is logged and ignored.
func (s *Store) Write(name string, value any, opts Options) error {
	if !validName(name) {
		log.LogWarnWithFields("cookie", ErrInvalidName.Error(), map[string]any{
			"name": name,
		})
		return ErrInvalidName
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cookie %s: %w", name, err)
	}

	path := opts.Path
	if path == "" {
		path = "/"
	}
	s.jar.Set(&http.Cookie{
		Name:     name,
		Value:    EncodeURIComponent(string(data)),
		Path:     path,
		Expires:  opts.Expires,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	log.LogTraceWithFields("cookie", "Cookie written", map[string]any{
		"name":    name,
		"path":    path,
		"session": opts.Expires.IsZero(),
	})
	return nil
}

// Delete removes the cookie by overwriting it with an expired one.
func (s *Store) Delete(name string) {
	if !validName(name) {
		log.LogWarnWithFields("cookie", ErrInvalidName.Error(), map[string]any{
			"name": name,
		})
		return
	}
	s.jar.Set(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  deletedAt,
		MaxAge:   -1,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	log.LogTraceWithFields("cookie", "Cookie deleted", map[string]any{
		"name": name,
	})
}

// validName reports whether name is a usable cookie token (RFC 6265).
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b <= 0x20 || b >= 0x7f {
			return false
		}
		if strings.IndexByte(`()<>@,;:\"/[]?={}`, b) >= 0 {
			return false
		}
	}
	return true
}

const upperhex = "0123456789ABCDEF"

// EncodeURIComponent escapes everything except A-Z a-z 0-9 and - _ . ! ~ * ' ( ).
// The output is always a valid cookie value.
func EncodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
