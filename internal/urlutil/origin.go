package urlutil

import (
	"net/url"
	"strings"
)

// SameOrigin reports whether target resolves to the scheme and host of site.
// Relative targets are same-origin. Scheme-relative targets ("//host/...")
// are judged by their host.
func SameOrigin(site *url.URL, target string) bool {
	if strings.HasPrefix(target, `/\`) || strings.HasPrefix(target, `\`) {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return true
	}
	if u.Scheme != "" && !strings.EqualFold(u.Scheme, site.Scheme) {
		return false
	}
	return strings.EqualFold(u.Host, site.Host)
}

// ResolveReturnTo turns a post-login destination into an absolute URL on
// site. When enforce is set, foreign or unparseable destinations fall back
// to the site root and ok is false. An empty destination is the site root.
func ResolveReturnTo(site *url.URL, target string, enforce bool) (resolved string, ok bool) {
	root := site.String()
	if target == "" {
		return root, true
	}
	u, err := url.Parse(target)
	if err != nil {
		return root, false
	}
	if enforce && !SameOrigin(site, target) {
		return root, false
	}
	return site.ResolveReference(u).String(), true
}
