package sso

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tenup/docgate/internal/config"
	"github.com/tenup/docgate/internal/urlutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	clientIDSuffix = ".apps.googleusercontent.com"

	actionLogin  = "10up-login"
	actionVerify = "10up-verify"
)

// AuthURLBuilder builds the identity provider URL that starts a login. The
// provider sends the user to the SSO proxy, which sends them back to the
// site's /login route carrying the original page in return_to.
type AuthURLBuilder struct {
	oauth    oauth2.Config
	loginURL string
}

// NewAuthURLBuilder creates a builder for the given SSO settings and public
// site URL
func NewAuthURLBuilder(cfg config.SSOConfig, siteURL string) (*AuthURLBuilder, error) {
	redirect, err := urlutil.WithQuery(cfg.ProxyURL, url.Values{"action": {actionLogin}})
	if err != nil {
		return nil, fmt.Errorf("building proxy login URL: %w", err)
	}
	loginURL, err := urlutil.JoinPath(siteURL, "login")
	if err != nil {
		return nil, fmt.Errorf("building site login URL: %w", err)
	}

	clientID := cfg.GoogleClientID
	if !strings.HasSuffix(clientID, clientIDSuffix) {
		clientID += clientIDSuffix
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}

	return &AuthURLBuilder{
		oauth: oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirect,
			Scopes:      cfg.Scopes,
			Endpoint:    endpoint,
		},
		loginURL: loginURL,
	}, nil
}

// LoginURL returns the provider URL for a login that ends on returnTo
func (b *AuthURLBuilder) LoginURL(returnTo string) string {
	state, err := urlutil.WithQuery(b.loginURL, url.Values{"return_to": {returnTo}})
	if err != nil {
		// loginURL was parsed at construction
		state = b.loginURL
	}
	return b.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("flowName", "GeneralOAuthFlow"),
	)
}
