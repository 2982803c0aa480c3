package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Version is the config schema version this build understands
const Version = "docgate/v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ContentSourceKind selects where the generated site is read from
type ContentSourceKind string

const (
	ContentSourceDir ContentSourceKind = "dir"
	ContentSourceS3  ContentSourceKind = "s3"
)

// StorageKind selects the member tracking backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
)

// Defaults match the values the 10up documentation site uses
const (
	DefaultAuthURL             = "https://accounts.google.com/o/oauth2/auth/oauthchooseaccount"
	DefaultCookieName          = "10up-sso-login"
	DefaultVerifyTimeout       = 10 * time.Second
	DefaultVerifiedCacheTTL    = 5 * time.Minute
	DefaultVerifiedCacheSize   = 1024
	DefaultFirestoreCollection = "docgate_members"
	DefaultCleanupInterval     = time.Hour
)

// DefaultScopes are the Google scopes for basic profile and email
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// SiteConfig describes the protected documentation site. PublicPaths are
// path prefixes served without authentication.
type SiteConfig struct {
	URL         string   `json:"url"`
	Addr        string   `json:"addr"`
	Name        string   `json:"name"`
	LandingURL  string   `json:"landingURL,omitempty"`
	PublicPaths []string `json:"publicPaths,omitempty"`
}

// RetryConfig controls re-attempts of the verification call on transport
// errors. A rejection by the proxy is never retried.
type RetryConfig struct {
	MaxAttempts     int           `json:"maxAttempts"`
	InitialInterval time.Duration `json:"initialInterval"`
}

// SSOConfig holds the single-sign-on collaborators
type SSOConfig struct {
	GoogleClientID    string        `json:"googleClientId"`
	ProxyURL          string        `json:"proxyURL"`
	AuthURL           string        `json:"authURL,omitempty"`
	Scopes            []string      `json:"scopes,omitempty"`
	CookieName        string        `json:"cookieName,omitempty"`
	SessionTTL        time.Duration `json:"sessionTtl,omitempty"`
	VerifyTimeout     time.Duration `json:"verifyTimeout,omitempty"`
	VerifiedCacheTTL  time.Duration `json:"verifiedCacheTtl,omitempty"`
	VerifiedCacheSize int           `json:"verifiedCacheSize,omitempty"`
	EnforceSameOrigin bool          `json:"enforceSameOrigin"`
	AllowedDomains    []string      `json:"allowedDomains,omitempty"`
	Retry             RetryConfig   `json:"retry"`
}

// S3Config locates the generated site in an S3 bucket
type S3Config struct {
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	Prefix          string `json:"prefix,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey Secret `json:"secretAccessKey,omitempty"`
}

// ContentConfig locates the generated site
type ContentConfig struct {
	Source ContentSourceKind `json:"source"`
	Dir    string            `json:"dir,omitempty"`
	S3     *S3Config         `json:"s3,omitempty"`
}

// StorageConfig selects where member logins are recorded. Members not seen
// for MemberRetention are pruned; zero keeps them forever.
type StorageConfig struct {
	Kind            StorageKind   `json:"kind"`
	GCPProject      string        `json:"gcpProject,omitempty"`
	Database        string        `json:"database,omitempty"`
	Collection      string        `json:"collection,omitempty"`
	MemberRetention time.Duration `json:"memberRetention,omitempty"`
	CleanupInterval time.Duration `json:"cleanupInterval,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Site    SiteConfig    `json:"site"`
	SSO     SSOConfig     `json:"sso"`
	Content ContentConfig `json:"content"`
	Storage StorageConfig `json:"storage"`
}

// LandingURL is where logout sends the user
func (c *Config) LandingURL() string {
	if c.Site.LandingURL != "" {
		return c.Site.LandingURL
	}
	return c.Site.URL
}

// RawConfigValue represents a value that could be a string or an env ref.
// This is only used during parsing, not in the final config
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or {"$env": "VAR"}
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &RawConfigValue{value: value}, nil
}

// parseOptionalValue resolves raw when present
func parseOptionalValue(raw json.RawMessage, field string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return parsed.value, nil
}

// parseOptionalDuration parses a duration string when present
func parseOptionalDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}
