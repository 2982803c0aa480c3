package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnmarshalJSON implements custom unmarshaling for SSOConfig. The client id
// and proxy URL may be env references; durations are Go duration strings.
func (c *SSOConfig) UnmarshalJSON(data []byte) error {
	type rawSSO struct {
		GoogleClientID    json.RawMessage `json:"googleClientId"`
		ProxyURL          json.RawMessage `json:"proxyURL"`
		AuthURL           string          `json:"authURL"`
		Scopes            []string        `json:"scopes"`
		CookieName        string          `json:"cookieName"`
		SessionTTL        string          `json:"sessionTtl"`
		VerifyTimeout     string          `json:"verifyTimeout"`
		VerifiedCacheTTL  string          `json:"verifiedCacheTtl"`
		VerifiedCacheSize int             `json:"verifiedCacheSize"`
		EnforceSameOrigin *bool           `json:"enforceSameOrigin"`
		AllowedDomains    []string        `json:"allowedDomains"`
		Retry             RetryConfig     `json:"retry"`
	}

	var raw rawSSO
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if c.GoogleClientID, err = parseOptionalValue(raw.GoogleClientID, "googleClientId"); err != nil {
		return err
	}
	if c.ProxyURL, err = parseOptionalValue(raw.ProxyURL, "proxyURL"); err != nil {
		return err
	}
	if c.SessionTTL, err = parseOptionalDuration(raw.SessionTTL, "sessionTtl"); err != nil {
		return err
	}
	if c.VerifyTimeout, err = parseOptionalDuration(raw.VerifyTimeout, "verifyTimeout"); err != nil {
		return err
	}
	if c.VerifiedCacheTTL, err = parseOptionalDuration(raw.VerifiedCacheTTL, "verifiedCacheTtl"); err != nil {
		return err
	}

	c.AuthURL = raw.AuthURL
	c.Scopes = raw.Scopes
	c.CookieName = raw.CookieName
	c.VerifiedCacheSize = raw.VerifiedCacheSize
	c.AllowedDomains = make([]string, 0, len(raw.AllowedDomains))
	for _, d := range raw.AllowedDomains {
		c.AllowedDomains = append(c.AllowedDomains, strings.ToLower(strings.TrimSpace(d)))
	}
	c.Retry = raw.Retry

	// Same-origin return_to enforcement is on unless explicitly disabled
	c.EnforceSameOrigin = true
	if raw.EnforceSameOrigin != nil {
		c.EnforceSameOrigin = *raw.EnforceSameOrigin
	}

	c.applyDefaults()
	return nil
}

func (c *SSOConfig) applyDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.VerifyTimeout == 0 {
		c.VerifyTimeout = DefaultVerifyTimeout
	}
	if c.VerifiedCacheTTL == 0 {
		c.VerifiedCacheTTL = DefaultVerifiedCacheTTL
	}
	if c.VerifiedCacheSize == 0 {
		c.VerifiedCacheSize = DefaultVerifiedCacheSize
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 1
	}
}

// UnmarshalJSON implements custom unmarshaling for RetryConfig
func (r *RetryConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		MaxAttempts     int    `json:"maxAttempts"`
		InitialInterval string `json:"initialInterval"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	interval, err := parseOptionalDuration(raw.InitialInterval, "retry.initialInterval")
	if err != nil {
		return err
	}
	r.MaxAttempts = raw.MaxAttempts
	r.InitialInterval = interval
	return nil
}

// UnmarshalJSON implements custom unmarshaling for S3Config so credentials
// can come from the environment.
func (s *S3Config) UnmarshalJSON(data []byte) error {
	var raw struct {
		Bucket          string          `json:"bucket"`
		Region          string          `json:"region"`
		Prefix          string          `json:"prefix"`
		Endpoint        string          `json:"endpoint"`
		AccessKeyID     json.RawMessage `json:"accessKeyId"`
		SecretAccessKey json.RawMessage `json:"secretAccessKey"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	accessKey, err := parseOptionalValue(raw.AccessKeyID, "s3.accessKeyId")
	if err != nil {
		return err
	}
	secret, err := parseOptionalValue(raw.SecretAccessKey, "s3.secretAccessKey")
	if err != nil {
		return err
	}

	s.Bucket = raw.Bucket
	s.Region = raw.Region
	s.Prefix = strings.Trim(raw.Prefix, "/")
	s.Endpoint = raw.Endpoint
	s.AccessKeyID = accessKey
	s.SecretAccessKey = Secret(secret)
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind            StorageKind     `json:"kind"`
		GCPProject      json.RawMessage `json:"gcpProject"`
		Database        string          `json:"database"`
		Collection      string          `json:"collection"`
		MemberRetention string          `json:"memberRetention"`
		CleanupInterval string          `json:"cleanupInterval"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	project, err := parseOptionalValue(raw.GCPProject, "storage.gcpProject")
	if err != nil {
		return err
	}
	retention, err := parseOptionalDuration(raw.MemberRetention, "storage.memberRetention")
	if err != nil {
		return err
	}
	interval, err := parseOptionalDuration(raw.CleanupInterval, "storage.cleanupInterval")
	if err != nil {
		return err
	}

	s.Kind = raw.Kind
	if s.Kind == "" {
		s.Kind = StorageMemory
	}
	s.GCPProject = project
	s.Database = raw.Database
	s.Collection = raw.Collection
	if s.Kind == StorageFirestore && s.Collection == "" {
		s.Collection = DefaultFirestoreCollection
	}
	s.MemberRetention = retention
	s.CleanupInterval = interval
	if s.CleanupInterval == 0 {
		s.CleanupInterval = DefaultCleanupInterval
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ContentConfig
func (c *ContentConfig) UnmarshalJSON(data []byte) error {
	type rawContent ContentConfig
	var raw rawContent
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ContentConfig(raw)
	if c.Source == "" {
		c.Source = ContentSourceDir
	}
	return nil
}

// normalize fills defaults for sections that were absent from the file,
// since UnmarshalJSON only runs for keys that are present.
func (c *Config) normalize() error {
	c.SSO.applyDefaults()
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageMemory
	}
	if c.Storage.CleanupInterval == 0 {
		c.Storage.CleanupInterval = DefaultCleanupInterval
	}
	if c.Content.Source == "" {
		c.Content.Source = ContentSourceDir
	}
	if c.Site.Name == "" {
		c.Site.Name = "docgate"
	}
	c.Site.URL = strings.TrimRight(c.Site.URL, "/")
	for i, p := range c.Site.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("site.publicPaths[%d] must start with /", i)
		}
	}
	return nil
}
