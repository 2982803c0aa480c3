package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/tenup/docgate/internal/log"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes config JSON, resolves env references and validates the result
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != Version {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := config.normalize(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := validateAbsoluteURL(config.Site.URL, "site.url"); err != nil {
		return err
	}
	if config.Site.Addr == "" {
		return fmt.Errorf("site.addr is required")
	}
	if config.Site.LandingURL != "" {
		if err := validateAbsoluteURL(config.Site.LandingURL, "site.landingURL"); err != nil {
			return err
		}
	}

	if err := validateSSOConfig(&config.SSO); err != nil {
		return fmt.Errorf("sso config: %w", err)
	}

	switch config.Content.Source {
	case ContentSourceDir:
		if config.Content.Dir == "" {
			return fmt.Errorf("content.dir is required for dir source")
		}
	case ContentSourceS3:
		if config.Content.S3 == nil || config.Content.S3.Bucket == "" {
			return fmt.Errorf("content.s3.bucket is required for s3 source")
		}
		if config.Content.S3.Region == "" {
			return fmt.Errorf("content.s3.region is required for s3 source")
		}
	default:
		return fmt.Errorf("content.source has invalid value: %s", config.Content.Source)
	}

	switch config.Storage.Kind {
	case StorageMemory:
	case StorageFirestore:
		if config.Storage.GCPProject == "" {
			return fmt.Errorf("storage.gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("storage.kind has invalid value: %s", config.Storage.Kind)
	}
	if config.Storage.MemberRetention < 0 || config.Storage.CleanupInterval < 0 {
		return fmt.Errorf("storage durations cannot be negative")
	}
	return nil
}

func validateSSOConfig(sso *SSOConfig) error {
	if sso.GoogleClientID == "" {
		return fmt.Errorf("googleClientId is required")
	}
	if err := validateAbsoluteURL(sso.ProxyURL, "proxyURL"); err != nil {
		return err
	}
	if err := validateAbsoluteURL(sso.AuthURL, "authURL"); err != nil {
		return err
	}
	if strings.ContainsAny(sso.CookieName, " \t;,=\"") {
		return fmt.Errorf("cookieName %q is not a valid cookie name", sso.CookieName)
	}
	if sso.SessionTTL < 0 || sso.VerifyTimeout < 0 || sso.VerifiedCacheTTL < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	if sso.VerifiedCacheSize < 0 {
		return fmt.Errorf("verifiedCacheSize cannot be negative")
	}
	if sso.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.maxAttempts must be at least 1")
	}
	if sso.Retry.InitialInterval < 0 {
		return fmt.Errorf("retry.initialInterval cannot be negative")
	}
	if !sso.EnforceSameOrigin {
		log.LogWarn("sso.enforceSameOrigin is disabled - return_to may redirect to other sites")
	}
	if sso.SessionTTL == 0 {
		log.LogDebug("sso.sessionTtl not set, session cookie lasts for the browser session")
	}
	return nil
}

func validateAbsoluteURL(raw, field string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", field)
	}
	return nil
}
